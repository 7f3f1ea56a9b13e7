package history

import (
	"bufio"
	"errors"
	"iter"
	"os"
	"sync"
)

var ErrNotFound = errors.New("no such history entry")

// History is a fixed-capacity ring of command lines. Entries are numbered
// from 1 in arrival order; once the ring is full each Add overwrites the
// oldest slot and that entry's number is no longer recallable.
type History struct {
	slots []string
	next  int // slot the next Add writes
	total int // lines ever added
	file  string
	mu    sync.Mutex
}

func New(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{slots: make([]string, capacity)}
}

// Open returns a ring backed by file. Existing lines are loaded; the file
// is rewritten by Save.
func Open(file string, capacity int) (*History, error) {
	h := New(capacity)
	h.file = file
	if err := h.load(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *History) Cap() int {
	return len(h.slots)
}

// Len is the number of retained entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retained()
}

func (h *History) retained() int {
	return min(h.total, len(h.slots))
}

func (h *History) Add(item string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.slots[h.next] = item
	h.next = (h.next + 1) % len(h.slots)
	h.total++
}

// Get returns the entry numbered index.
func (h *History) Get(index int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := h.total - h.retained() + 1
	if index < first || index > h.total {
		return "", ErrNotFound
	}
	return h.slots[(index-1)%len(h.slots)], nil
}

func (h *History) Last() (string, error) {
	h.mu.Lock()
	total := h.total
	h.mu.Unlock()

	if total == 0 {
		return "", ErrNotFound
	}
	return h.Get(total)
}

// All yields (number, line) for every retained entry, oldest first. The
// sequence reads a snapshot taken when iteration starts.
func (h *History) All() iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		h.mu.Lock()
		first := h.total - h.retained() + 1
		items := make([]string, 0, h.retained())
		for i := first; i <= h.total; i++ {
			items = append(items, h.slots[(i-1)%len(h.slots)])
		}
		h.mu.Unlock()

		for i, item := range items {
			if !yield(first+i, item) {
				return
			}
		}
	}
}

func (h *History) GetAll() []string {
	var out []string
	for _, item := range h.All() {
		out = append(out, item)
	}
	return out
}

func (h *History) Save() error {
	if h.file == "" {
		return nil
	}
	return h.save()
}

func (h *History) load() error {
	file, err := os.Open(h.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			h.Add(line)
		}
	}
	return scanner.Err()
}

func (h *History) save() error {
	file, err := os.Create(h.file)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, item := range h.All() {
		if _, err := writer.WriteString(item + "\n"); err != nil {
			return err
		}
	}
	return writer.Flush()
}
