// Package jobs tracks the processes the shell has started, keyed by pid.
package jobs

import (
	"errors"
	"os"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/sdfpt05/jobshell/internal/cmdline"
)

var ErrNotFound = errors.New("no such job")

// Table holds at most one entry per pid, in registration order. Terminated
// entries stay listed until Remove or Prune.
type Table struct {
	mu      sync.Mutex
	entries map[int]*Entry
	order   []int
	waiter  Waiter
	logger  *zap.Logger
	self    int
}

func NewTable(waiter Waiter, logger *zap.Logger) *Table {
	if waiter == nil {
		waiter = SystemWaiter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		entries: make(map[int]*Entry),
		waiter:  waiter,
		logger:  logger.Named("jobs"),
		self:    os.Getpid(),
	}
}

// Register records pid as Running. An existing entry for the same pid
// belongs to a process the OS has already recycled and is replaced.
func (t *Table) Register(cmd *cmdline.Command, pid int, group string) Entry {
	if cmd == nil {
		cmd = &cmdline.Command{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.entries[pid]; ok {
		t.logger.Debug("pid reused, replacing entry",
			zap.Int("pid", pid),
			zap.Stringer("old_status", old.Status),
		)
		t.unlink(pid)
	}

	e := &Entry{PID: pid, Command: cmd, Status: Running, Group: group}
	t.entries[pid] = e
	t.order = append(t.order, pid)

	t.logger.Debug("job registered",
		zap.Int("pid", pid),
		zap.Strings("argv", cmd.Args),
		zap.String("group", group),
	)
	return *e
}

// SetStatus updates pid in place and reports whether it was tracked.
func (t *Table) SetStatus(pid int, status Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setStatus(pid, status)
}

func (t *Table) setStatus(pid int, status Status) bool {
	e, ok := t.entries[pid]
	if !ok {
		return false
	}
	if e.Status != status {
		t.logger.Debug("job status changed",
			zap.Int("pid", pid),
			zap.Stringer("from", e.Status),
			zap.Stringer("to", status),
			zap.String("group", e.Group),
		)
	}
	e.Status = status
	return true
}

func (t *Table) Get(pid int) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[pid]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Remove drops pid from the table.
func (t *Table) Remove(pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unlink(pid)
}

func (t *Table) unlink(pid int) bool {
	if _, ok := t.entries[pid]; !ok {
		return false
	}
	delete(t.entries, pid)
	t.order = slices.DeleteFunc(t.order, func(p int) bool { return p == pid })
	return true
}

// Prune removes every Terminated entry and returns how many went.
func (t *Table) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, pid := range slices.Clone(t.order) {
		if t.entries[pid].Status == Terminated {
			t.unlink(pid)
			n++
		}
	}
	return n
}

// Reconcile polls every live entry without blocking and applies any stop,
// continue, or exit the OS reports. Errors such as ECHILD mean the pid is
// not ours to wait on and count as no change.
func (t *Table) Reconcile() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, pid := range t.order {
		e := t.entries[pid]
		if e.Status == Terminated {
			continue
		}

		wpid, ws, err := t.waiter.Wait4(pid, reconcileOptions)
		if err != nil {
			t.logger.Debug("wait query failed", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		if wpid != pid {
			continue
		}
		if status, ok := StatusFromWait(ws); ok {
			t.setStatus(pid, status)
		}
	}
}

// List reconciles and returns one row per entry, never including the
// shell's own pid.
func (t *Table) List() []Row {
	t.Reconcile()

	t.mu.Lock()
	defer t.mu.Unlock()

	rows := make([]Row, 0, len(t.order))
	for _, pid := range t.order {
		if pid == t.self {
			continue
		}
		e := t.entries[pid]
		rows = append(rows, Row{
			PID:    pid,
			Status: e.Status,
			Args:   slices.Clone(e.Command.Args),
		})
	}
	return rows
}

// Close releases every entry.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	clear(t.entries)
	t.order = nil
}
