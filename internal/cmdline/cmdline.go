// Package cmdline turns an input line into a chain of Command descriptors,
// one per pipeline stage.
package cmdline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

var ErrSyntax = errors.New("syntax error")

// Command describes one pipeline stage. It is not modified after Parse.
type Command struct {
	Args           []string
	InputRedirect  string
	OutputRedirect string
	Blocking       bool
	Next           *Command
}

// Name is the program or builtin name, Args[0].
func (c *Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

func (c *Command) String() string {
	return strings.Join(c.Args, " ")
}

// Stages returns the length of the chain starting at c.
func (c *Command) Stages() int {
	n := 0
	for cur := c; cur != nil; cur = cur.Next {
		n++
	}
	return n
}

// Parse splits line into stages on "|", collects "<" and ">" targets, and
// treats a trailing "&" as clearing the blocking flag of every stage.
// Operators are recognised only as unquoted words of their own; a trailing
// "&" may also be glued to the last word. An empty line yields a nil
// Command and no error.
func Parse(line string) (*Command, error) {
	if _, err := shellquote.Split(line); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	fields := scan(line)
	if len(fields) == 0 {
		return nil, nil
	}

	blocking := true
	if last := &fields[len(fields)-1]; last.amp {
		blocking = false
		last.raw = last.raw[:len(last.raw)-1]
		if last.raw == "" {
			fields = fields[:len(fields)-1]
		}
	}

	words := make([]word, 0, len(fields))
	for _, f := range fields {
		if isOperator(f.raw) {
			words = append(words, word{text: f.raw, op: true})
			continue
		}
		split, err := shellquote.Split(f.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		// An escaped newline on its own yields no word.
		if len(split) == 1 {
			words = append(words, word{text: split[0]})
		}
	}

	var head, tail *Command
	cur := &Command{Blocking: blocking}
	push := func() error {
		if len(cur.Args) == 0 {
			return fmt.Errorf("%w: empty command", ErrSyntax)
		}
		if head == nil {
			head = cur
		} else {
			tail.Next = cur
		}
		tail = cur
		cur = &Command{Blocking: blocking}
		return nil
	}

	for i := 0; i < len(words); i++ {
		w := words[i]
		if !w.op {
			cur.Args = append(cur.Args, w.text)
			continue
		}
		switch w.text {
		case "|":
			if err := push(); err != nil {
				return nil, err
			}
		case "<", ">":
			if i+1 >= len(words) || words[i+1].op {
				return nil, fmt.Errorf("%w: missing redirect target after %q", ErrSyntax, w.text)
			}
			if w.text == "<" {
				cur.InputRedirect = words[i+1].text
			} else {
				cur.OutputRedirect = words[i+1].text
			}
			i++
		}
	}
	if err := push(); err != nil {
		return nil, err
	}
	return head, nil
}

type word struct {
	text string
	op   bool
}

// field is one whitespace-separated word of the line, quotes still in
// place. amp is set when the word ends in an unquoted, unescaped "&".
type field struct {
	raw string
	amp bool
}

// scan splits line on unquoted blanks using the same word boundaries as
// shellquote.Split. Quote errors have already been reported by the caller.
func scan(line string) []field {
	var (
		fields []field
		quote  byte
		amp    bool
	)
	start := -1
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quote == 0 && (c == ' ' || c == '\t' || c == '\n') {
			if start >= 0 {
				fields = append(fields, field{raw: line[start:i], amp: amp})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}

		amp = false
		switch {
		case quote == '\'':
			if c == '\'' {
				quote = 0
			}
		case quote == '"':
			if c == '\\' {
				i++
			} else if c == '"' {
				quote = 0
			}
		case c == '\\':
			i++
		case c == '\'' || c == '"':
			quote = c
		case c == '&':
			amp = true
		}
	}
	if start >= 0 {
		fields = append(fields, field{raw: line[start:], amp: amp})
	}
	return fields
}

func isOperator(w string) bool {
	return w == "|" || w == "<" || w == ">"
}
