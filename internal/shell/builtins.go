package shell

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sdfpt05/jobshell/internal/history"
)

type builtinFunc func(args []string) error

func (s *Shell) builtins() map[string]builtinFunc {
	return map[string]builtinFunc{
		"cd":        s.changeDirectory,
		"quit":      s.exit,
		"exit":      s.exit,
		"history":   s.showHistory,
		"procs":     s.listJobs,
		"jobs":      s.listJobs,
		"suspend":   s.withPid("suspend", s.control.Suspend),
		"wake":      s.withPid("wake", s.control.Resume),
		"resume":    s.withPid("resume", s.control.Resume),
		"kill":      s.withPid("kill", s.terminate),
		"terminate": s.withPid("terminate", s.terminate),
	}
}

func (s *Shell) changeDirectory(args []string) error {
	var dir string
	if len(args) == 0 {
		dir = s.config.HomeDir
	} else {
		dir = args[0]
	}

	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("cd: %w", err)
	}
	return nil
}

func (s *Shell) exit([]string) error {
	return ErrExit
}

func (s *Shell) showHistory([]string) error {
	for i, cmd := range s.history.All() {
		fmt.Fprintf(s.stdout, "%d: %s\n", i, cmd)
	}
	return nil
}

type recallFunc func(h *history.History) (string, error)

// parseRecall recognises "!!", "!<n>" and "! <n>".
func parseRecall(line string) (recallFunc, bool) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 1 && fields[0] == "!!":
		return func(h *history.History) (string, error) {
			text, err := h.Last()
			if err != nil {
				return "", fmt.Errorf("no previous command in history: %w", err)
			}
			return text, nil
		}, true
	case len(fields) == 2 && fields[0] == "!":
		return recallIndex(fields[1]), true
	case len(fields) == 1 && len(fields[0]) > 1 && fields[0][0] == '!':
		return recallIndex(fields[0][1:]), true
	}
	return nil, false
}

func recallIndex(arg string) recallFunc {
	return func(h *history.History) (string, error) {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return "", fmt.Errorf("invalid history index %q", arg)
		}
		text, err := h.Get(n)
		if err != nil {
			return "", fmt.Errorf("invalid history index %d: %w", n, err)
		}
		return text, nil
	}
}
