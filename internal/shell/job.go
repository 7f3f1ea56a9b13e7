package shell

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sdfpt05/jobshell/internal/jobs"
)

func (s *Shell) listJobs([]string) error {
	return s.control.List(s.stdout)
}

func (s *Shell) terminate(pid int) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Jobs.TerminateTimeout)
	defer cancel()
	return s.control.Terminate(ctx, pid)
}

func (s *Shell) withPid(name string, fn func(pid int) error) builtinFunc {
	return func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("%s: usage: %s <pid>", name, name)
		}
		pid, err := strconv.Atoi(args[0])
		if err != nil || pid <= 0 {
			return fmt.Errorf("%s: invalid pid %q", name, args[0])
		}
		return fn(pid)
	}
}

// reportStopped tells the user about foreground processes that were
// stopped rather than finished.
func (s *Shell) reportStopped(pids []int) {
	for _, pid := range pids {
		e, err := s.jobs.Get(pid)
		if err != nil || e.Status != jobs.Suspended {
			continue
		}
		fmt.Fprintf(s.stdout, "\n[%d] Suspended\t%s\n", pid, e.Command)
	}
}
