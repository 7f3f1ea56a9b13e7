// Package launcher starts one command line as one process or as a two-stage
// pipeline, registering every process in the job table before waiting on it.
package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/sdfpt05/jobshell/internal/cmdline"
	"github.com/sdfpt05/jobshell/internal/jobs"
)

var (
	ErrPipeOutputRedirect = errors.New("invalid output redirection for left-hand side process")
	ErrPipeInputRedirect  = errors.New("invalid input redirection for right-hand side process")
)

// Options configures the streams children inherit. Nil files default to
// the shell's own; a nil Env inherits the shell's environment.
type Options struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
	Env    []string
	Waiter jobs.Waiter
}

type Launcher struct {
	table  *jobs.Table
	waiter jobs.Waiter
	logger *zap.Logger
	stdin  *os.File
	stdout *os.File
	stderr *os.File
	env    []string
}

func New(table *jobs.Table, logger *zap.Logger, opts Options) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Launcher{
		table:  table,
		waiter: opts.Waiter,
		logger: logger.Named("launcher"),
		stdin:  opts.Stdin,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
		env:    opts.Env,
	}
	if l.waiter == nil {
		l.waiter = jobs.SystemWaiter
	}
	if l.stdin == nil {
		l.stdin = os.Stdin
	}
	if l.stdout == nil {
		l.stdout = os.Stdout
	}
	if l.stderr == nil {
		l.stderr = os.Stderr
	}
	return l
}

// Validate rejects a pipeline whose first stage redirects output or whose
// second stage redirects input; the pipe already owns those ends.
func Validate(cmd *cmdline.Command) error {
	if cmd.Next == nil {
		return nil
	}
	if cmd.OutputRedirect != "" {
		return ErrPipeOutputRedirect
	}
	if cmd.Next.InputRedirect != "" {
		return ErrPipeInputRedirect
	}
	return nil
}

// Launch runs cmd, a chain of one or two stages, and returns the pids it
// started in stage order. Longer chains must be rejected by the caller.
//
// A single stage is waited on only if it is blocking. For a pipeline the
// last stage is always waited on, and the first stage too when blocking.
// Launch errors leave any stage that did start registered and running.
func (l *Launcher) Launch(cmd *cmdline.Command) ([]int, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}

	group := uuid.NewString()
	if cmd.Next == nil {
		return l.launchSingle(cmd, group)
	}
	return l.launchPipeline(cmd, group)
}

func (l *Launcher) launchSingle(cmd *cmdline.Command, group string) ([]int, error) {
	stdin, stdout, err := openRedirects(cmd)
	if err != nil {
		return nil, err
	}

	in, out := l.stdin, l.stdout
	if stdin != nil {
		in = stdin
		defer stdin.Close()
	}
	if stdout != nil {
		out = stdout
		defer stdout.Close()
	}

	pid, err := l.start(cmd, in, out, !cmd.Blocking)
	if err != nil {
		return nil, err
	}
	l.table.Register(cmd, pid, group)

	if cmd.Blocking {
		l.wait(pid)
	}
	return []int{pid}, nil
}

func (l *Launcher) launchPipeline(cmd *cmdline.Command, group string) ([]int, error) {
	left, right := cmd, cmd.Next

	leftIn := l.stdin
	if left.InputRedirect != "" {
		f, err := openInput(left.InputRedirect)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		leftIn = f
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}

	leftPid, err := l.start(left, leftIn, w, false)
	// The write end must be closed before the right stage starts or it
	// never sees end of input.
	w.Close()
	if err != nil {
		r.Close()
		return nil, err
	}
	l.table.Register(left, leftPid, group)
	pids := []int{leftPid}

	rightOut := l.stdout
	if right.OutputRedirect != "" {
		f, err := openOutput(right.OutputRedirect)
		if err != nil {
			r.Close()
			return pids, err
		}
		defer f.Close()
		rightOut = f
	}

	rightPid, err := l.start(right, r, rightOut, false)
	r.Close()
	if err != nil {
		return pids, err
	}
	l.table.Register(right, rightPid, group)
	pids = append(pids, rightPid)

	l.wait(rightPid)
	if left.Blocking {
		l.wait(leftPid)
	}
	return pids, nil
}

// start execs stage with the given standard streams. The exec.Cmd is only
// used to spawn: the process is released and tracked by pid from then on.
func (l *Launcher) start(stage *cmdline.Command, stdin, stdout *os.File, ownGroup bool) (int, error) {
	if len(stage.Args) == 0 {
		return 0, fmt.Errorf("%w: empty command", cmdline.ErrSyntax)
	}

	c := exec.Command(stage.Args[0], stage.Args[1:]...)
	c.Args = stage.Args
	c.Stdin = stdin
	c.Stdout = stdout
	c.Stderr = l.stderr
	c.Env = l.env
	if ownGroup {
		setProcGroupAttr(c)
	}

	if err := c.Start(); err != nil {
		return 0, fmt.Errorf("error executing command: %w", err)
	}
	pid := c.Process.Pid
	_ = c.Process.Release()

	l.logger.Debug("process started",
		zap.Int("pid", pid),
		zap.String("command", stage.Name()),
		zap.Strings("argv", stage.Args),
	)
	return pid, nil
}

// wait blocks until pid exits, is killed, or stops, and records the result.
func (l *Launcher) wait(pid int) {
	for {
		_, ws, err := l.waiter.Wait4(pid, unix.WUNTRACED)
		if err != nil {
			l.logger.Warn("error waiting for child process", zap.Int("pid", pid), zap.Error(err))
			return
		}
		status, ok := jobs.StatusFromWait(ws)
		if !ok || status == jobs.Running {
			continue
		}
		l.table.SetStatus(pid, status)
		l.logger.Debug("foreground wait done", zap.Int("pid", pid), zap.Stringer("status", status))
		return
	}
}

func openRedirects(cmd *cmdline.Command) (stdin, stdout *os.File, err error) {
	if cmd.InputRedirect != "" {
		if stdin, err = openInput(cmd.InputRedirect); err != nil {
			return nil, nil, err
		}
	}
	if cmd.OutputRedirect != "" {
		if stdout, err = openOutput(cmd.OutputRedirect); err != nil {
			if stdin != nil {
				stdin.Close()
			}
			return nil, nil, err
		}
	}
	return stdin, stdout, nil
}

func openInput(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening input file: %w", err)
	}
	return f, nil
}

func openOutput(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, fmt.Errorf("error opening output file: %w", err)
	}
	return f, nil
}
