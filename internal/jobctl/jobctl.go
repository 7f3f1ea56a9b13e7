// Package jobctl suspends, resumes, and terminates tracked jobs by pid and
// renders the job listing.
package jobctl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/sdfpt05/jobshell/internal/jobs"
)

var (
	// ErrSignal wraps a failed signal delivery; the table is left as is.
	ErrSignal           = errors.New("kill failed")
	ErrTerminateTimeout = errors.New("process did not exit after interrupt")
)

const (
	defaultPollInterval = 10 * time.Millisecond
	tabStop             = 8
)

// KillFunc delivers sig to a single pid.
type KillFunc func(pid int, sig unix.Signal) error

type Controller struct {
	table        *jobs.Table
	waiter       jobs.Waiter
	kill         KillFunc
	logger       *zap.Logger
	pollInterval time.Duration
	pruneOnList  bool
}

type Option func(*Controller)

func WithKill(kill KillFunc) Option {
	return func(c *Controller) { c.kill = kill }
}

func WithWaiter(w jobs.Waiter) Option {
	return func(c *Controller) { c.waiter = w }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pollInterval = d }
}

// WithPruneOnList drops Terminated entries after they have been listed once.
func WithPruneOnList(prune bool) Option {
	return func(c *Controller) { c.pruneOnList = prune }
}

func New(table *jobs.Table, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		table:        table,
		waiter:       jobs.SystemWaiter,
		kill:         unix.Kill,
		logger:       logger.Named("jobctl"),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) signal(pid int, sig unix.Signal) error {
	if err := c.kill(pid, sig); err != nil {
		c.logger.Debug("signal delivery failed",
			zap.Int("pid", pid),
			zap.Stringer("signal", sig),
			zap.Error(err),
		)
		return fmt.Errorf("%w: pid %d: %w", ErrSignal, pid, err)
	}
	c.logger.Debug("signal delivered", zap.Int("pid", pid), zap.Stringer("signal", sig))
	return nil
}

// Suspend sends a terminal stop to pid and marks it Suspended.
func (c *Controller) Suspend(pid int) error {
	if err := c.signal(pid, unix.SIGTSTP); err != nil {
		return err
	}
	c.table.SetStatus(pid, jobs.Suspended)
	return nil
}

// Resume sends a continue to pid and marks it Running.
func (c *Controller) Resume(pid int) error {
	if err := c.signal(pid, unix.SIGCONT); err != nil {
		return err
	}
	c.table.SetStatus(pid, jobs.Running)
	return nil
}

// Terminate interrupts pid and waits until it is gone or ctx is done. The
// target is always continued after the interrupt: it may have been stopped
// by the kernel (SIGTTIN, SIGTTOU) without the table knowing. The entry is
// marked Terminated only once the exit has been observed.
func (c *Controller) Terminate(ctx context.Context, pid int) error {
	if err := c.signal(pid, unix.SIGINT); err != nil {
		return err
	}
	_ = c.signal(pid, unix.SIGCONT)

	if err := c.awaitExit(ctx, pid); err != nil {
		return err
	}
	c.table.SetStatus(pid, jobs.Terminated)
	return nil
}

func (c *Controller) awaitExit(ctx context.Context, pid int) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		wpid, ws, err := c.waiter.Wait4(pid, unix.WNOHANG)
		switch {
		case errors.Is(err, unix.ECHILD):
			// Not our child: the pid is gone once it can no longer be signalled.
			if probe := c.kill(pid, 0); errors.Is(probe, unix.ESRCH) {
				return nil
			}
		case err != nil:
			return fmt.Errorf("wait for pid %d: %w", pid, err)
		case wpid == pid && (ws.Exited() || ws.Signaled()):
			return nil
		}

		select {
		case <-ctx.Done():
			c.logger.Warn("terminate timed out", zap.Int("pid", pid), zap.Error(ctx.Err()))
			return fmt.Errorf("%w: pid %d", ErrTerminateTimeout, pid)
		case <-ticker.C:
		}
	}
}

// List reconciles the table and writes the job listing to w. Nothing is
// written when there are no jobs.
func (c *Controller) List(w io.Writer) error {
	rows := c.table.List()
	if c.pruneOnList {
		defer c.table.Prune()
	}
	return Render(w, rows)
}

// Render writes rows under a "PID\tStatus\t\tCommand" header. Statuses
// shorter than a tab stop get a second tab so the command column lines up.
func Render(w io.Writer, rows []jobs.Row) error {
	if len(rows) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "PID\tStatus\t\tCommand\n")
	for _, row := range rows {
		status := row.Status.String()
		sep := "\t"
		if len(status) < tabStop {
			sep = "\t\t"
		}
		fmt.Fprintf(bw, "%d\t%s%s%s\n", row.PID, status, sep, strings.Join(row.Args, " "))
	}
	return bw.Flush()
}
