//go:build linux

package jobctl

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/sdfpt05/jobshell/internal/cmdline"
	"github.com/sdfpt05/jobshell/internal/jobs"
)

// nonexistentPid is above the kernel's maximum pid_max.
const nonexistentPid = 1 << 30

func startSleep(t *testing.T, table *jobs.Table, args ...string) int {
	t.Helper()
	if len(args) == 0 {
		args = []string{"sleep", "30"}
	}
	cmd := exec.Command(args[0], args[1:]...)
	// A group of its own keeps the child out of a possibly orphaned group,
	// where the kernel discards SIGTSTP.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	t.Cleanup(func() {
		_ = unix.Kill(pid, unix.SIGKILL)
		_, _, _ = jobs.SystemWaiter.Wait4(pid, 0)
	})
	table.Register(&cmdline.Command{Args: args, Blocking: false}, pid, "")
	return pid
}

func reconciledStatus(t *testing.T, table *jobs.Table, pid int, want jobs.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		table.Reconcile()
		e, err := table.Get(pid)
		return err == nil && e.Status == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSuspendResumeTerminate(t *testing.T) {
	logger := zaptest.NewLogger(t)
	table := jobs.NewTable(jobs.SystemWaiter, logger)
	c := New(table, logger)
	pid := startSleep(t, table)

	require.NoError(t, c.Suspend(pid))
	reconciledStatus(t, table, pid, jobs.Suspended)

	require.NoError(t, c.Resume(pid))
	reconciledStatus(t, table, pid, jobs.Running)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Terminate(ctx, pid))

	e, err := table.Get(pid)
	require.NoError(t, err)
	assert.Equal(t, jobs.Terminated, e.Status)
}

func TestTerminateSuspendedJob(t *testing.T) {
	logger := zaptest.NewLogger(t)
	table := jobs.NewTable(jobs.SystemWaiter, logger)
	c := New(table, logger)
	pid := startSleep(t, table)

	require.NoError(t, c.Suspend(pid))
	reconciledStatus(t, table, pid, jobs.Suspended)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Terminate(ctx, pid))

	e, err := table.Get(pid)
	require.NoError(t, err)
	assert.Equal(t, jobs.Terminated, e.Status)
}

func TestTerminateJobStoppedOutsideSuspend(t *testing.T) {
	logger := zaptest.NewLogger(t)
	table := jobs.NewTable(jobs.SystemWaiter, logger)
	c := New(table, logger)

	for _, sig := range []unix.Signal{unix.SIGTTIN, unix.SIGSTOP} {
		t.Run(sig.String(), func(t *testing.T) {
			pid := startSleep(t, table)

			// Stopped behind the table's back: the entry still reads Running.
			require.NoError(t, unix.Kill(pid, sig))
			require.Eventually(t, func() bool {
				return processState(pid) == 'T'
			}, 5*time.Second, 10*time.Millisecond)
			e, err := table.Get(pid)
			require.NoError(t, err)
			require.Equal(t, jobs.Running, e.Status)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, c.Terminate(ctx, pid))

			e, err = table.Get(pid)
			require.NoError(t, err)
			assert.Equal(t, jobs.Terminated, e.Status)
		})
	}
}

// processState returns the state letter from /proc/<pid>/stat, or 0.
func processState(pid int) byte {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0
	}
	i := bytes.LastIndexByte(data, ')')
	if i < 0 || i+2 >= len(data) {
		return 0
	}
	return data[i+2]
}

func TestTerminateNonexistentPid(t *testing.T) {
	logger := zaptest.NewLogger(t)
	table := jobs.NewTable(jobs.SystemWaiter, logger)
	table.Register(&cmdline.Command{Args: []string{"ghost"}}, nonexistentPid, "")
	c := New(table, logger)

	err := c.Terminate(context.Background(), nonexistentPid)
	require.ErrorIs(t, err, ErrSignal)
	assert.ErrorIs(t, err, unix.ESRCH)

	e, err := table.Get(nonexistentPid)
	require.NoError(t, err)
	assert.Equal(t, jobs.Running, e.Status)
	assert.Equal(t, 1, table.Len())
}

func TestSignalFailureLeavesTableUntouched(t *testing.T) {
	table := jobs.NewTable(jobs.SystemWaiter, zaptest.NewLogger(t))
	table.Register(&cmdline.Command{Args: []string{"x"}}, 10, "")
	c := New(table, zaptest.NewLogger(t), WithKill(func(int, unix.Signal) error {
		return unix.EPERM
	}))

	assert.ErrorIs(t, c.Suspend(10), ErrSignal)
	assert.ErrorIs(t, c.Resume(10), ErrSignal)
	assert.ErrorIs(t, c.Terminate(context.Background(), 10), unix.EPERM)

	e, err := table.Get(10)
	require.NoError(t, err)
	assert.Equal(t, jobs.Running, e.Status)
}

func TestTerminateIgnoredInterruptTimesOut(t *testing.T) {
	logger := zaptest.NewLogger(t)
	table := jobs.NewTable(jobs.SystemWaiter, logger)
	c := New(table, logger, WithPollInterval(5*time.Millisecond))
	pid := startSleep(t, table, "sh", "-c", "trap '' INT; while :; do sleep 1; done")

	// Give the shell time to install its trap.
	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := c.Terminate(ctx, pid)
	require.ErrorIs(t, err, ErrTerminateTimeout)

	e, err := table.Get(pid)
	require.NoError(t, err)
	assert.Equal(t, jobs.Running, e.Status)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, nil))
	assert.Empty(t, buf.String())

	rows := []jobs.Row{
		{PID: 12, Status: jobs.Running, Args: []string{"sleep", "10"}},
		{PID: 345, Status: jobs.Terminated, Args: []string{"ls"}},
	}
	require.NoError(t, Render(&buf, rows))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"PID", "Status", "Command"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"12", "Running", "sleep", "10"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"345", "Terminated", "ls"}, strings.Fields(lines[2]))
}

func TestRenderTabLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, []jobs.Row{
		{PID: 12, Status: jobs.Running, Args: []string{"sleep", "10"}},
		{PID: 13, Status: jobs.Suspended, Args: []string{"cat"}},
		{PID: 14, Status: jobs.Terminated, Args: []string{"ls", "-l"}},
	}))

	assert.Equal(t, "PID\tStatus\t\tCommand\n"+
		"12\tRunning\t\tsleep 10\n"+
		"13\tSuspended\tcat\n"+
		"14\tTerminated\tls -l\n", buf.String())
}

func TestListPrunesWhenConfigured(t *testing.T) {
	table := jobs.NewTable(jobs.SystemWaiter, zaptest.NewLogger(t))
	table.Register(&cmdline.Command{Args: []string{"done"}}, nonexistentPid, "")
	table.SetStatus(nonexistentPid, jobs.Terminated)
	c := New(table, zaptest.NewLogger(t), WithPruneOnList(true))

	var buf bytes.Buffer
	require.NoError(t, c.List(&buf))
	assert.Contains(t, buf.String(), "Terminated")
	assert.Equal(t, 0, table.Len())
}
