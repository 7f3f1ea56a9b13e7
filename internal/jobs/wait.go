package jobs

import "golang.org/x/sys/unix"

// Waiter queries the state of a process. It follows wait4(2): a zero pid
// result with a nil error means nothing changed.
type Waiter interface {
	Wait4(pid int, options int) (int, unix.WaitStatus, error)
}

type WaiterFunc func(pid int, options int) (int, unix.WaitStatus, error)

func (f WaiterFunc) Wait4(pid int, options int) (int, unix.WaitStatus, error) {
	return f(pid, options)
}

// SystemWaiter calls wait4 on the real process table, retrying on EINTR.
var SystemWaiter Waiter = WaiterFunc(func(pid int, options int) (int, unix.WaitStatus, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, options, nil)
		if err == unix.EINTR {
			continue
		}
		return wpid, ws, err
	}
})

const reconcileOptions = unix.WNOHANG | unix.WUNTRACED | unix.WCONTINUED
