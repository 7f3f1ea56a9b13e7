package jobs

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/sdfpt05/jobshell/internal/cmdline"
)

type Status int

const (
	Running Status = iota
	Suspended
	Terminated
)

func (s Status) String() string {
	switch s {
	case Running:
		return "Running"
	case Suspended:
		return "Suspended"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Entry is one tracked process. Command is the stage that launched it and
// is kept for the listing.
type Entry struct {
	PID     int
	Command *cmdline.Command
	Status  Status
	// Group is shared by every stage started from the same line. It is
	// carried into log records to correlate the stages of a pipeline.
	Group string
}

// Row is one line of the job listing.
type Row struct {
	PID    int
	Status Status
	Args   []string
}

// StatusFromWait maps a wait result to a job status. ok is false when ws
// carries no state change the table cares about.
func StatusFromWait(ws unix.WaitStatus) (status Status, ok bool) {
	switch {
	case ws.Exited(), ws.Signaled():
		return Terminated, true
	case ws.Stopped():
		return Suspended, true
	case ws.Continued():
		return Running, true
	default:
		return 0, false
	}
}
