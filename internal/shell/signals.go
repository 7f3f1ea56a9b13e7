package shell

import (
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// The shell shares the terminal's process group with its foreground
// children, so keyboard signals reach both. It absorbs them and leaves the
// children to act. SIGCHLD is not handled: reaping here would hide exit
// statuses from the job table.
func (s *Shell) setupSignalHandling() {
	signal.Notify(s.signalChan, syscall.SIGINT, syscall.SIGTSTP, syscall.SIGQUIT)
	go s.handleSignals()
}

func (s *Shell) stopSignalHandling() {
	signal.Stop(s.signalChan)
	close(s.signalChan)
}

func (s *Shell) handleSignals() {
	for sig := range s.signalChan {
		s.logger.Debug("received signal", zap.Stringer("signal", sig))
	}
}
