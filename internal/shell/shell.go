package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/sdfpt05/jobshell/internal/cmdline"
	"github.com/sdfpt05/jobshell/internal/config"
	"github.com/sdfpt05/jobshell/internal/history"
	"github.com/sdfpt05/jobshell/internal/jobctl"
	"github.com/sdfpt05/jobshell/internal/jobs"
	"github.com/sdfpt05/jobshell/internal/launcher"
)

var (
	// ErrExit is returned by Execute when the user asked to leave.
	ErrExit = errors.New("exit requested")
	// ErrFatal marks failures the interpreter cannot continue after, such
	// as the system refusing to create more processes.
	ErrFatal         = errors.New("fatal")
	ErrTooManyStages = errors.New("only two pipeline stages are supported")
)

// Options overrides the streams the shell and its children use.
type Options struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// Shell owns the history ring and the job table for one interpreter
// session. Close releases both.
type Shell struct {
	config     *config.Config
	logger     *zap.Logger
	history    *history.History
	jobs       *jobs.Table
	launcher   *launcher.Launcher
	control    *jobctl.Controller
	signalChan chan os.Signal
	stdout     io.Writer
	stderr     io.Writer
}

func New(cfg *config.Config, logger *zap.Logger, opts Options) (*Shell, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	var (
		hist *history.History
		err  error
	)
	if cfg.History.Persist {
		hist, err = history.Open(cfg.History.File, cfg.History.Capacity)
		if err != nil {
			return nil, fmt.Errorf("error initializing history: %w", err)
		}
	} else {
		hist = history.New(cfg.History.Capacity)
	}

	table := jobs.NewTable(jobs.SystemWaiter, logger)

	return &Shell{
		config:  cfg,
		logger:  logger,
		history: hist,
		jobs:    table,
		launcher: launcher.New(table, logger, launcher.Options{
			Stdin:  opts.Stdin,
			Stdout: opts.Stdout,
			Stderr: opts.Stderr,
		}),
		control: jobctl.New(table, logger,
			jobctl.WithPollInterval(cfg.Jobs.PollInterval),
			jobctl.WithPruneOnList(cfg.Jobs.PruneOnList),
		),
		signalChan: make(chan os.Signal, 1),
		stdout:     opts.Stdout,
		stderr:     opts.Stderr,
	}, nil
}

// Run reads and executes lines until EOF, quit, or a fatal error.
func (s *Shell) Run() error {
	s.setupSignalHandling()
	defer s.stopSignalHandling()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 s.prompt(),
		HistoryLimit:           s.history.Cap(),
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		return fmt.Errorf("error initializing readline: %w", err)
	}
	defer rl.Close()

	for _, item := range s.history.All() {
		_ = rl.SaveHistory(item)
	}

	interrupts := 0
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if interrupts++; interrupts >= 2 && len(line) == 0 {
				fmt.Fprintln(s.stdout, "\nForced exit")
				return nil
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		interrupts = 0

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		_ = rl.SaveHistory(line)

		if err := s.Execute(line); err != nil {
			switch {
			case errors.Is(err, ErrExit):
				return nil
			case errors.Is(err, ErrFatal):
				return err
			default:
				fmt.Fprintf(s.stderr, "Error: %v\n", err)
			}
		}

		rl.SetPrompt(s.prompt())
	}
}

func (s *Shell) prompt() string {
	dir, err := os.Getwd()
	if err != nil {
		s.logger.Warn("error getting current working directory", zap.Error(err))
		return "$ "
	}
	return fmt.Sprintf("%s$ ", dir)
}

// Execute handles one input line: history recall, then parsing, then
// dispatch. Every line except a recall form is added to the history.
func (s *Shell) Execute(line string) error {
	return s.execute(line, false)
}

func (s *Shell) execute(line string, recalled bool) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if recall, ok := parseRecall(line); ok {
		if recalled {
			return fmt.Errorf("%s: history recall cannot recall itself", line)
		}
		text, err := recall(s.history)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.stdout, text)
		return s.execute(text, true)
	}

	s.history.Add(line)

	cmd, err := cmdline.Parse(line)
	if err != nil {
		return err
	}
	if cmd == nil {
		return nil
	}
	return s.Dispatch(cmd)
}

// Dispatch runs cmd as a builtin when its name is one and it is not piped,
// otherwise hands it to the launcher. Builtins run in the shell's own
// process.
func (s *Shell) Dispatch(cmd *cmdline.Command) error {
	if builtin, ok := s.builtins()[cmd.Name()]; ok {
		if cmd.Next != nil {
			return fmt.Errorf("%s: builtins cannot be used in a pipeline", cmd.Name())
		}
		return builtin(cmd.Args[1:])
	}

	if cmd.Stages() > 2 {
		return ErrTooManyStages
	}

	pids, err := s.launcher.Launch(cmd)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOMEM) {
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
		return err
	}
	s.reportStopped(pids)
	return nil
}

// Close saves the history and releases every job entry.
func (s *Shell) Close() error {
	s.jobs.Close()
	if !s.config.History.Persist {
		return nil
	}
	if err := s.history.Save(); err != nil {
		return fmt.Errorf("error saving history: %w", err)
	}
	return nil
}
