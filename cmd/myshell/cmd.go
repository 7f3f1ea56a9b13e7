package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sdfpt05/jobshell/internal/config"
	"github.com/sdfpt05/jobshell/internal/logging"
	"github.com/sdfpt05/jobshell/internal/shell"
)

func newRootCmd() *cobra.Command {
	var (
		configFile string
		debug      bool
	)

	root := &cobra.Command{
		Use:           "myshell",
		Short:         "Interactive shell with pipelines, redirection and job control",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}

			logger, err := logging.New(cfg.Log, debug)
			if err != nil {
				return fmt.Errorf("error initializing logger: %w", err)
			}
			defer logger.Sync()

			s, err := shell.New(cfg, logger, shell.Options{})
			if err != nil {
				return fmt.Errorf("error initializing shell: %w", err)
			}
			logger.Info("shell started", zap.String("home", cfg.HomeDir), zap.Bool("debug", debug))

			runErr := s.Run()
			if err := s.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			return runErr
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yml", "path to the YAML config file")
	root.Flags().BoolVarP(&debug, "debug", "d", false, "log launched processes to stderr")

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
