package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/job"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		var stageErr *job.StageError
		if errors.As(err, &stageErr) {
			fmt.Fprintf(os.Stderr, "run failed at %s stage: %v\n", stageErr.Stage, stageErr.Err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

type app struct {
	configFile string
	cfg        *config.Config
	logCloser  io.Closer
}

// newRootCmd builds the CLI around a. The caller closes a once Execute
// returns, since cobra skips post-run hooks after a failed command.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "scraper",
		Short:         "Scrape laptop listings and load them into Google Sheets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runOnce(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Optional YAML config file")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Scrape once and load a new worksheet (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runOnce(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "schedule",
			Short: "Run on a fixed interval until interrupted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.schedule(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "preview",
			Short: "Scrape once and print the sorted table without touching the spreadsheet",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.preview(cmd.Context(), cmd.OutOrStdout())
			},
		},
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, level, closer, err := newLogger(cfg.Verbose, cfg.LogDir, time.Now())
	if err != nil {
		return err
	}
	a.logCloser = closer
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
	return nil
}

func (a *app) close() {
	if a.logCloser == nil {
		return
	}
	if err := a.logCloser.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
	}
	a.logCloser = nil
}

func newLogger(verbose bool, logDir string, now time.Time) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var out io.Writer = os.Stdout
	var closer io.Closer
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(logFilePath(logDir, now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level, closer, nil
}

func logFilePath(dir string, now time.Time) string {
	return filepath.Join(dir, "logs_"+now.Format("20060102")+".log")
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
