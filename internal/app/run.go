package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/reposync/internal/daemon"
	"github.com/blackwell-systems/reposync/internal/output"
)

type runOptions struct {
	daemon  bool
	child   bool
	stop    bool
	pidFile string
	logFile string
}

func (c *cli) newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the background sync service",
		Long: `Run mirrors installed packages, watches the preference file and keeps the
periodic sync and cleanup jobs registered until stopped.

Run modes:
  • Foreground (default): Run in the current terminal, Ctrl+C to stop
  • Daemon: Detach and run in the background
  • Stop: Stop a running daemon`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  reposync run

  # Run as background daemon
  reposync run --daemon

  # Stop running daemon
  reposync run --stop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.daemon, "daemon", false, "run as background daemon")
	cmd.Flags().BoolVar(&opts.child, strings.TrimPrefix(daemon.ChildFlag, "--"), false, "internal flag for daemon child process")
	cmd.Flags().BoolVar(&opts.stop, "stop", false, "stop running daemon")
	cmd.Flags().StringVar(&opts.pidFile, "pid-file", "", "PID file path (default: next to the database)")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "log file path (default: next to the database)")
	_ = cmd.Flags().MarkHidden(strings.TrimPrefix(daemon.ChildFlag, "--"))

	return cmd
}

func (c *cli) run(cmd *cobra.Command, opts *runOptions) error {
	if opts.pidFile == "" {
		opts.pidFile = filepath.Join(filepath.Dir(c.cfg.DB), "reposync.pid")
	}
	if opts.logFile == "" {
		opts.logFile = filepath.Join(filepath.Dir(c.cfg.DB), "reposync.log")
	}

	switch {
	case opts.stop:
		return stopDaemon(cmd, opts.pidFile)
	case opts.daemon:
		return startDaemon(cmd, opts)
	case opts.child:
		return c.runChild(opts.pidFile)
	default:
		return c.runForeground(cmd)
	}
}

func stopDaemon(cmd *cobra.Command, pidFile string) error {
	running, err := daemon.IsRunning(pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon")
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()
	if err := daemon.Stop(pidFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")
	return nil
}

func startDaemon(cmd *cobra.Command, opts *runOptions) error {
	running, err := daemon.IsRunning(opts.pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		return fmt.Errorf("daemon already running (PID file: %s)", opts.pidFile)
	}

	if err := daemon.Start(opts.pidFile, opts.logFile, childArgs(os.Args[1:])...); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✓ Daemon started")
	fmt.Fprintf(out, "  PID file: %s\n", opts.pidFile)
	fmt.Fprintf(out, "  Log file: %s\n", opts.logFile)
	fmt.Fprintln(out, "\nTo stop: reposync run --stop")
	return nil
}

// childArgs drops the --daemon flag so the re-executed process runs the
// service instead of forking again.
func childArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "--daemon" || strings.HasPrefix(arg, "--daemon=") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

func (c *cli) runChild(pidFile string) error {
	var svc *service
	start := func() error {
		var err error
		svc, err = c.assemble(context.Background())
		if err != nil {
			return err
		}
		return svc.orch.Start(context.Background())
	}
	stop := func() {
		svc.orch.Stop()
		svc.close()
	}
	return daemon.Run(pidFile, start, stop)
}

func (c *cli) runForeground(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := c.assemble(ctx)
	if err != nil {
		return err
	}
	defer svc.close()

	if err := svc.orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "reposync running (press Ctrl+C to stop)")

	select {
	case <-ctx.Done():
	case <-svc.orch.Done():
	}
	svc.orch.Stop()
	return nil
}
