package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/reposync/internal/brew"
	"github.com/blackwell-systems/reposync/internal/daemon"
	"github.com/blackwell-systems/reposync/internal/output"
	"github.com/blackwell-systems/reposync/internal/prefs"
	"github.com/blackwell-systems/reposync/internal/proxy"
)

func (c *cli) newStatusCmd() *cobra.Command {
	var pidFile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state, repositories and scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pidFile == "" {
				pidFile = filepath.Join(filepath.Dir(c.cfg.DB), "reposync.pid")
			}
			out := cmd.OutOrStdout()

			running, err := daemon.IsRunning(pidFile)
			if err != nil {
				return fmt.Errorf("failed to check daemon status: %w", err)
			}
			state := "stopped"
			if running {
				state = "running"
			}
			fmt.Fprintf(out, "Daemon:     %s\n", state)

			p, err := prefs.NewFileStore(c.cfg.Prefs, c.logger).Load()
			if err != nil {
				fmt.Fprintf(out, "Preferences: unreadable (%v), using defaults\n", err)
			}
			cfg, err := proxy.Resolve(p.Proxy())
			if err != nil {
				fmt.Fprintf(out, "Proxy:      %s (invalid: %v)\n", proxy.NoProxy, err)
			} else {
				fmt.Fprintf(out, "Proxy:      %s\n", cfg)
			}
			fmt.Fprintf(out, "Auto sync:  %s\n", p.AutoSync)

			st, err := c.openExistingStore()
			if err != nil {
				return err
			}
			defer st.Close()

			items, err := st.ListInstalled()
			if err != nil {
				return notInitialized(err)
			}
			fmt.Fprintf(out, "Installed:  %d packages\n", len(items))

			known := make([]string, len(items))
			for i, item := range items {
				known[i] = item.PackageName
			}
			if stale, _ := brew.NewClient(c.cfg.BrewBin).CheckStaleness(cmd.Context(), known); stale > 0 {
				fmt.Fprintf(out, "            %d new packages since last scan (run 'reposync scan')\n", stale)
			}

			repos, err := st.ListRepositories()
			if err != nil {
				return notInitialized(err)
			}
			fmt.Fprintln(out)
			fmt.Fprint(out, output.RenderRepositoryTable(repos))

			registered, err := st.ListJobs()
			if err != nil {
				return notInitialized(err)
			}
			fmt.Fprintln(out)
			fmt.Fprint(out, output.RenderJobTable(registered))
			return nil
		},
	}

	cmd.Flags().StringVar(&pidFile, "pid-file", "", "PID file path (default: next to the database)")
	return cmd
}
