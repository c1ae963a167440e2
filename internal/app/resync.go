package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/reposync/internal/output"
	"github.com/blackwell-systems/reposync/internal/resync"
	"github.com/blackwell-systems/reposync/internal/syncsvc"
)

func (c *cli) newResyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Drop freshness markers and fetch every repository index",
		Long: `Resync clears the stored Last-Modified and ETag of every repository and
forces a full download of each index, using the configured proxy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			st, _, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			svc := syncsvc.New(st, c.newDownloader(), c.cfg.CacheDir, syncsvc.WithLogger(c.logger))
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			spinner := output.NewSpinner("Resyncing repositories")
			spinner.SetWriter(cmd.ErrOrStderr())
			spinner.Start()

			if err := resync.NewCoordinator(st, svc, resync.WithLogger(c.logger)).ForceSyncAll(ctx); err != nil {
				spinner.Stop()
				return err
			}
			// The coordinator only queues the forced pass. A normal pass queued
			// behind it returns once the forced one has finished.
			summary, err := svc.Run(ctx, syncsvc.RequestNormal)
			spinner.Stop()
			if err != nil {
				return err
			}

			repos, err := st.ListRepositories()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), output.RenderRepositoryTable(repos))
			if summary.Failed > 0 {
				return fmt.Errorf("%d repositories failed to sync", summary.Failed)
			}
			return nil
		},
	}
}
