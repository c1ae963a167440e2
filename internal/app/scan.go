package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/reposync/internal/brew"
	"github.com/blackwell-systems/reposync/internal/installed"
	"github.com/blackwell-systems/reposync/internal/output"
)

func (c *cli) newScanCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Record installed Homebrew packages in the local registry",
		Long: `Scan enumerates every installed Homebrew formula and cask and stores it in
the installed registry. 'reposync run' does the same at startup and then
follows live changes; scan is for a one-off refresh.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			spinner := output.NewSpinner("Enumerating installed packages")
			spinner.SetWriter(cmd.ErrOrStderr())
			if !quiet {
				spinner.Start()
			}
			mirror := installed.NewMirror(st, brew.NewClient(c.cfg.BrewBin), installed.WithLogger(c.logger))
			n := mirror.Sync(cmd.Context())
			spinner.Stop()

			if quiet {
				return nil
			}

			items, err := st.ListInstalled()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, output.RenderInstalledTable(items))
			fmt.Fprintf(out, "\n%d packages recorded\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")
	return cmd
}
