package app

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/reposync/internal/prefs"
)

func (c *cli) newPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change preferences",
		Long: `Preferences live in a YAML file that 'reposync run' watches. Changes made
with 'prefs set' take effect in a running service immediately.

Keys:
  unstable_update    true|false, toggling it forces a full resync
  auto_sync          always|wifi_only|wifi_plugged_in|never
  clean_up_interval  Go duration, 0 disables cleanup (e.g. 24h)
  proxy_type         direct|http|socks
  proxy_host         proxy host name
  proxy_port         proxy port`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print current preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs := prefs.NewFileStore(c.cfg.Prefs, c.logger)
			p, err := fs.Load()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, key := range prefs.Keys {
				value, err := p.Get(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\n", key, value)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Change one preference",
		Example: "  reposync prefs set auto_sync always\n  reposync prefs set clean_up_interval 72h",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := prefs.NewFileStore(c.cfg.Prefs, c.logger)
			p, err := fs.Load()
			if err != nil {
				return err
			}
			if err := p.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := fs.Save(p); err != nil {
				return err
			}
			value, _ := p.Get(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s = %s\n", args[0], value)
			return nil
		},
	})

	return cmd
}
