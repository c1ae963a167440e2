package app

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/reposync/internal/output"
	"github.com/blackwell-systems/reposync/internal/store"
)

func (c *cli) newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage package repositories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "add <name> <address>",
		Short:   "Add a repository",
		Example: "  reposync repo add main https://repo.example.com/main",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateAddress(args[1]); err != nil {
				return err
			}

			st, _, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			repo, err := st.AddRepository(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Added repository %s (id %d)\n", repo.Name, repo.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List repositories",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.openExistingStore()
			if err != nil {
				return err
			}
			defer st.Close()

			repos, err := st.ListRepositories()
			if err != nil {
				return notInitialized(err)
			}
			fmt.Fprint(cmd.OutOrStdout(), output.RenderRepositoryTable(repos))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a repository",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openExistingStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.RemoveRepository(args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no repository named %q", args[0])
				}
				return notInitialized(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed repository %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func validateAddress(address string) error {
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid address %q: want an http or https URL", address)
	}
	return nil
}
