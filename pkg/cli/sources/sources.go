package sources

import (
	"fmt"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/repository"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources [flags]",
		Short: "List the configured repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clearCache, err := cmd.Flags().GetBool("clear-cache")
			if err != nil {
				return errors.Annotate(err, "invalid clear-cache flag")
			}
			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck

			w := cmd.OutOrStdout()
			if !clearCache {
				fmt.Fprint(w, "*** CURRENT SOURCES ***\n\n") //nolint:errcheck
				for _, s := range env.Config.Sources {
					fmt.Fprintln(w, s) //nolint:errcheck
				}
				return nil
			}

			repo, err := env.RequireRepo()
			if err != nil {
				return err
			}
			for _, r := range repo.Repositories() {
				remote, ok := r.(*repository.HTTPRepository)
				if !ok {
					continue
				}
				cached, err := remote.ClearCachedListing()
				if err != nil {
					return errors.Annotatef(err, "clearing cached listing of %s", remote.ID())
				}
				if cached {
					fmt.Fprintf(w, "Cleared cached listing for %s\n", remote.ID()) //nolint:errcheck
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("clear-cache", false, "Remove cached repository listings")
	return cmd
}
