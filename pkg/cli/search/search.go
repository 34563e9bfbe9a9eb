package search

import (
	"fmt"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/sourceindex"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [flags] [REGEXP]",
		Short: "Find packages whose name matches REGEXP",
		Long: "Find packages whose name matches REGEXP, ignoring case. Searches the " +
			"repositories unless --local or --both is given.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck

			src, err := clicommon.GetSource(cmd, clicommon.SourceRemote)
			if err != nil {
				return err
			}
			details, err := cmd.Flags().GetBool("details")
			if err != nil {
				return errors.Annotate(err, "invalid details flag")
			}
			pattern := sourceindex.All()
			if len(args) == 1 {
				pattern, err = sourceindex.CompileRegexp(args[0], true)
				if err != nil {
					return errors.Annotatef(err, "invalid search pattern %q", args[0])
				}
			}

			idx, err := env.Index(cmd, src)
			if err != nil {
				return errors.Wrap(err, "failed to load packages")
			}
			found := idx.Search(pattern, manifest.Requirement{})
			if len(found) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No packages found") //nolint:errcheck
				return nil
			}
			clicommon.PrintSpecList(cmd.OutOrStdout(), found, details)
			return nil
		},
	}
	clicommon.AddSourceFlags(cmd, clicommon.SourceRemote)
	cmd.Flags().BoolP("details", "d", false, "Show summary, authors and homepage")
	return cmd
}
