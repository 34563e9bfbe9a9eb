package list

import (
	"fmt"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/sourceindex"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

var headers = map[clicommon.Source]string{
	clicommon.SourceLocal:  "LOCAL",
	clicommon.SourceRemote: "REMOTE",
	clicommon.SourceBoth:   "LOCAL AND REMOTE",
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [flags] [PREFIX]",
		Short: "List installed or available packages starting with PREFIX",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck

			src, err := clicommon.GetSource(cmd, clicommon.SourceLocal)
			if err != nil {
				return err
			}
			details, err := cmd.Flags().GetBool("details")
			if err != nil {
				return errors.Annotate(err, "invalid details flag")
			}

			idx, err := env.Index(cmd, src)
			if err != nil {
				return errors.Wrap(err, "failed to load packages")
			}
			pattern := sourceindex.All()
			if len(args) == 1 {
				pattern = sourceindex.Prefix(args[0])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n*** %s PACKAGES ***\n\n", headers[src]) //nolint:errcheck
			clicommon.PrintSpecList(cmd.OutOrStdout(), idx.Search(pattern, manifest.Requirement{}), details)
			return nil
		},
	}
	clicommon.AddSourceFlags(cmd, clicommon.SourceLocal)
	cmd.Flags().BoolP("details", "d", false, "Show summary, authors and homepage")
	return cmd
}
