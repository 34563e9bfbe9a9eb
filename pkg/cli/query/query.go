package query

import (
	"fmt"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/sourceindex"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

// ErrNotInstalled is returned by "query --installed" when nothing matches, so
// scripts can rely on the exit status.
var ErrNotInstalled = errors.New("no matching package is installed")

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [flags]",
		Short: "Query installed or available packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			nameExpr, err := flags.GetString("name-matches")
			if err != nil {
				return errors.Annotate(err, "invalid name-matches flag")
			}
			installedCheck, err := flags.GetBool("installed")
			if err != nil {
				return errors.Annotate(err, "invalid installed flag")
			}
			src, err := clicommon.GetSource(cmd, clicommon.SourceLocal)
			if err != nil {
				return err
			}
			details, err := flags.GetBool("details")
			if err != nil {
				return errors.Annotate(err, "invalid details flag")
			}
			versions, err := flags.GetStringArray("version")
			if err != nil {
				return errors.Annotate(err, "invalid version flag")
			}
			req, err := manifest.ParseRequirement(versions...)
			if err != nil {
				return errors.Annotate(err, "invalid --version")
			}

			pattern := sourceindex.All()
			if nameExpr != "" {
				pattern, err = sourceindex.CompileRegexp(nameExpr, false)
				if err != nil {
					return errors.Annotatef(err, "invalid name pattern %q", nameExpr)
				}
			}
			if installedCheck {
				if nameExpr == "" {
					return errors.New("--installed needs --name-matches")
				}
				// the check is always against installed packages
				src = clicommon.SourceLocal
			}

			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck
			idx, err := env.Index(cmd, src)
			if err != nil {
				return errors.Wrap(err, "failed to load packages")
			}
			found := idx.Search(pattern, req)

			if installedCheck {
				fmt.Fprintln(cmd.OutOrStdout(), len(found) > 0) //nolint:errcheck
				if len(found) == 0 {
					return ErrNotInstalled
				}
				return nil
			}
			clicommon.PrintSpecList(cmd.OutOrStdout(), found, details)
			return nil
		},
	}
	clicommon.AddSourceFlags(cmd, clicommon.SourceLocal)
	cmd.Flags().StringP("name-matches", "n", "", "Package names must match this regular expression")
	cmd.Flags().BoolP("installed", "i", false, "Print true or false depending on whether a match is installed")
	cmd.Flags().StringArrayP("version", "v", nil, "Only versions satisfying this requirement")
	cmd.Flags().BoolP("details", "d", false, "Show summary, authors and homepage")
	return cmd
}
