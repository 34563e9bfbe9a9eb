package dependency

import (
	"fmt"
	"io"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/sourceindex"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dependency [flags] [REGEXP]",
		Aliases: []string{"deps"},
		Short:   "Show the dependencies of packages matching REGEXP",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			src, err := clicommon.GetSource(cmd, clicommon.SourceLocal)
			if err != nil {
				return err
			}
			reverse, err := flags.GetBool("reverse-dependencies")
			if err != nil {
				return errors.Annotate(err, "invalid reverse-dependencies flag")
			}
			pipe, err := flags.GetBool("pipe")
			if err != nil {
				return errors.Annotate(err, "invalid pipe flag")
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
			if len(args) == 1 {
				if pattern, err = sourceindex.CompileRegexp(args[0], true); err != nil {
					return errors.Annotatef(err, "invalid name pattern %q", args[0])
				}
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

			specs := idx.Search(pattern, req)
			if len(specs) == 0 {
				return errors.Errorf("no packages found matching %s", pattern)
			}
			w := cmd.OutOrStdout()
			for _, s := range specs {
				if pipe {
					printPipe(w, s)
					continue
				}
				printSpec(w, idx, s, reverse)
			}
			return nil
		},
	}
	clicommon.AddSourceFlags(cmd, clicommon.SourceLocal)
	cmd.Flags().StringArrayP("version", "v", nil, "Only versions satisfying this requirement")
	cmd.Flags().BoolP("reverse-dependencies", "R", false, "Also show packages that depend on each match")
	cmd.Flags().BoolP("pipe", "p", false, "Print dependencies one per line, ready to pass to install")
	cmd.MarkFlagsMutuallyExclusive("pipe", "reverse-dependencies")
	return cmd
}

//nolint:errcheck
func printSpec(w io.Writer, idx *sourceindex.Index, s *manifest.Spec, reverse bool) {
	fmt.Fprintf(w, "Gem %s\n", s.FullName())
	for _, d := range s.Dependencies {
		fmt.Fprintf(w, "  %s\n", d)
	}
	if reverse {
		if users := idx.ReverseDependencies(s); len(users) > 0 {
			fmt.Fprintln(w, "  Used by")
			for _, u := range users {
				fmt.Fprintf(w, "    %s (%s)\n", u.Dependent.FullName(), u.Dependency)
			}
		}
	}
	fmt.Fprintln(w)
}

func printPipe(w io.Writer, s *manifest.Spec) {
	for _, d := range s.Dependencies {
		fmt.Fprintf(w, "%s --version '%s'\n", d.Name, d.Requirement) //nolint:errcheck
	}
}
