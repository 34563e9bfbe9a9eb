package resolve

import (
	"fmt"
	"slices"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/installer"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [flags] rake 'mytool>=1.0'",
		Short: "Show which package versions an install would pick",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck

			if _, err := env.RequireRepo(); err != nil {
				return errors.Wrap(err, "failed to initialize resolver")
			}

			// parse the human-friendly-ish constraints
			constraints, err := clicommon.ConstraintsFromArgs(args, nil)
			if err != nil {
				return errors.Wrap(err, "failed to parse package constraints from args")
			}

			var opts installer.InstallOptions
			if opts.IgnoreDependencies, err = cmd.Flags().GetBool("ignore-dependencies"); err != nil {
				return errors.Annotate(err, "invalid ignore-dependencies flag")
			}
			if opts.Force, err = cmd.Flags().GetBool("ignore-installed"); err != nil {
				return errors.Annotate(err, "invalid ignore-installed flag")
			}

			plan, err := env.Installer(cmd).Plan(cmd.Context(), constraints, opts)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStderr(), "ERROR: Unable to resolve packages:\n%v\n", err) //nolint:errcheck
				return errors.Wrap(err, "failed to resolve packages")
			}

			installed := map[*manifest.Spec]bool{}
			for _, s := range plan.Satisfied {
				installed[s] = true
			}
			result := slices.Concat(plan.Install, plan.Satisfied)
			slices.SortFunc(result, manifest.CompareSpecs)

			cmd.OutOrStdout().Write([]byte("Resolved packages:\n")) //nolint:errcheck
			for _, s := range result {
				if installed[s] {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s (installed)\n", s.FullName()) //nolint:errcheck
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", s.FullName()) //nolint:errcheck
			}

			return nil
		},
	}
	cmd.Flags().Bool("ignore-dependencies", false, "Resolve only the named packages")
	cmd.Flags().Bool("ignore-installed", false, "Resolve as if nothing were installed")
	return cmd
}
