package uninstall

import (
	"fmt"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/installer"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall [flags] NAME[REQUIREMENT]...",
		Short: "Remove installed packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck

			var opts installer.UninstallOptions
			if opts.All, err = cmd.Flags().GetBool("all"); err != nil {
				return errors.Annotate(err, "invalid all flag")
			}
			if opts.IgnoreDependencies, err = cmd.Flags().GetBool("ignore-dependencies"); err != nil {
				return errors.Annotate(err, "invalid ignore-dependencies flag")
			}
			if opts.DryRun, err = cmd.Flags().GetBool("dry-run"); err != nil {
				return errors.Annotate(err, "invalid dry-run flag")
			}
			versions, err := cmd.Flags().GetStringArray("version")
			if err != nil {
				return errors.Annotate(err, "invalid version flag")
			}
			deps, err := clicommon.ConstraintsFromArgs(args, versions)
			if err != nil {
				return errors.Wrap(err, "failed to parse package constraints from args")
			}

			inst := env.Installer(cmd)
			for _, d := range deps {
				if _, err := inst.Uninstall(cmd.Context(), d.Name, d.Requirement, opts); err != nil {
					fmt.Fprintf(cmd.OutOrStderr(), "ERROR: Unable to uninstall %s:\n%v\n", d.Name, err) //nolint:errcheck
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayP("version", "v", nil, "Requirement for the named packages, e.g. '< 2'")
	cmd.Flags().BoolP("all", "a", false, "Remove every matching version")
	cmd.Flags().BoolP("ignore-dependencies", "I", false, "Remove even if other packages depend on it")
	cmd.Flags().BoolP("dry-run", "n", false, "Print what would be removed without removing")
	return cmd
}
