package install

import (
	"fmt"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/installer"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [flags] NAME[REQUIREMENT]... | FILE.gem...",
		Short: "Install packages and their dependencies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck

			opts, err := Options(cmd)
			if err != nil {
				return err
			}
			versions, err := cmd.Flags().GetStringArray("version")
			if err != nil {
				return errors.Annotate(err, "invalid version flag")
			}

			// archive files are installed from disk, everything else is a
			// package name with an optional requirement
			fileArgs, rest, err := clicommon.FindFileArgs(args)
			if err != nil {
				return errors.Wrap(err, "failed to parse file arguments")
			}
			opts.LocalFiles = fileArgs
			deps, err := clicommon.ConstraintsFromArgs(rest, versions)
			if err != nil {
				return errors.Wrap(err, "failed to parse package constraints from args")
			}

			_, err = env.Installer(cmd).Install(cmd.Context(), deps, opts)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStderr(), "ERROR: Unable to install packages:\n%v\n", err) //nolint:errcheck
				return err
			}
			return nil
		},
	}
	AddInstallFlags(cmd)
	cmd.Flags().StringArrayP("version", "v", nil, "Requirement for the named packages, e.g. '>= 1.0'")
	return cmd
}

// AddInstallFlags adds the flags shared by install and update.
func AddInstallFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("dry-run", "n", false, "Print what would be installed without installing")
	cmd.Flags().BoolP("force", "f", false, "Reinstall packages even when already installed")
	cmd.Flags().Bool("ignore-dependencies", false, "Install only the named packages, not their dependencies")
}

// Options reads the flags added by AddInstallFlags.
func Options(cmd *cobra.Command) (installer.InstallOptions, error) {
	var opts installer.InstallOptions
	var err error
	if opts.DryRun, err = cmd.Flags().GetBool("dry-run"); err != nil {
		return opts, errors.Annotate(err, "invalid dry-run flag")
	}
	if opts.Force, err = cmd.Flags().GetBool("force"); err != nil {
		return opts, errors.Annotate(err, "invalid force flag")
	}
	if opts.IgnoreDependencies, err = cmd.Flags().GetBool("ignore-dependencies"); err != nil {
		return opts, errors.Annotate(err, "invalid ignore-dependencies flag")
	}
	return opts, nil
}
