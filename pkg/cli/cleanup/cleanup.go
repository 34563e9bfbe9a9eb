package cleanup

import (
	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup [flags] [NAME...]",
		Short: "Remove old versions of installed packages",
		Long: "Remove every installed version that is not the newest of its package. " +
			"Versions another package still depends on are left in place.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, err := cmd.Flags().GetBool("dry-run")
			if err != nil {
				return errors.Annotate(err, "invalid dry-run flag")
			}
			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck

			_, err = env.Installer(cmd).Cleanup(cmd.Context(), args, dryRun)
			return errors.Wrap(err, "cleanup failed")
		},
	}
	cmd.Flags().BoolP("dry-run", "n", false, "Print what would be removed without removing")
	return cmd
}
