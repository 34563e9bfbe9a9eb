package update

import (
	"fmt"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/cli/install"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [flags] [NAME...]",
		Short: "Install the newest version of outdated packages",
		Long: "Install the newest available version of every outdated package, or only " +
			"of the named ones. Older versions stay installed until cleanup removes them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := install.Options(cmd)
			if err != nil {
				return err
			}
			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck
			if _, err := env.RequireRepo(); err != nil {
				return err
			}

			if _, err := env.Installer(cmd).Update(cmd.Context(), args, opts); err != nil {
				fmt.Fprintf(cmd.OutOrStderr(), "ERROR: Unable to update packages:\n%v\n", err) //nolint:errcheck
				return err
			}
			return nil
		},
	}
	install.AddInstallFlags(cmd)
	return cmd
}
