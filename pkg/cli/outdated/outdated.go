package outdated

import (
	"fmt"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outdated",
		Short: "List installed packages with newer versions available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck
			if _, err := env.RequireRepo(); err != nil {
				return err
			}

			outdated, err := env.Installer(cmd).Outdated(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "failed to compare installed packages")
			}
			for _, o := range outdated {
				fmt.Fprintln(cmd.OutOrStdout(), o) //nolint:errcheck
			}
			return nil
		},
	}
	return cmd
}
