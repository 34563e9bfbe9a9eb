package environment

import (
	"fmt"
	"strings"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/version"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

var fields = []string{"installdir", "cachedir", "sources", "version"}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "environment [" + strings.Join(fields, "|") + "]",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration, after the config file, environment
and flags are applied, in config file format. With an argument only that
value is printed.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: fields,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := clicommon.LoadConfig(cmd)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				data, err := cfg.MarshalTOML()
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "# %s\n%s", cfg.Path, data) //nolint:errcheck
				return nil
			}
			switch args[0] {
			case "installdir":
				fmt.Fprintln(w, cfg.InstallDir) //nolint:errcheck
			case "cachedir":
				fmt.Fprintln(w, cfg.CacheDir) //nolint:errcheck
			case "sources":
				for _, s := range cfg.Sources {
					fmt.Fprintln(w, s) //nolint:errcheck
				}
			case "version":
				fmt.Fprintln(w, version.Version) //nolint:errcheck
			default:
				return errors.Errorf("unknown environment value %q", args[0])
			}
			return nil
		},
	}
	return cmd
}
