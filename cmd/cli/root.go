package main

import (
	"log/slog"

	"github.com/clintharrison/gempm/pkg/cli/build"
	"github.com/clintharrison/gempm/pkg/cli/check"
	"github.com/clintharrison/gempm/pkg/cli/cleanup"
	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/cli/contents"
	"github.com/clintharrison/gempm/pkg/cli/dependency"
	"github.com/clintharrison/gempm/pkg/cli/environment"
	"github.com/clintharrison/gempm/pkg/cli/exec"
	"github.com/clintharrison/gempm/pkg/cli/generateindex"
	"github.com/clintharrison/gempm/pkg/cli/install"
	"github.com/clintharrison/gempm/pkg/cli/list"
	"github.com/clintharrison/gempm/pkg/cli/outdated"
	"github.com/clintharrison/gempm/pkg/cli/query"
	"github.com/clintharrison/gempm/pkg/cli/resolve"
	"github.com/clintharrison/gempm/pkg/cli/search"
	"github.com/clintharrison/gempm/pkg/cli/sources"
	"github.com/clintharrison/gempm/pkg/cli/specification"
	"github.com/clintharrison/gempm/pkg/cli/uninstall"
	"github.com/clintharrison/gempm/pkg/cli/unpack"
	"github.com/clintharrison/gempm/pkg/cli/update"
	"github.com/clintharrison/gempm/pkg/version"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     version.CLIName,
		Short:   "Install, query and remove .gem packages",
		Version: version.Version,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := clicommon.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Verbose {
				logLevel.Set(slog.LevelDebug)
			}
			slog.Debug("loaded config", "path", cfg.Path, "install_dir", cfg.InstallDir, "sources", cfg.Sources)
			return nil
		},
	}

	clicommon.AddGlobalFlags(cmd)

	cmd.AddCommand(build.NewCommand())
	cmd.AddCommand(check.NewCommand())
	cmd.AddCommand(cleanup.NewCommand())
	cmd.AddCommand(contents.NewCommand())
	cmd.AddCommand(dependency.NewCommand())
	cmd.AddCommand(environment.NewCommand())
	cmd.AddCommand(exec.NewCommand())
	cmd.AddCommand(generateindex.NewCommand())
	cmd.AddCommand(install.NewCommand())
	cmd.AddCommand(list.NewCommand())
	cmd.AddCommand(outdated.NewCommand())
	cmd.AddCommand(query.NewCommand())
	cmd.AddCommand(resolve.NewCommand())
	cmd.AddCommand(search.NewCommand())
	cmd.AddCommand(sources.NewCommand())
	cmd.AddCommand(specification.NewCommand())
	cmd.AddCommand(uninstall.NewCommand())
	cmd.AddCommand(unpack.NewCommand())
	cmd.AddCommand(update.NewCommand())

	return cmd
}
