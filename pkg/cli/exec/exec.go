package exec

import (
	"context"
	"io"
	"log/slog"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/resolver"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [flags] NAME [-- ARGS...]",
		Short: "Run an executable of an installed package",
		Long: "Run bin/<executable> from the newest installed version of NAME. The " +
			"executable defaults to the package name.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := cmd.Flags().GetStringArray("version")
			if err != nil {
				return errors.Annotate(err, "invalid version flag")
			}
			executable, err := cmd.Flags().GetString("executable")
			if err != nil {
				return errors.Annotate(err, "invalid executable flag")
			}
			if err := checkExecutableName(executable); err != nil {
				return err
			}
			req, err := manifest.ParseRequirement(versions...)
			if err != nil {
				return errors.Annotate(err, "invalid --version")
			}

			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck
			installed, err := env.Layout.Installed(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "failed to load installed packages")
			}
			specs := installed.FindName(args[0], req)
			if len(specs) == 0 {
				return &resolver.NotFoundError{FullName: manifest.Dependency{Name: args[0], Requirement: req}.String()}
			}
			if executable == "" {
				executable = args[0]
			}
			binPath := filepath.Join(env.Layout.GemDir(specs[len(specs)-1]), "bin", executable)
			return run(cmd.Context(), binPath, args[1:], cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringArrayP("version", "v", nil, "Requirement for the package version to run")
	cmd.Flags().StringP("executable", "e", "", "Executable under bin/ to run (default NAME)")
	return cmd
}

// checkExecutableName keeps the executable inside the package's bin
// directory.
func checkExecutableName(name string) error {
	if name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return errors.Errorf("invalid executable %q: must be a file name under bin/", name)
	}
	return nil
}

func run(ctx context.Context, binPath string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if _, err := os.Stat(binPath); err != nil {
		return errors.Annotatef(err, "no executable %s", filepath.Base(binPath))
	}
	cmd := osexec.CommandContext(ctx, binPath, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = stdin
	slog.Debug("running package executable", "path", binPath, "cmd", cmd.String())
	return cmd.Run() //nolint:wrapcheck
}
