package unpack

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/gempkg"
	"github.com/clintharrison/gempm/pkg/resolver"
	"github.com/clintharrison/gempm/pkg/state"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unpack [flags] FILE.gem | NAME[REQUIREMENT]",
		Short: "Extract a package archive into a directory",
		Long: "Extract a .gem file, or the cached archive of an installed package, into " +
			"<target>/<name>-<version>.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			target, err := cmd.Flags().GetString("target")
			if err != nil {
				return errors.AddStack(err)
			}
			test, err := cmd.Flags().GetBool("test")
			if err != nil {
				return errors.AddStack(err)
			}

			packagePath := args[0]
			if !strings.HasSuffix(packagePath, state.ArchiveExt) {
				env, err := clicommon.NewEnv(cmd)
				if err != nil {
					return err
				}
				defer env.Close() //nolint:errcheck
				if packagePath, err = cachedArchive(cmd, env, args[0]); err != nil {
					return err
				}
			}

			// the real work
			pkg, err := gempkg.Open(packagePath)
			if err != nil {
				return errors.Wrapf(err, "gempkg.Open(%q)", packagePath)
			}
			// package must remain open until after extraction
			defer func() { _ = pkg.Close() }()

			return pkg.ExtractAll(ctx, filepath.Join(target, pkg.Spec.FullName()), test, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolP("test", "t", false, "List the archive without writing files")
	cmd.Flags().String("target", ".", "Directory to unpack into")

	return cmd
}

// cachedArchive finds the downloaded archive of the newest installed version
// matching arg.
func cachedArchive(cmd *cobra.Command, env *clicommon.Env, arg string) (string, error) {
	dep, err := clicommon.ParseConstraint(arg)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse package constraint")
	}
	installed, err := env.Layout.Installed(cmd.Context())
	if err != nil {
		return "", errors.Wrap(err, "failed to load installed packages")
	}
	specs := installed.FindName(dep.Name, dep.Requirement)
	if len(specs) == 0 {
		return "", &resolver.NotFoundError{FullName: dep.String()}
	}
	spec := specs[len(specs)-1]
	p := env.Layout.CachePath(spec)
	if _, err := os.Stat(p); err != nil {
		return "", errors.Annotatef(err, "no cached archive for %s", spec.FullName())
	}
	return p, nil
}
