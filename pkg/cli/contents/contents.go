package contents

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/resolver"
	"github.com/clintharrison/gempm/pkg/state"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contents [flags] NAME...",
		Short: "List the files of installed packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := cmd.Flags().GetStringArray("version")
			if err != nil {
				return errors.Annotate(err, "invalid version flag")
			}
			noPrefix, err := cmd.Flags().GetBool("no-prefix")
			if err != nil {
				return errors.Annotate(err, "invalid no-prefix flag")
			}
			deps, err := clicommon.ConstraintsFromArgs(args, versions)
			if err != nil {
				return errors.Wrap(err, "failed to parse package constraints from args")
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

			for _, d := range deps {
				specs := installed.FindName(d.Name, d.Requirement)
				if len(specs) == 0 {
					return &resolver.NotFoundError{FullName: d.String()}
				}
				files, err := packageFiles(env.Layout, specs[len(specs)-1])
				if err != nil {
					return err
				}
				for _, f := range files {
					if !noPrefix {
						f = filepath.Join(env.Layout.GemDir(specs[len(specs)-1]), f)
					}
					fmt.Fprintln(cmd.OutOrStdout(), f) //nolint:errcheck
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayP("version", "v", nil, "Requirement for the named packages")
	cmd.Flags().Bool("no-prefix", false, "Print paths relative to the package directory")
	return cmd
}

// packageFiles lists the files recorded in the spec, falling back to what is
// on disk for specs written without a file manifest.
func packageFiles(layout *state.Layout, spec *manifest.Spec) ([]string, error) {
	if len(spec.Files) > 0 {
		return spec.Files, nil
	}
	root := layout.GemDir(spec)
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing %q", root)
	}
	return files, nil
}
