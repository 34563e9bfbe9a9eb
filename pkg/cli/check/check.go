package check

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/gempkg"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/state"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [flags]",
		Short: "Check installed packages and package archives for problems",
		Long: `Check installed packages for missing or unexpected files (--alien, the
default), or check that a .gem archive can be read completely (--verify).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			verify, err := cmd.Flags().GetString("verify")
			if err != nil {
				return errors.Annotate(err, "invalid verify flag")
			}
			if verify != "" {
				if err := verifyArchive(cmd, verify); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", verify) //nolint:errcheck
				return nil
			}

			env, err := clicommon.NewEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close() //nolint:errcheck
			specs, err := env.Layout.LoadSpecs(cmd.Context())
			if err != nil {
				return err
			}
			problems, err := alienFiles(env.Layout, specs)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintln(w, "No problems found") //nolint:errcheck
				return nil
			}
			for _, p := range problems {
				fmt.Fprintln(w, p) //nolint:errcheck
			}
			return errors.Errorf("%d problem(s) found", len(problems))
		},
	}
	cmd.Flags().Bool("alien", true, "Report missing and unexpected files of installed packages")
	cmd.Flags().String("verify", "", "Check that the given .gem archive is readable")
	return cmd
}

func verifyArchive(cmd *cobra.Command, path string) error {
	pkg, err := gempkg.Open(path)
	if err != nil {
		return errors.Annotatef(err, "%s is not a valid package", path)
	}
	defer pkg.Close() //nolint:errcheck
	// test mode reads every entry without writing anything
	if err := pkg.ExtractAll(cmd.Context(), os.TempDir(), true, io.Discard); err != nil {
		return errors.Annotatef(err, "%s is not a valid package", path)
	}
	return nil
}

// alienFiles compares the files each spec records with what is in its
// package directory.
func alienFiles(layout *state.Layout, specs []*manifest.Spec) ([]string, error) {
	var problems []string
	for _, spec := range specs {
		root := layout.GemDir(spec)
		if _, err := os.Stat(root); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("%s: missing package directory", spec.FullName()))
			continue
		}
		var onDisk []string
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			onDisk = append(onDisk, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "listing %q", root)
		}
		for _, f := range spec.Files {
			if !slices.Contains(onDisk, f) {
				problems = append(problems, fmt.Sprintf("%s: missing %s", spec.FullName(), f))
			}
		}
		// specs written without a file manifest have nothing to compare to
		if len(spec.Files) == 0 {
			continue
		}
		slices.Sort(onDisk)
		for _, f := range onDisk {
			if !slices.Contains(spec.Files, f) {
				problems = append(problems, fmt.Sprintf("%s: unexpected %s", spec.FullName(), f))
			}
		}
	}
	return problems, nil
}
