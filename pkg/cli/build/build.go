package build

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/clintharrison/gempm/pkg/gempkg"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/state"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [flags] <package-directory>",
		Short: "Build a .gem archive from a directory holding metadata.yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := cmd.Flags().GetString("output")
			if err != nil {
				_, _ = fmt.Fprintf(cmd.OutOrStderr(), "invalid output flag: %v", err)
				return errors.Annotate(err, "invalid output flag")
			}
			compression, err := cmd.Flags().GetString("compress")
			if err != nil {
				return errors.Annotate(err, "invalid compress flag")
			}

			// validate input directory
			inputDir, err := filepath.Abs(args[0])
			if err != nil {
				return errors.Wrapf(err, "filepath.Abs(%q)", args[0])
			}
			di, err := os.Stat(inputDir)
			if err != nil {
				return errors.Wrapf(err, "os.Stat(%q)", inputDir)
			}
			if !di.IsDir() {
				return errors.Errorf("input path %q must be a directory", inputDir)
			}

			// default to <full name>.gem in the working directory
			if output == "" {
				spec, err := readMetadata(inputDir)
				if err != nil {
					return err
				}
				output = spec.FullName() + state.ArchiveExt
			}

			spec, err := gempkg.Build(cmd.Context(), inputDir, output, gempkg.WithCompression(compression))
			if err != nil {
				return errors.Annotatef(err, "building %s", inputDir)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Successfully built gem")       //nolint:errcheck
			fmt.Fprintf(w, "  Name: %s\n", spec.Name)       //nolint:errcheck
			fmt.Fprintf(w, "  Version: %s\n", spec.Version) //nolint:errcheck
			fmt.Fprintf(w, "  File: %s\n", output)          //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output .gem file path (default <name>-<version>.gem)")
	cmd.Flags().String("compress", "gzip", "Archive compression: gzip, xz or none")

	return cmd
}

func readMetadata(dir string) (*manifest.Spec, error) {
	p := filepath.Join(dir, gempkg.MetadataName)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Wrapf(err, "os.ReadFile(%q)", p)
	}
	spec, err := manifest.ParseSpecYAML(data)
	return spec, errors.Annotatef(err, "parsing %q", p)
}
