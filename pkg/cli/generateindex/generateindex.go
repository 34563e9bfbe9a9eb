package generateindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clintharrison/gempm/pkg/repository"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-index [flags] DIR",
		Short: "Write a repository listing for the .gem files in DIR",
		Long: "Write a listing of every .gem file in DIR to DIR/listing.json (or " +
			"listing.yaml), so the directory can be served as a repository.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cmd.Flags().GetString("id")
			if err != nil {
				return errors.Annotate(err, "invalid id flag")
			}
			name, err := cmd.Flags().GetString("name")
			if err != nil {
				return errors.Annotate(err, "invalid name flag")
			}
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return errors.Annotate(err, "invalid format flag")
			}

			dir := args[0]
			if id == "" {
				abs, err := filepath.Abs(dir)
				if err != nil {
					return errors.Wrapf(err, "filepath.Abs(%q)", dir)
				}
				id = filepath.Base(abs)
			}
			listing, err := repository.BuildListing(cmd.Context(), id, dir)
			if err != nil {
				return errors.Annotatef(err, "indexing %s", dir)
			}
			listing.Name = name

			var data []byte
			switch format {
			case "json":
				data, err = json.MarshalIndent(listing, "", "  ")
			case "yaml":
				data, err = yaml.Marshal(listing)
			default:
				return errors.Errorf("unknown format %q, expected json or yaml", format)
			}
			if err != nil {
				return errors.Annotate(err, "encoding listing")
			}
			dest := filepath.Join(dir, "listing."+format)
			if err := os.WriteFile(dest, data, 0o644); err != nil { //nolint:gosec
				return errors.Wrapf(err, "os.WriteFile(%q)", dest)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d packages into %s\n", len(listing.Specs), dest) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().String("id", "", "Repository ID recorded in the listing (default directory name)")
	cmd.Flags().String("name", "", "Human readable repository name")
	cmd.Flags().String("format", "json", "Listing format: json or yaml")
	return cmd
}
