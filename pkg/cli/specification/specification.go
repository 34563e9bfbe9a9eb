package specification

import (
	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/resolver"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "specification [flags] NAME",
		Aliases: []string{"spec"},
		Short:   "Print the metadata of a package as YAML",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			src, err := clicommon.GetSource(cmd, clicommon.SourceLocal)
			if err != nil {
				return err
			}
			all, err := flags.GetBool("all")
			if err != nil {
				return errors.Annotate(err, "invalid all flag")
			}
			versions, err := flags.GetStringArray("version")
			if err != nil {
				return errors.Annotate(err, "invalid version flag")
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
			idx, err := env.Index(cmd, src)
			if err != nil {
				return errors.Wrap(err, "failed to load packages")
			}

			specs := idx.FindName(args[0], req)
			if len(specs) == 0 {
				dep := manifest.Dependency{Name: args[0], Requirement: req}
				return &resolver.NotFoundError{FullName: dep.String()}
			}
			if !all {
				// newest only
				specs = specs[len(specs)-1:]
			}
			w := cmd.OutOrStdout()
			for i, s := range specs {
				data, err := manifest.EncodeYAML(s)
				if err != nil {
					return err
				}
				if i > 0 {
					w.Write([]byte("---\n")) //nolint:errcheck
				}
				w.Write(data) //nolint:errcheck
			}
			return nil
		},
	}
	clicommon.AddSourceFlags(cmd, clicommon.SourceLocal)
	cmd.Flags().StringArrayP("version", "v", nil, "Requirement the printed version must satisfy")
	cmd.Flags().BoolP("all", "a", false, "Print every matching version, oldest first")
	return cmd
}
