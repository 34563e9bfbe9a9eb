// Package clitest runs commands the way the gempm binary does, against a
// throwaway home directory.
package clitest

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/clintharrison/gempm/pkg/cli/clicommon"
	"github.com/clintharrison/gempm/pkg/state"
	"github.com/spf13/cobra"
)

// Home is an isolated set of gempm directories.
type Home struct {
	Dir string
}

func NewHome(t testing.TB) *Home {
	t.Helper()
	return &Home{Dir: t.TempDir()}
}

func (h *Home) InstallDir() string { return filepath.Join(h.Dir, "gems") }

func (h *Home) Layout() *state.Layout { return state.NewLayout(h.InstallDir(), nil) }

// Args are the global flags pointing every directory into h.
func (h *Home) Args() []string {
	return []string{
		"--" + clicommon.FlagConfig, filepath.Join(h.Dir, "config.toml"),
		"--" + clicommon.FlagInstallDir, h.InstallDir(),
		"--" + clicommon.FlagCacheDir, filepath.Join(h.Dir, "cache"),
	}
}

// Run executes cmd as a subcommand of a root carrying the global flags and
// returns everything it printed.
func (h *Home) Run(t testing.TB, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "gempm", SilenceUsage: true, SilenceErrors: true}
	clicommon.AddGlobalFlags(root)
	root.AddCommand(cmd)

	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	full := append([]string{cmd.Name()}, h.Args()...)
	root.SetArgs(append(full, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}
