package unpack_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clintharrison/gempm/pkg/cli/clitest"
	"github.com/clintharrison/gempm/pkg/cli/install"
	"github.com/clintharrison/gempm/pkg/cli/unpack"
	"github.com/clintharrison/gempm/pkg/repository/repotest"
	"github.com/clintharrison/gempm/pkg/resolver"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func TestUnpackFile(t *testing.T) {
	t.Parallel()
	archive := repotest.BuildGem(t, t.TempDir(), "hello", "1.0")
	target := t.TempDir()
	home := clitest.NewHome(t)

	out, err := home.Run(t, unpack.NewCommand(), archive, "--target", target, "-t")
	require.NoError(t, err)
	require.Contains(t, out, "lib/hello.rb type=file")
	require.NoDirExists(t, filepath.Join(target, "hello-1.0"))

	_, err = home.Run(t, unpack.NewCommand(), archive, "--target", target)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(target, "hello-1.0", "lib", "hello.rb"))
	require.NoError(t, err)
	require.Equal(t, "# hello 1.0\n", string(data))
}

func TestUnpackInstalled(t *testing.T) {
	t.Parallel()
	repoDir := t.TempDir()
	repotest.BuildGem(t, repoDir, "rake", "0.8.0")
	repotest.BuildGem(t, repoDir, "rake", "0.9.0")
	home := clitest.NewHome(t)
	for _, arg := range []string{"rake=0.8.0", "rake=0.9.0"} {
		_, err := home.Run(t, install.NewCommand(), "--repo", repoDir, arg)
		require.NoError(t, err)
	}
	target := t.TempDir()

	_, err := home.Run(t, unpack.NewCommand(), "rake<0.9", "--target", target)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(target, "rake-0.8.0", "bin", "rake"))

	_, err = home.Run(t, unpack.NewCommand(), "hoe", "--target", target)
	var notFound *resolver.NotFoundError
	require.ErrorAs(t, errors.Cause(err), &notFound)
}
