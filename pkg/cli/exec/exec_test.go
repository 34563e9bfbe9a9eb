package exec_test

import (
	"runtime"
	"testing"

	"github.com/clintharrison/gempm/pkg/cli/clitest"
	"github.com/clintharrison/gempm/pkg/cli/exec"
	"github.com/clintharrison/gempm/pkg/cli/install"
	"github.com/clintharrison/gempm/pkg/repository/repotest"
	"github.com/stretchr/testify/require"
)

func TestExec(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("package executables are shell scripts")
	}
	repoDir := t.TempDir()
	repotest.BuildGem(t, repoDir, "rake", "0.8.0")
	repotest.BuildGem(t, repoDir, "rake", "0.9.0")
	home := clitest.NewHome(t)
	for _, arg := range []string{"rake=0.8.0", "rake=0.9.0"} {
		_, err := home.Run(t, install.NewCommand(), "--repo", repoDir, arg)
		require.NoError(t, err)
	}

	out, err := home.Run(t, exec.NewCommand(), "rake")
	require.NoError(t, err)
	require.Equal(t, "rake 0.9.0\n", out)

	out, err = home.Run(t, exec.NewCommand(), "rake", "-v", "< 0.9")
	require.NoError(t, err)
	require.Equal(t, "rake 0.8.0\n", out)

	_, err = home.Run(t, exec.NewCommand(), "rake", "-e", "other")
	require.ErrorContains(t, err, "no executable other")

	for _, name := range []string{"../../x", "../bin/rake", "..", ".", "sub/rake"} {
		_, err = home.Run(t, exec.NewCommand(), "rake", "-e", name)
		require.ErrorContains(t, err, "invalid executable", name)
	}

	_, err = home.Run(t, exec.NewCommand(), "hoe")
	require.EqualError(t, err, "hoe (>= 0) not found")
}
