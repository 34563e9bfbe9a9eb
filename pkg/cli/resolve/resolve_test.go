package resolve_test

import (
	"net/url"
	"testing"

	"github.com/clintharrison/gempm/pkg/cli/clitest"
	"github.com/clintharrison/gempm/pkg/cli/install"
	"github.com/clintharrison/gempm/pkg/cli/resolve"
	"github.com/clintharrison/gempm/pkg/repository/repotest"
	"github.com/clintharrison/gempm/pkg/resolver"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func buildRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repotest.BuildGem(t, dir, "rake", "0.8.0")
	repotest.BuildGem(t, dir, "rake", "0.9.0")
	repotest.BuildGem(t, dir, "mytool", "1.0", repotest.Dep("rake", ">= 0.8"))
	repotest.BuildGem(t, dir, "legacy", "0.1", repotest.Dep("rake", "= 0.8.0"))
	return dir
}

func TestResolveE2E_File(t *testing.T) {
	t.Parallel()
	dir := buildRepo(t)
	listing := repotest.WriteListing(t, dir, "test")
	fileURL := (&url.URL{Scheme: "file", Path: listing}).String()

	out, err := clitest.NewHome(t).Run(t, resolve.NewCommand(), "--repo", fileURL, "mytool>=1.0", "legacy")
	require.NoError(t, err)
	require.Equal(t, "Resolved packages:\n  - legacy-0.1\n  - mytool-1.0\n  - rake-0.8.0\n", out)
}

func TestResolveE2E_HTTP(t *testing.T) {
	t.Parallel()
	listingURL := repotest.Serve(t, buildRepo(t), "test")
	home := clitest.NewHome(t)

	out, err := home.Run(t, resolve.NewCommand(), "--repo", listingURL, "mytool")
	require.NoError(t, err)
	require.Equal(t, "Resolved packages:\n  - mytool-1.0\n  - rake-0.9.0\n", out)

	out, err = home.Run(t, resolve.NewCommand(), "--repo", listingURL, "mytool", "--ignore-dependencies")
	require.NoError(t, err)
	require.Equal(t, "Resolved packages:\n  - mytool-1.0\n", out)

	out, err = home.Run(t, resolve.NewCommand(), "--repo", listingURL, "legacy", "rake>0.8.0")
	var unresolvable *resolver.UnresolvableError
	require.ErrorAs(t, errors.Cause(err), &unresolvable)
	require.Contains(t, out, "ERROR: Unable to resolve packages:")
}

func TestResolveWithInstalled(t *testing.T) {
	t.Parallel()
	repoDir := buildRepo(t)
	home := clitest.NewHome(t)
	_, err := home.Run(t, install.NewCommand(), "--repo", repoDir, "rake=0.8.0")
	require.NoError(t, err)

	out, err := home.Run(t, resolve.NewCommand(), "--repo", repoDir, "mytool")
	require.NoError(t, err)
	require.Equal(t, "Resolved packages:\n  - mytool-1.0\n  - rake-0.8.0 (installed)\n", out)

	out, err = home.Run(t, resolve.NewCommand(), "--repo", repoDir, "mytool", "--ignore-installed")
	require.NoError(t, err)
	require.Equal(t, "Resolved packages:\n  - mytool-1.0\n  - rake-0.9.0\n", out)
}

func TestResolveWithoutRepository(t *testing.T) {
	t.Parallel()
	_, err := clitest.NewHome(t).Run(t, resolve.NewCommand(), "rake")
	require.ErrorContains(t, err, "no repositories configured")
}
