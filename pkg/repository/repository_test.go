package repository_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clintharrison/gempm/pkg/gempkg"
	"github.com/clintharrison/gempm/pkg/repository"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/repository/repotest"
	"github.com/stretchr/testify/require"
)

func fullNames(specs []*manifest.Spec) []string {
	out := []string{}
	for _, s := range specs {
		out = append(out, s.FullName())
	}
	return out
}

func TestMultiRepository(t *testing.T) {
	t.Parallel()

	dirA, dirB, dirC := t.TempDir(), t.TempDir(), t.TempDir()
	pkgA := repotest.BuildGem(t, dirA, "dummy-package", "1.0.0")
	pkgB := repotest.BuildGem(t, dirB, "dummy-package", "1.0.1")
	pkgC := repotest.BuildGem(t, dirC, "dummy-package", "1.0.2")

	repo := repository.NewMultiRepository(
		repository.NewLocalFileRepository(pkgA),
		repository.NewLocalFileRepository(pkgB),
	)

	repo.AddRepository(
		repository.NewLocalFileRepository(pkgC),
	)

	ctx := t.Context()
	specs, err := repo.FetchSpecs(ctx)
	require.NoError(t, err)

	t.Logf("MultiRepository String(): %s", repo.String())
	require.Len(t, specs, 3, "expected one package for each .gem file in MultiRepository")
	require.Equal(t, []string{
		"dummy-package-1.0.0",
		"dummy-package-1.0.1",
		"dummy-package-1.0.2",
	}, fullNames(specs), "repository order is kept")

	dest := filepath.Join(t.TempDir(), "out.gem")
	require.NoError(t, repo.Download(ctx, specs[2], dest, false))
	got, err := gempkg.ReadSpec(dest)
	require.NoError(t, err)
	require.Equal(t, "dummy-package-1.0.2", got.FullName())
}

func TestMultiRepositoryFirstWins(t *testing.T) {
	t.Parallel()
	dirA, dirB := t.TempDir(), t.TempDir()
	repotest.BuildGem(t, dirA, "rake", "0.9.0")
	repotest.BuildGem(t, dirB, "rake", "0.9.0")
	repotest.BuildGem(t, dirB, "rake", "0.8.0")

	first := repository.NewLocalFileRepository(dirA)
	second := repository.NewLocalFileRepository(dirB)
	repo := repository.NewMultiRepository(first, second)
	specs, err := repo.FetchSpecs(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"rake-0.9.0", "rake-0.8.0"}, fullNames(specs))

	// the duplicate is downloaded from the first repository
	p, ok := first.PathFor(specs[0])
	require.True(t, ok)
	require.Equal(t, dirA, filepath.Dir(p))
}

func TestMultiRepositoryUnknownSpec(t *testing.T) {
	t.Parallel()
	repo := repository.NewMultiRepository()
	specs, err := repo.FetchSpecs(t.Context())
	require.NoError(t, err)
	require.Empty(t, specs)
	stranger := &manifest.Spec{Name: "x", Version: manifest.MustParseVersion("1")}
	require.ErrorContains(t, repo.Download(t.Context(), stranger, filepath.Join(t.TempDir(), "x.gem"), false),
		"not found in any repository")
}

func TestLocalFileRepositoryMissingPath(t *testing.T) {
	t.Parallel()
	repo := repository.NewLocalFileRepository(filepath.Join(t.TempDir(), "nope.gem"))
	_, err := repo.FetchSpecs(t.Context())
	require.Error(t, err)
}

func TestLocalFileRepositorySkipsBrokenArchive(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	good := repotest.BuildGem(t, dir, "good", "1.0")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken-1.0.gem"), []byte("not an archive"), 0o644)) //nolint:gosec

	repo := repository.NewLocalFileRepository(dir)
	specs, err := repo.FetchSpecs(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"good-1.0"}, fullNames(specs))
	p, ok := repo.PathFor(specs[0])
	require.True(t, ok)
	require.Equal(t, good, p)

	l, err := repository.BuildListing(t.Context(), "local", dir)
	require.NoError(t, err)
	require.Len(t, l.Specs, 1)
}

func TestHTTPRepository(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	repotest.BuildGem(t, dir, "rake", "0.8.0")
	repotest.BuildGem(t, dir, "mytool", "1.0", repotest.Dep("rake", ">= 0.8"))
	listingURL := repotest.Serve(t, dir, "test-repo")

	repo, err := repository.NewHTTPRepository(listingURL)
	require.NoError(t, err)
	require.Equal(t, listingURL, repo.ID(), "ID is the URL until fetched")

	specs, err := repo.FetchSpecs(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"mytool-1.0", "rake-0.8.0"}, fullNames(specs))
	require.Equal(t, "test-repo", repo.ID())
	require.Equal(t, "rake (>= 0.8)", specs[0].Dependencies[0].String())

	dest := filepath.Join(t.TempDir(), "cache", "mytool-1.0.gem")
	require.NoError(t, repo.Download(t.Context(), specs[0], dest, false))
	got, err := gempkg.ReadSpec(dest)
	require.NoError(t, err)
	require.Equal(t, "mytool-1.0", got.FullName())

	dry := filepath.Join(t.TempDir(), "dry.gem")
	require.NoError(t, repo.Download(t.Context(), specs[1], dry, true))
	_, err = os.Stat(dry)
	require.True(t, os.IsNotExist(err), "dry run writes nothing")
}

func TestHTTPRepositoryFileURLAndYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	repotest.BuildGem(t, dir, "rake", "0.9.0")
	listing := `id: yaml-repo
specs:
  - name: rake
    version: 0.9.0
    url: rake-0.9.0.gem
  - name: broken
    version: not-a-version
    url: broken.gem
  - name: nourl
    version: "1"
`
	p := filepath.Join(dir, "listing.yaml")
	require.NoError(t, os.WriteFile(p, []byte(listing), 0o644)) //nolint:gosec

	repo, err := repository.NewHTTPRepository("file://" + p)
	require.NoError(t, err)
	specs, err := repo.FetchSpecs(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"rake-0.9.0"}, fullNames(specs), "malformed entries are skipped")

	dest := filepath.Join(t.TempDir(), "rake.gem")
	require.NoError(t, repo.Download(t.Context(), specs[0], dest, false))
}

func TestHTTPRepositoryErrors(t *testing.T) {
	t.Parallel()
	_, err := repository.NewHTTPRepository("ftp://example.com/listing.json")
	require.ErrorContains(t, err, "invalid URL scheme")

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	repo, err := repository.NewHTTPRepository(server.URL + "/listing.json")
	require.NoError(t, err)
	_, err = repo.FetchSpecs(t.Context())
	require.ErrorContains(t, err, "unexpected status")
}

func TestHTTPRepositoryClientTimeout(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	repo, err := repository.NewHTTPRepository(server.URL+"/listing.json",
		repository.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	require.NoError(t, err)
	start := time.Now()
	_, err = repo.FetchSpecs(t.Context())
	require.ErrorContains(t, err, "Client.Timeout")
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestHTTPRepositoryListingCache(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	repotest.BuildGem(t, dir, "rake", "0.9.0")
	repotest.WriteListing(t, dir, "cached-repo")

	var hits atomic.Int32
	var accept atomic.Value
	files := http.FileServer(http.Dir(dir))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/"+repotest.ListingName {
			hits.Add(1)
			accept.Store(r.Header.Get("Accept"))
		}
		files.ServeHTTP(w, r)
	}))
	listingURL := server.URL + "/" + repotest.ListingName

	cache, err := repository.OpenListingCache(t.TempDir(), nil)
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck

	fresh, err := repository.NewHTTPRepository(listingURL, repository.WithListingCache(cache, time.Hour))
	require.NoError(t, err)
	for range 2 {
		specs, err := fresh.FetchSpecs(t.Context())
		require.NoError(t, err)
		require.Equal(t, []string{"rake-0.9.0"}, fullNames(specs))
	}
	require.Equal(t, int32(1), hits.Load(), "second fetch is served from the cache")
	require.Contains(t, accept.Load(), "application/json")

	// a zero ttl always refetches, falling back to the stale copy when offline
	stale, err := repository.NewHTTPRepository(listingURL, repository.WithListingCache(cache, 0))
	require.NoError(t, err)
	_, err = stale.FetchSpecs(t.Context())
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())

	server.Close()
	specs, err := stale.FetchSpecs(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"rake-0.9.0"}, fullNames(specs))

	// clearing the cache leaves nothing to fall back on
	cleared, err := stale.ClearCachedListing()
	require.NoError(t, err)
	require.True(t, cleared)
	_, err = stale.FetchSpecs(t.Context())
	require.Error(t, err)

	uncached, err := repository.NewHTTPRepository(listingURL)
	require.NoError(t, err)
	cleared, err = uncached.ClearCachedListing()
	require.NoError(t, err)
	require.False(t, cleared)
	_, err = uncached.FetchSpecs(t.Context())
	require.Error(t, err)
}

func TestListingCacheRoundTrip(t *testing.T) {
	t.Parallel()
	cache, err := repository.OpenListingCache(filepath.Join(t.TempDir(), "nested"), nil)
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck

	_, _, ok, err := cache.Get("k")
	require.NoError(t, err)
	require.False(t, ok)

	now := time.Unix(1700000000, 0)
	require.NoError(t, cache.Put("k", []byte("doc"), now))
	data, stored, ok, err := cache.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "doc", string(data))
	require.True(t, now.Equal(stored))

	require.NoError(t, cache.Delete("k"))
	_, _, ok, err = cache.Get("k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewFromURLsAndIndex(t *testing.T) {
	t.Parallel()
	remote := t.TempDir()
	repotest.BuildGem(t, remote, "rake", "0.9.0")
	listingURL := repotest.Serve(t, remote, "remote")

	local := t.TempDir()
	repotest.BuildGem(t, local, "mytool", "1.0", repotest.Dep("rake", ">= 0.8"))

	multi, err := repository.NewFromURLs([]string{local, listingURL})
	require.NoError(t, err)
	require.Len(t, multi.Repositories(), 2)

	idx, err := repository.Index(t.Context(), multi, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"mytool-1.0", "rake-0.9.0"}, fullNames(idx.Specs()))

	_, err = repository.NewFromURLs([]string{"gopher://nope"})
	require.Error(t, err)
}

func TestParseListingJSON(t *testing.T) {
	t.Parallel()
	l, err := repository.ParseListing([]byte(`{"id":"r","specs":[{"name":"a","version":"1.2","url":"a-1.2.gem"}]}`))
	require.NoError(t, err)
	require.Equal(t, "r", l.ID)
	require.Len(t, l.Specs, 1)
	require.Equal(t, "a-1.2.gem", l.Specs[0].URL)

	_, err = repository.ParseListing([]byte("specs: [unterminated"))
	require.Error(t, err)
}
