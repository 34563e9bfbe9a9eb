// Package repotest builds package archives and serves repositories for tests.
package repotest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/clintharrison/gempm/pkg/gempkg"
	"github.com/clintharrison/gempm/pkg/repository"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// ListingName is the file Serve publishes the listing under.
const ListingName = "listing.json"

// Dep is shorthand for a raw dependency.
func Dep(name, requirement string) manifest.RawDependency {
	return manifest.RawDependency{Name: name, Requirement: requirement}
}

// BuildGem packs a small package named name at version into dir and returns
// the archive path. The package holds lib/<name>.rb and bin/<name>.
func BuildGem(t testing.TB, dir, name, version string, deps ...manifest.RawDependency) string {
	t.Helper()
	src := t.TempDir()
	raw := manifest.RawSpec{
		Name:         name,
		Version:      version,
		Summary:      name + " test package",
		Authors:      []string{"Test Author"},
		Dependencies: deps,
	}
	meta, err := yaml.Marshal(&raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(src, gempkg.MetadataName), meta, 0o644)) //nolint:gosec

	require.NoError(t, os.MkdirAll(filepath.Join(src, "lib"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "bin"), 0o755))
	lib := filepath.Join(src, "lib", name+".rb")
	require.NoError(t, os.WriteFile(lib, []byte("# "+name+" "+version+"\n"), 0o644)) //nolint:gosec
	bin := filepath.Join(src, "bin", name)
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho "+name+" "+version+"\n"), 0o755)) //nolint:gosec

	spec, err := manifest.ParseSpecYAML(meta)
	require.NoError(t, err)
	dest := filepath.Join(dir, spec.FullName()+".gem")
	_, err = gempkg.Build(t.Context(), src, dest, gempkg.WithGzipCompression)
	require.NoError(t, err)
	return dest
}

// WriteListing writes a listing of every archive in dir to dir/listing.json.
func WriteListing(t testing.TB, dir, id string) string {
	t.Helper()
	l, err := repository.BuildListing(t.Context(), id, dir)
	require.NoError(t, err)
	data, err := json.MarshalIndent(l, "", "  ")
	require.NoError(t, err)
	p := filepath.Join(dir, ListingName)
	require.NoError(t, os.WriteFile(p, data, 0o644)) //nolint:gosec
	return p
}

// Serve publishes dir over HTTP with a listing of its archives and returns
// the listing URL. The server is closed when the test ends.
func Serve(t testing.TB, dir, id string) string {
	t.Helper()
	WriteListing(t, dir, id)
	server := httptest.NewServer(http.FileServer(http.Dir(dir)))
	t.Cleanup(server.Close)
	return server.URL + "/" + ListingName
}
