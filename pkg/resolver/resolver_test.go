package resolver

import (
	"testing"

	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/sourceindex"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func mkDep(name string, req ...string) manifest.Dependency {
	return manifest.Dependency{Name: name, Requirement: manifest.MustParseRequirement(req...)}
}

func mkSpec(name, version string, deps ...manifest.Dependency) *manifest.Spec {
	return &manifest.Spec{
		Name:         name,
		Version:      manifest.MustParseVersion(version),
		Dependencies: deps,
	}
}

func fullNames(specs []*manifest.Spec) []string {
	out := []string{}
	for _, s := range specs {
		out = append(out, s.FullName())
	}
	return out
}

func TestResolver(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		// input
		universe        []*manifest.Spec
		desiredPackages []manifest.Dependency
		// output
		expected    []string
		expectError bool
	}{
		{
			name: "matches highest possible version",
			universe: []*manifest.Spec{
				mkSpec("pkgA", "1.0.0"),
				mkSpec("pkgA", "1.1.0"),
			},
			desiredPackages: []manifest.Dependency{mkDep("pkgA", ">= 1.0.0")},
			expected:        []string{"pkgA-1.1.0"},
		},
		{
			name: "matches only possible version",
			universe: []*manifest.Spec{
				mkSpec("pkgA", "1.0.0"),
				mkSpec("pkgA", "1.1.0"),
				mkSpec("pkgB", "1.1.0"),
				mkSpec("pkgC", "2.0.1"),
			},
			desiredPackages: []manifest.Dependency{mkDep("pkgB", ">= 1.1.0")},
			expected:        []string{"pkgB-1.1.0"},
		},
		{
			name: "matches version with max constraint",
			universe: []*manifest.Spec{
				mkSpec("pkgA", "1.0.0"),
				mkSpec("pkgA", "1.1.0"),
			},
			desiredPackages: []manifest.Dependency{
				mkDep("pkgA", ">= 0"),
				mkDep("pkgA", "< 1.1.0"),
			},
			expected: []string{"pkgA-1.0.0"},
		},
		{
			name: "includes the latest dependency",
			universe: []*manifest.Spec{
				mkSpec("pkgA", "1.0.0", mkDep("libdep", ">= 2.0.0")),
				mkSpec("libdep", "2.0.0"),
				mkSpec("libdep", "2.0.10"),
			},
			desiredPackages: []manifest.Dependency{mkDep("pkgA")},
			expected:        []string{"libdep-2.0.10", "pkgA-1.0.0"},
		},
		{
			name: "pessimistic constraint keeps the minor version",
			universe: []*manifest.Spec{
				mkSpec("pkgA", "1.0", mkDep("libdep", "~> 2.1")),
				mkSpec("libdep", "2.1.0"),
				mkSpec("libdep", "2.1.7"),
				mkSpec("libdep", "2.2.0"),
			},
			desiredPackages: []manifest.Dependency{mkDep("pkgA")},
			expected:        []string{"libdep-2.1.7", "pkgA-1.0"},
		},
		{
			name: "backtracks to an older version when the newest conflicts",
			universe: []*manifest.Spec{
				mkSpec("app", "2.0", mkDep("lib", ">= 3")),
				mkSpec("app", "1.0", mkDep("lib", "< 3")),
				mkSpec("lib", "2.5"),
				mkSpec("lib", "3.0"),
			},
			desiredPackages: []manifest.Dependency{mkDep("app"), mkDep("lib", "< 3")},
			expected:        []string{"app-1.0", "lib-2.5"},
		},
		{
			name: "reproduces sample repository",
			universe: []*manifest.Spec{
				mkSpec("com.example.tool", "1.2.3",
					mkDep("fbink", ">= 0.6.10", "< 0.7.0"),
					mkDep("lua"),
					mkDep("testmin", ">= 1.0.0"),
					mkDep("testmax", "< 1.0.0"),
				),
				mkSpec("fbink", "0.6.9", mkDep("testmin", ">= 1.9.0"), mkDep("testmax", "< 1.0.0")),
				mkSpec("fbink", "0.6.10", mkDep("testmin", ">= 1.0.0"), mkDep("testmax", "< 1.0.0")),
				mkSpec("fbink", "0.6.11", mkDep("testmin", ">= 1.0.0"), mkDep("testmax", "< 1.0.0")),
				mkSpec("lua", "9.2.3", mkDep("testmin", ">= 1.0.1", "< 1.9.0")),
				mkSpec("lua", "1.2.5", mkDep("testmin", ">= 1.0.1", "< 1.9.0")),
				mkSpec("lua", "4.5.6", mkDep("testmin", ">= 1.9.0", "< 2.0.0")),
				mkSpec("testmin", "0.1.2"),
				mkSpec("testmin", "0.99.99"),
				mkSpec("testmin", "1.0.0"),
				mkSpec("testmin", "1.1.1"),
				mkSpec("testmin", "1.999.999"),
				mkSpec("testmax", "0.1.2"),
				mkSpec("testmax", "0.99.99"),
				mkSpec("testmax", "1.0.0"),
				mkSpec("testmax", "1.999.999"),
			},
			desiredPackages: []manifest.Dependency{mkDep("com.example.tool", ">= 1.2.3")},
			expected: []string{
				"com.example.tool-1.2.3",
				"fbink-0.6.11",
				"lua-9.2.3",
				"testmax-0.99.99",
				"testmin-1.1.1",
			},
		},
		{
			name:            "unknown package",
			universe:        []*manifest.Spec{mkSpec("pkgA", "1.0")},
			desiredPackages: []manifest.Dependency{mkDep("nope")},
			expectError:     true,
		},
		{
			name: "unsatisfiable transitive dependency",
			universe: []*manifest.Spec{
				mkSpec("pkgA", "1.0", mkDep("libdep", ">= 5")),
				mkSpec("libdep", "1.0"),
			},
			desiredPackages: []manifest.Dependency{mkDep("pkgA")},
			expectError:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewResolver(sourceindex.FromSpecs(tt.universe...))
			result, err := r.Resolve(tt.desiredPackages)
			if tt.expectError {
				var ue *UnresolvableError
				require.ErrorAs(t, err, &ue)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, fullNames(result))
		})
	}
}

func TestResolverReportsFailingDependency(t *testing.T) {
	t.Parallel()
	r := NewResolver(sourceindex.FromSpecs(
		mkSpec("pkgA", "1.0", mkDep("libdep", ">= 5")),
		mkSpec("libdep", "1.0"),
	))
	_, err := r.Resolve([]manifest.Dependency{mkDep("pkgA")})
	var ue *UnresolvableError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "libdep", ue.Dependency.Name)
	require.Equal(t, "pkgA-1.0", ue.RequiredBy)
	require.Contains(t, err.Error(), "libdep (>= 5) required by pkgA-1.0")
}

func TestResolverPrefersInstalled(t *testing.T) {
	t.Parallel()
	installed := mkSpec("libdep", "2.0.0")
	r := NewResolver(sourceindex.FromSpecs(
		mkSpec("pkgA", "1.0", mkDep("libdep", ">= 2")),
		mkSpec("libdep", "2.0.0"),
		mkSpec("libdep", "2.5.0"),
	))
	result, err := r.Resolve([]manifest.Dependency{mkDep("pkgA")}, WithInstalled([]*manifest.Spec{installed}))
	require.NoError(t, err)
	require.Equal(t, []string{"libdep-2.0.0", "pkgA-1.0"}, fullNames(result))
	require.Same(t, installed, result[0])
}

func TestResolverExtraSpecsAndIgnoreDependencies(t *testing.T) {
	t.Parallel()
	local := mkSpec("pkgA", "3.0", mkDep("missing"))
	r := NewResolver(sourceindex.FromSpecs(mkSpec("pkgA", "1.0")))

	_, err := r.Resolve([]manifest.Dependency{mkDep("pkgA", ">= 3")}, WithExtraSpecs([]*manifest.Spec{local}))
	require.Error(t, err)

	result, err := r.Resolve(
		[]manifest.Dependency{mkDep("pkgA", ">= 3")},
		WithExtraSpecs([]*manifest.Spec{local}),
		WithIgnoreDependencies(),
	)
	require.NoError(t, err)
	require.Equal(t, []string{"pkgA-3.0"}, fullNames(result))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()
	err := &NotFoundError{FullName: "a-1"}
	require.True(t, IsNotFound(err))
	require.True(t, IsNotFound(errors.Wrap(err, "uninstalling")))
	require.False(t, IsNotFound(errors.New("other")))
}
