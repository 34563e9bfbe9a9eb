package sourceindex

import (
	"context"
	"regexp"
	"testing"

	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func mkSpec(name, version string, deps ...manifest.Dependency) *manifest.Spec {
	return &manifest.Spec{
		Name:         name,
		Version:      manifest.MustParseVersion(version),
		Dependencies: deps,
	}
}

func mkDep(name, req string) manifest.Dependency {
	return manifest.Dependency{Name: name, Requirement: manifest.MustParseRequirement(req)}
}

func fullNames(specs []*manifest.Spec) []string {
	out := []string{}
	for _, s := range specs {
		out = append(out, s.FullName())
	}
	return out
}

func TestSearchRoundTrip(t *testing.T) {
	t.Parallel()
	a := mkSpec("foo", "1.0")
	b := mkSpec("foo", "2.0")
	idx := FromSpecs(b, a, mkSpec("foobar", "1.0"))

	require.Equal(t, []*manifest.Spec{a, b}, idx.Search(Exact("foo"), manifest.MustParseRequirement(">=1.0")))
	require.Equal(t, []*manifest.Spec{b}, idx.Search(Exact("foo"), manifest.MustParseRequirement(">1.0")))
	require.Equal(t, []*manifest.Spec{a, b}, idx.FindName("foo", manifest.Requirement{}))
}

func TestSearchPatterns(t *testing.T) {
	t.Parallel()
	idx := FromSpecs(
		mkSpec("rake", "0.9.0"),
		mkSpec("rake", "0.8.0"),
		mkSpec("rake-compiler", "1.0"),
		mkSpec("drake", "2"),
		mkSpec("json", "1.10"),
		mkSpec("json", "1.9"),
	)
	anyVersion := manifest.Requirement{}
	tests := []struct {
		name    string
		pattern Pattern
		want    []string
	}{
		{"exact", Exact("rake"), []string{"rake-0.8.0", "rake-0.9.0"}},
		{"prefix", Prefix("rake"), []string{"rake-0.8.0", "rake-0.9.0", "rake-compiler-1.0"}},
		{"substring", Substring("rake"), []string{"drake-2", "rake-0.8.0", "rake-0.9.0", "rake-compiler-1.0"}},
		{"regexp", Regexp(regexp.MustCompile(`^j`)), []string{"json-1.9", "json-1.10"}},
		{"all", All(), []string{"drake-2", "json-1.9", "json-1.10", "rake-0.8.0", "rake-0.9.0", "rake-compiler-1.0"}},
		{"no match", Exact("nope"), []string{}},
		{"exact is not prefix", Exact("rak"), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, fullNames(idx.Search(tt.pattern, anyVersion)))
		})
	}
}

func TestCompileRegexpFold(t *testing.T) {
	t.Parallel()
	p, err := CompileRegexp("^RAKE$", true)
	require.NoError(t, err)
	require.True(t, p.Match("rake"))
	_, err = CompileRegexp("(", false)
	require.Error(t, err)
}

func TestEmptyIndex(t *testing.T) {
	t.Parallel()
	idx := New(StaticLoader(nil))
	require.NoError(t, idx.Refresh(t.Context()))
	require.Empty(t, idx.Search(All(), manifest.Requirement{}))
	require.NotNil(t, idx.Search(All(), manifest.Requirement{}))
	require.Equal(t, 0, idx.Len())
}

func TestRefreshReplacesAndKeepsOnFailure(t *testing.T) {
	t.Parallel()
	first := []*manifest.Spec{mkSpec("a", "1"), mkSpec("b", "1")}
	var fail bool
	current := first
	idx := New(LoaderFunc(func(context.Context) ([]*manifest.Spec, error) {
		if fail {
			return nil, errors.New("scan failed")
		}
		return current, nil
	}))
	require.NoError(t, idx.Refresh(t.Context()))
	require.Equal(t, 2, idx.Len())
	old, ok := idx.Get("a-1")
	require.True(t, ok)

	current = []*manifest.Spec{mkSpec("c", "1")}
	require.NoError(t, idx.Refresh(t.Context()))
	require.Equal(t, []string{"c-1"}, fullNames(idx.Specs()))
	_, ok = idx.Get("a-1")
	require.False(t, ok)
	// references handed out before the refresh are untouched
	require.Equal(t, "a-1", old.FullName())

	fail = true
	require.Error(t, idx.Refresh(t.Context()))
	require.Equal(t, []string{"c-1"}, fullNames(idx.Specs()))
}

func TestDuplicateFullNamesKeepFirst(t *testing.T) {
	t.Parallel()
	first := mkSpec("a", "1")
	idx := FromSpecs(first, mkSpec("a", "1"))
	require.Equal(t, 1, idx.Len())
	got, ok := idx.Get("a-1")
	require.True(t, ok)
	require.Same(t, first, got)
}

func TestLatestAndReverseDependencies(t *testing.T) {
	t.Parallel()
	rake8 := mkSpec("rake", "0.8.0")
	rake9 := mkSpec("rake", "0.9.0")
	mytool := mkSpec("mytool", "1.0", mkDep("rake", ">= 0.8"))
	old := mkSpec("oldtool", "1.0", mkDep("rake", "= 0.8.0"))
	idx := FromSpecs(rake8, rake9, mytool, old)

	require.Equal(t, []string{"mytool-1.0", "oldtool-1.0", "rake-0.9.0"}, fullNames(idx.Latest()))

	rev := idx.ReverseDependencies(rake9)
	require.Len(t, rev, 1)
	require.Same(t, mytool, rev[0].Dependent)

	rev = idx.ReverseDependencies(rake8)
	require.Len(t, rev, 2)
}

func TestMerge(t *testing.T) {
	t.Parallel()
	local := FromSpecs(mkSpec("a", "1"))
	remote := FromSpecs(mkSpec("a", "1"), mkSpec("a", "2"))
	merged := Merge(local, remote)
	require.Equal(t, []string{"a-1", "a-2"}, fullNames(merged.Specs()))
}

func TestEachStopsEarly(t *testing.T) {
	t.Parallel()
	idx := FromSpecs(mkSpec("a", "1"), mkSpec("b", "1"), mkSpec("c", "1"))
	var seen []string
	idx.Each(func(fullName string, _ *manifest.Spec) bool {
		seen = append(seen, fullName)
		return len(seen) < 2
	})
	require.Equal(t, []string{"a-1", "b-1"}, seen)
}
