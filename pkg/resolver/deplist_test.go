package resolver

import (
	"bytes"
	"log/slog"
	"slices"
	"testing"

	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/stretchr/testify/require"
)

func TestDependencyListOK(t *testing.T) {
	t.Parallel()
	q := mkSpec("Q", "1.0")
	p := mkSpec("P", "1.0", mkDep("Q", "> 0"))

	l := NewDependencyList()
	l.Add(p, q)
	require.True(t, l.OK())
	require.Empty(t, l.Unsatisfied())

	require.Equal(t, 1, l.RemoveByName("Q-1.0"))
	require.False(t, l.OK())
	unmet := l.Unsatisfied()
	require.Len(t, unmet, 1)
	require.Same(t, p, unmet[0].Spec)
	require.Equal(t, "P-1.0 requires Q (> 0)", unmet[0].String())
}

func TestDependencyListOKToRemove(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		req      string
		remove   string
		expected bool
	}{
		{"sibling still satisfies", ">= 1.0", "Q-1.0", true},
		{"exact requirement on removed version", "= 1.0", "Q-1.0", false},
		{"exact requirement on kept version", "= 1.0", "Q-2.0", true},
		{"dependent itself can go", ">= 1.0", "P-1.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := NewDependencyList()
			l.Add(
				mkSpec("Q", "1.0"),
				mkSpec("Q", "2.0"),
				mkSpec("P", "1.0", mkDep("Q", tt.req)),
			)
			ok, err := l.OKToRemove(tt.remove)
			require.NoError(t, err)
			require.Equal(t, tt.expected, ok)
		})
	}
}

func TestDependencyListOKToRemoveSingleProvider(t *testing.T) {
	t.Parallel()
	l := NewDependencyList()
	l.Add(mkSpec("P", "1.0", mkDep("Q", ">= 1")), mkSpec("Q", "1.0"))

	ok, err := l.OKToRemove("Q-1.0")
	require.NoError(t, err)
	require.False(t, ok)

	broken, err := l.Dependents("Q-1.0")
	require.NoError(t, err)
	require.Len(t, broken, 1)
	require.Equal(t, "P-1.0", broken[0].Spec.FullName())
}

func TestDependencyListOKToRemoveUnknown(t *testing.T) {
	t.Parallel()
	l := NewDependencyList()
	l.Add(mkSpec("Q", "1.0"))
	_, err := l.OKToRemove("Q-9.9")
	require.Error(t, err)
	require.True(t, IsNotFound(err))
}

func TestDependencyListEndToEnd(t *testing.T) {
	t.Parallel()
	l := NewDependencyList()
	l.Add(
		mkSpec("rake", "0.8.0"),
		mkSpec("rake", "0.9.0"),
		mkSpec("mytool", "1.0", mkDep("rake", ">= 0.8")),
	)
	require.True(t, l.OK())

	ok, err := l.OKToRemove("rake-0.8.0")
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, []string{"mytool-1.0", "rake-0.8.0", "rake-0.9.0"}, fullNames(l.DependencyOrder()))
	require.Equal(t, []string{"rake-0.8.0", "rake-0.9.0", "mytool-1.0"}, fullNames(l.InstallOrder()))
}

func TestInstallOrder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		specs []*manifest.Spec
		want  []string
	}{
		{
			name:  "independent specs keep insertion order",
			specs: []*manifest.Spec{mkSpec("hoe", "1.1"), mkSpec("rake", "0.9.0"), mkSpec("abc", "1")},
			want:  []string{"hoe-1.1", "rake-0.9.0", "abc-1"},
		},
		{
			name: "dependencies first",
			specs: []*manifest.Spec{
				mkSpec("app", "1", mkDep("lib", ">= 1")),
				mkSpec("zed", "1"),
				mkSpec("lib", "1", mkDep("base", "> 0")),
				mkSpec("base", "1"),
			},
			want: []string{"zed-1", "base-1", "lib-1", "app-1"},
		},
		{
			name:  "cycle breaks at first entry",
			specs: []*manifest.Spec{mkSpec("a", "1", mkDep("b", "= 1")), mkSpec("b", "1", mkDep("a", "= 1"))},
			want:  []string{"a-1", "b-1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := NewDependencyList()
			l.Add(tt.specs...)
			require.Equal(t, tt.want, fullNames(l.InstallOrder()))
		})
	}
}

func TestDependencyOrderAcyclic(t *testing.T) {
	t.Parallel()
	// a diamond plus a tail, added in an order unrelated to the graph
	specs := []*manifest.Spec{
		mkSpec("base", "1"),
		mkSpec("left", "1", mkDep("base", ">= 1")),
		mkSpec("tail", "1"),
		mkSpec("top", "1", mkDep("left", "> 0"), mkDep("right", "> 0")),
		mkSpec("right", "1", mkDep("base", "= 1"), mkDep("tail", ">= 0")),
	}
	l := NewDependencyList()
	l.Add(specs...)

	order := l.DependencyOrder()
	require.Len(t, order, len(specs))
	pos := map[string]int{}
	for i, s := range order {
		pos[s.FullName()] = i
	}
	for _, o := range specs {
		for _, s := range specs {
			if o == s || !slices.ContainsFunc(o.Dependencies, s.Satisfies) {
				continue
			}
			require.Less(t, pos[o.FullName()], pos[s.FullName()], "%s depends on %s", o.FullName(), s.FullName())
		}
	}
}

func TestDependencyOrderCycle(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l := NewDependencyList(WithListLogger(logger))
	l.Add(
		mkSpec("A", "1", mkDep("B", ">= 0")),
		mkSpec("B", "1", mkDep("A", ">= 0")),
	)
	order := l.DependencyOrder()
	require.Equal(t, []string{"A-1", "B-1"}, fullNames(order))
	require.Contains(t, buf.String(), "dependency cycle")

	// stable across calls
	require.Equal(t, fullNames(order), fullNames(l.DependencyOrder()))
}

func TestDependencyOrderCycleWithDependent(t *testing.T) {
	t.Parallel()
	l := NewDependencyList()
	l.Add(
		mkSpec("A", "1", mkDep("B", ">= 0")),
		mkSpec("B", "1", mkDep("A", ">= 0")),
		mkSpec("app", "1", mkDep("A", ">= 0")),
	)
	// app is emitted first; the cycle is broken at its first member
	require.Equal(t, []string{"app-1", "A-1", "B-1"}, fullNames(l.DependencyOrder()))
}

func TestDependencyListEmpty(t *testing.T) {
	t.Parallel()
	l := NewDependencyList()
	require.True(t, l.OK())
	require.Empty(t, l.DependencyOrder())
	require.Empty(t, l.InstallOrder())
	require.Equal(t, 0, l.Len())
}

func TestDependencyListDuplicatesAndFind(t *testing.T) {
	t.Parallel()
	first := mkSpec("a", "1")
	l := NewDependencyList()
	l.Add(first, nil, mkSpec("a", "1"), mkSpec("b", "1"))
	require.Equal(t, 3, l.Len())

	got, ok := l.FindName("a-1")
	require.True(t, ok)
	require.Same(t, first, got)

	_, ok = l.FindName("zzz-1")
	require.False(t, ok)

	require.Equal(t, 2, l.RemoveByName("a-1"))
	require.Equal(t, 0, l.RemoveByName("a-1"))
	require.Equal(t, []string{"b-1"}, fullNames(l.Specs()))
}
