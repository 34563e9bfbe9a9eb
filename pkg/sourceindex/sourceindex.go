// Package sourceindex holds queryable collections of package specs, keyed by
// full name. An Index is rebuilt wholesale from its Loader; it is never
// patched in place.
package sourceindex

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/armon/go-radix"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/pingcap/errors"
)

// keySep separates the package name from the full name in radix keys, so an
// exact name lookup is a prefix walk over "name\x00".
const keySep = "\x00"

// Loader produces the specs an Index is built from: an installed
// specifications directory, a remote listing, or a fixed slice.
type Loader interface {
	LoadSpecs(ctx context.Context) ([]*manifest.Spec, error)
}

type LoaderFunc func(ctx context.Context) ([]*manifest.Spec, error)

func (f LoaderFunc) LoadSpecs(ctx context.Context) ([]*manifest.Spec, error) {
	return f(ctx)
}

// StaticLoader serves a fixed set of specs.
type StaticLoader []*manifest.Spec

func (l StaticLoader) LoadSpecs(context.Context) ([]*manifest.Spec, error) {
	return l, nil
}

type Option func(*Index)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		i.logger = logger
	}
}

// Index maps full names to specs. It is safe for concurrent use; Refresh
// replaces the contents atomically.
type Index struct {
	loader Loader
	logger *slog.Logger

	mu    sync.RWMutex
	specs map[string]*manifest.Spec
	names *radix.Tree
}

// New creates an empty index backed by loader. Call Refresh to populate it.
func New(loader Loader, opts ...Option) *Index {
	i := &Index{
		loader: loader,
		logger: slog.Default(),
		specs:  map[string]*manifest.Spec{},
		names:  radix.New(),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// FromSpecs builds a populated index over a fixed set of specs.
func FromSpecs(specs ...*manifest.Spec) *Index {
	i := New(StaticLoader(specs))
	i.replace(specs)
	return i
}

// Merge builds a new index holding the specs of every given index. When the
// same full name appears more than once the earliest index wins.
func Merge(indexes ...*Index) *Index {
	var all []*manifest.Spec
	for _, idx := range indexes {
		all = append(all, idx.Specs()...)
	}
	return FromSpecs(all...)
}

// Refresh rebuilds the index from its loader. On failure the previous
// contents are left intact.
func (i *Index) Refresh(ctx context.Context) error {
	if i.loader == nil {
		return errors.New("source index has no loader")
	}
	specs, err := i.loader.LoadSpecs(ctx)
	if err != nil {
		return errors.Wrap(err, "loading specs")
	}
	i.replace(specs)
	return nil
}

func (i *Index) replace(specs []*manifest.Spec) {
	byName := make(map[string]*manifest.Spec, len(specs))
	tree := radix.New()
	for _, s := range specs {
		if s == nil {
			continue
		}
		full := s.FullName()
		if _, dup := byName[full]; dup {
			i.logger.Warn("duplicate spec in source index, keeping the first", "full_name", full)
			continue
		}
		byName[full] = s
		tree.Insert(s.Name+keySep+full, s)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.specs = byName
	i.names = tree
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.specs)
}

// Get looks up a spec by full name.
func (i *Index) Get(fullName string) (*manifest.Spec, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.specs[fullName]
	return s, ok
}

// Search returns every spec whose name matches p and whose version satisfies
// req, sorted by name then version. No match is an empty slice.
func (i *Index) Search(p Pattern, req manifest.Requirement) []*manifest.Spec {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := []*manifest.Spec{}
	collect := func(_ string, v interface{}) bool {
		s := v.(*manifest.Spec) //nolint:forcetypeassert
		if p.Match(s.Name) && req.SatisfiedBy(s.Version) {
			out = append(out, s)
		}
		return false
	}
	if prefix, ok := p.treePrefix(); ok {
		i.names.WalkPrefix(prefix, collect)
	} else {
		i.names.Walk(collect)
	}
	slices.SortFunc(out, manifest.CompareSpecs)
	return out
}

// FindName returns all versions of name satisfying req.
func (i *Index) FindName(name string, req manifest.Requirement) []*manifest.Spec {
	return i.Search(Exact(name), req)
}

// Specs returns every spec in sorted order.
func (i *Index) Specs() []*manifest.Spec {
	return i.Search(All(), manifest.Requirement{})
}

// Each calls fn for every spec in sorted order until fn returns false.
func (i *Index) Each(fn func(fullName string, s *manifest.Spec) bool) {
	for _, s := range i.Specs() {
		if !fn(s.FullName(), s) {
			return
		}
	}
}

// Latest returns the highest version of every package name, sorted by name.
func (i *Index) Latest() []*manifest.Spec {
	specs := i.Specs()
	var out []*manifest.Spec
	for _, s := range specs {
		if n := len(out); n > 0 && out[n-1].Name == s.Name {
			if out[n-1].Version.Less(s.Version) {
				out[n-1] = s
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// Reverse is one spec depending on another.
type Reverse struct {
	Dependent  *manifest.Spec
	Dependency manifest.Dependency
}

// ReverseDependencies lists every (spec, dependency) in the index that spec
// satisfies.
func (i *Index) ReverseDependencies(spec *manifest.Spec) []Reverse {
	var out []Reverse
	for _, s := range i.Specs() {
		for _, d := range s.Dependencies {
			if d.MatchedBy(spec) {
				out = append(out, Reverse{Dependent: s, Dependency: d})
			}
		}
	}
	return out
}
