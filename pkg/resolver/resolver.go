package resolver

import (
	"log/slog"
	"slices"

	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/sourceindex"
	"github.com/pingcap/errors"
)

// Resolver picks one concrete spec per package name for a set of requested
// dependencies, preferring the highest version and backtracking on conflicts.
type Resolver struct {
	available        *sourceindex.Index
	logger           *slog.Logger
	preferMaxVersion bool
}

type ResolverOption func(*Resolver)

func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func NewResolver(available *sourceindex.Index, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		available: available,
		logger:    slog.New(slog.DiscardHandler),
		// candidates are sorted descending by version
		preferMaxVersion: true,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type resolveOptions struct {
	installed          []*manifest.Spec
	extra              []*manifest.Spec
	ignoreDependencies bool
}

type ResolveOption func(*resolveOptions)

// WithInstalled lets already installed specs satisfy dependencies. An
// installed spec that satisfies a dependency is preferred over any available
// one, so nothing is reinstalled needlessly.
func WithInstalled(specs []*manifest.Spec) ResolveOption {
	return func(o *resolveOptions) {
		o.installed = specs
	}
}

// WithExtraSpecs adds candidates that are not in the available index, such as
// archive files named on the command line. They take precedence over
// available specs of the same version.
func WithExtraSpecs(specs []*manifest.Spec) ResolveOption {
	return func(o *resolveOptions) {
		o.extra = specs
	}
}

// WithIgnoreDependencies resolves only the requested dependencies themselves.
func WithIgnoreDependencies() ResolveOption {
	return func(o *resolveOptions) {
		o.ignoreDependencies = true
	}
}

// pending is a dependency still to resolve and who asked for it.
type pending struct {
	dep        manifest.Dependency
	requiredBy string
}

type resolution struct {
	opts     resolveOptions
	resolved map[string]*manifest.Spec
	// first failure seen, reported when nothing works
	failure *UnresolvableError
}

// Resolve returns one spec per package name covering deps and, unless
// dependencies are ignored, everything they transitively require. Results
// are sorted by name.
func (r *Resolver) Resolve(deps []manifest.Dependency, opts ...ResolveOption) ([]*manifest.Spec, error) {
	res := &resolution{resolved: map[string]*manifest.Spec{}}
	for _, o := range opts {
		o(&res.opts)
	}

	queue := make([]pending, 0, len(deps))
	for _, d := range deps {
		queue = append(queue, pending{dep: d})
	}
	if !r.resolveRecursive(res, queue) {
		if res.failure != nil {
			return nil, res.failure
		}
		return nil, errors.Errorf("unable to resolve desired packages")
	}

	out := make([]*manifest.Spec, 0, len(res.resolved))
	for _, s := range res.resolved {
		out = append(out, s)
	}
	slices.SortFunc(out, manifest.CompareSpecs)
	return out, nil
}

// resolveRecursive takes the remaining unresolved dependencies and the
// current selection, and reports whether the whole queue can be satisfied.
// On success res.resolved holds the final selection.
func (r *Resolver) resolveRecursive(res *resolution, queue []pending) bool {
	if len(queue) == 0 {
		// nothing left to satisfy :)
		return true
	}

	// pop the next dependency to work on
	next, remaining := queue[0], queue[1:]
	name := next.dep.Name

	// already selected: either compatible, or we have to backtrack
	if current, ok := res.resolved[name]; ok {
		if next.dep.MatchedBy(current) {
			return r.resolveRecursive(res, remaining)
		}
		r.logger.Debug("conflict with selected spec", "selected", current.FullName(), "dependency", next.dep.String())
		res.fail(next)
		return false
	}

	candidates := r.candidates(res, next.dep)
	if len(candidates) == 0 {
		r.logger.Debug("no candidates", "dependency", next.dep.String(), "required_by", next.requiredBy)
		res.fail(next)
		return false
	}

	for _, candidate := range candidates {
		// tentatively select this candidate: this may be backtracked
		res.resolved[name] = candidate
		r.logger.Debug("tentatively selected candidate", "candidate", candidate.FullName())

		newQueue := make([]pending, 0, len(remaining)+len(candidate.Dependencies))
		newQueue = append(newQueue, remaining...)
		if !res.opts.ignoreDependencies {
			for _, d := range candidate.Dependencies {
				newQueue = append(newQueue, pending{dep: d, requiredBy: candidate.FullName()})
			}
		}
		if r.resolveRecursive(res, newQueue) {
			return true
		}

		// backtrack selection of this candidate
		delete(res.resolved, name)
		r.logger.Debug("backtracking on candidate", "candidate", candidate.FullName())
	}

	// no candidates were successful
	return false
}

// candidates lists the specs that satisfy dep in preference order: installed
// specs first, then extra specs, then the available index, each group by
// descending version.
func (r *Resolver) candidates(res *resolution, dep manifest.Dependency) []*manifest.Spec {
	seen := map[string]bool{}
	var out []*manifest.Spec
	addGroup := func(group []*manifest.Spec) {
		var matching []*manifest.Spec
		for _, s := range group {
			if dep.MatchedBy(s) && !seen[s.FullName()] {
				matching = append(matching, s)
			}
		}
		slices.SortFunc(matching, func(a, b *manifest.Spec) int {
			if r.preferMaxVersion {
				return manifest.CompareSpecs(b, a)
			}
			return manifest.CompareSpecs(a, b)
		})
		for _, s := range matching {
			seen[s.FullName()] = true
			out = append(out, s)
		}
	}
	addGroup(res.opts.installed)
	addGroup(res.opts.extra)
	if r.available != nil {
		addGroup(r.available.FindName(dep.Name, dep.Requirement))
	}
	return out
}

func (res *resolution) fail(p pending) {
	// keep the first failure: it is the one closest to the user's request
	if res.failure == nil {
		res.failure = &UnresolvableError{Dependency: p.dep, RequiredBy: p.requiredBy}
	}
}
