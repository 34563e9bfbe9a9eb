package resolver

import (
	"log/slog"
	"slices"

	"github.com/clintharrison/gempm/pkg/repository/manifest"
)

// DependencyList is a working set of specs used for one planning step. It
// answers satisfaction and ordering questions purely from its own contents
// and never consults anything outside the set.
//
// Entries keep their insertion order, which is what makes DependencyOrder
// deterministic. Duplicate full names are tolerated.
type DependencyList struct {
	specs  []*manifest.Spec
	logger *slog.Logger
}

type ListOption func(*DependencyList)

// WithListLogger sets the logger used for cycle diagnostics.
func WithListLogger(logger *slog.Logger) ListOption {
	return func(l *DependencyList) {
		l.logger = logger
	}
}

func NewDependencyList(opts ...ListOption) *DependencyList {
	l := &DependencyList{
		specs:  nil,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Add appends specs without any uniqueness check.
func (l *DependencyList) Add(specs ...*manifest.Spec) {
	for _, s := range specs {
		if s != nil {
			l.specs = append(l.specs, s)
		}
	}
}

func (l *DependencyList) Len() int { return len(l.specs) }

// Specs returns the entries in insertion order.
func (l *DependencyList) Specs() []*manifest.Spec {
	return slices.Clone(l.specs)
}

// FindName returns the first entry with the given full name.
func (l *DependencyList) FindName(fullName string) (*manifest.Spec, bool) {
	for _, s := range l.specs {
		if s.FullName() == fullName {
			return s, true
		}
	}
	return nil, false
}

// RemoveByName drops every entry with the given full name and returns how
// many were removed.
func (l *DependencyList) RemoveByName(fullName string) int {
	before := len(l.specs)
	l.specs = slices.DeleteFunc(l.specs, func(s *manifest.Spec) bool {
		return s.FullName() == fullName
	})
	return before - len(l.specs)
}

// OK reports whether every dependency of every entry is satisfied by some
// entry of the list.
func (l *DependencyList) OK() bool {
	for _, s := range l.specs {
		for _, d := range s.Dependencies {
			if !l.satisfied(d) {
				return false
			}
		}
	}
	return true
}

// Unsatisfied lists every dependency that makes OK false, in entry order.
func (l *DependencyList) Unsatisfied() []Unmet {
	var out []Unmet
	for _, s := range l.specs {
		for _, d := range s.Dependencies {
			if !l.satisfied(d) {
				out = append(out, Unmet{Spec: s, Dependency: d})
			}
		}
	}
	return out
}

func (l *DependencyList) satisfied(d manifest.Dependency) bool {
	return slices.ContainsFunc(l.specs, d.MatchedBy)
}

// OKToRemove reports whether the entry named fullName can be removed without
// leaving any dependency it currently fulfills unmet. Another version of the
// same package still in the list counts as a replacement. It returns a
// *NotFoundError when fullName is not in the list.
func (l *DependencyList) OKToRemove(fullName string) (bool, error) {
	broken, err := l.Dependents(fullName)
	if err != nil {
		return false, err
	}
	return len(broken) == 0, nil
}

// Dependents returns the dependencies that removing fullName would leave
// unmet, paired with the spec that declares them.
func (l *DependencyList) Dependents(fullName string) ([]Unmet, error) {
	target, ok := l.FindName(fullName)
	if !ok {
		return nil, &NotFoundError{FullName: fullName}
	}

	var siblings []*manifest.Spec
	for _, s := range l.specs {
		if s.Name == target.Name && s.FullName() != fullName {
			siblings = append(siblings, s)
		}
	}

	var broken []Unmet
	for _, s := range l.specs {
		for _, d := range s.Dependencies {
			if !d.MatchedBy(target) {
				continue
			}
			if !slices.ContainsFunc(siblings, d.MatchedBy) {
				broken = append(broken, Unmet{Spec: s, Dependency: d})
			}
		}
	}
	return broken, nil
}

// DependencyOrder returns the entries ordered for sequential removal: every
// spec comes before the specs it depends on.
//
// Each round emits the first entry, in insertion order, that no remaining
// entry depends on. If every remaining entry is depended upon (a cycle), the
// first remaining entry is emitted anyway, so the result always contains
// every entry exactly once.
func (l *DependencyList) DependencyOrder() []*manifest.Spec {
	return l.emitOrder(func(s, o *manifest.Spec) bool {
		// s waits while o, which depends on s, is still queued
		return slices.ContainsFunc(o.Dependencies, s.Satisfies)
	})
}

// InstallOrder returns the entries ordered for sequential installation:
// every spec comes after the specs it depends on. Independent entries keep
// their insertion order, and cycles are broken the same way as in
// DependencyOrder.
func (l *DependencyList) InstallOrder() []*manifest.Spec {
	return l.emitOrder(func(s, o *manifest.Spec) bool {
		return slices.ContainsFunc(s.Dependencies, o.Satisfies)
	})
}

// emitOrder repeatedly emits the first remaining entry, in insertion order,
// that no other remaining entry blocks.
func (l *DependencyList) emitOrder(blocks func(s, o *manifest.Spec) bool) []*manifest.Spec {
	n := len(l.specs)
	blockers := make([][]int, n)
	for i, s := range l.specs {
		for j, o := range l.specs {
			if i != j && blocks(s, o) {
				blockers[i] = append(blockers[i], j)
			}
		}
	}

	disabled := make([]bool, n)
	out := make([]*manifest.Spec, 0, n)
	for len(out) < n {
		next := -1
		for i := range n {
			if disabled[i] {
				continue
			}
			active := slices.ContainsFunc(blockers[i], func(j int) bool { return !disabled[j] })
			if !active {
				next = i
				break
			}
		}
		if next < 0 {
			for i := range n {
				if !disabled[i] {
					next = i
					break
				}
			}
			l.logger.Debug("dependency cycle, breaking at first remaining spec",
				"spec", l.specs[next].FullName(), "remaining", n-len(out))
		}
		disabled[next] = true
		out = append(out, l.specs[next])
	}
	return out
}
