package resolver

import (
	"fmt"
	"strings"

	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/pingcap/errors"
)

// NotFoundError reports a package that is not in the working set or the
// installed index.
type NotFoundError struct {
	FullName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.FullName)
}

// IsNotFound reports whether err, or the error it wraps, is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// Unmet is a dependency of Spec that nothing in the working set satisfies.
type Unmet struct {
	Spec       *manifest.Spec
	Dependency manifest.Dependency
}

func (u Unmet) String() string {
	return fmt.Sprintf("%s requires %s", u.Spec.FullName(), u.Dependency)
}

// UnsatisfiedDependencyError is returned by callers that find a working set
// no longer closed after a change.
type UnsatisfiedDependencyError struct {
	Unmet []Unmet
}

func (e *UnsatisfiedDependencyError) Error() string {
	parts := make([]string, len(e.Unmet))
	for i, u := range e.Unmet {
		parts[i] = u.String()
	}
	return "unsatisfied dependencies: " + strings.Join(parts, "; ")
}

// UnresolvableError reports a dependency the resolver could not satisfy.
type UnresolvableError struct {
	Dependency manifest.Dependency
	// RequiredBy is empty for dependencies requested directly.
	RequiredBy string
}

func (e *UnresolvableError) Error() string {
	if e.RequiredBy == "" {
		return fmt.Sprintf("unable to resolve %s", e.Dependency)
	}
	return fmt.Sprintf("unable to resolve %s required by %s", e.Dependency, e.RequiredBy)
}
