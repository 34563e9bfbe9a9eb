package installer

import (
	"fmt"
	"strings"

	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/resolver"
)

// AmbiguousError is returned when an uninstall request matches several
// installed versions and removing all of them was not asked for.
type AmbiguousError struct {
	Name       string
	Candidates []*manifest.Spec
}

func (e *AmbiguousError) Error() string {
	versions := make([]string, len(e.Candidates))
	for i, s := range e.Candidates {
		versions[i] = s.Version.String()
	}
	return fmt.Sprintf("%s has %d installed versions (%s); name one with --version or pass --all",
		e.Name, len(e.Candidates), strings.Join(versions, ", "))
}

// DependencyRemovalError is returned when removing Spec would leave
// Dependents unmet.
type DependencyRemovalError struct {
	Spec       *manifest.Spec
	Dependents []resolver.Unmet
}

func (e *DependencyRemovalError) Error() string {
	return fmt.Sprintf("cannot remove %s: %s", e.Spec.FullName(), e.reason())
}

func (e *DependencyRemovalError) reason() string {
	parts := make([]string, len(e.Dependents))
	for i, u := range e.Dependents {
		parts[i] = u.String()
	}
	return strings.Join(parts, "; ")
}
