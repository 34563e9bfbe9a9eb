package manifest

import "fmt"

// Dependency is a requirement on another package by exact name.
type Dependency struct {
	Name        string
	Requirement Requirement
}

func NewDependency(name string, requirement ...string) (Dependency, error) {
	r, err := ParseRequirement(requirement...)
	if err != nil {
		return Dependency{}, err
	}
	return Dependency{Name: name, Requirement: r}, nil
}

// MatchedBy reports whether spec has the dependency's name and a version that
// satisfies its requirement.
func (d Dependency) MatchedBy(spec *Spec) bool {
	if spec == nil || spec.Name != d.Name {
		return false
	}
	return d.Requirement.SatisfiedBy(spec.Version)
}

func (d Dependency) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Requirement)
}
