package manifest

import (
	"cmp"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pingcap/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPlatform marks a platform independent package. An empty Platform
// means the same thing.
const DefaultPlatform = "ruby"

var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Spec is the metadata of one version of one package.
type Spec struct {
	Name         string
	Version      Version
	Platform     string
	Summary      string
	Authors      []string
	Homepage     string
	Dependencies []Dependency
	// Files lists the package contents, relative to the package directory.
	Files []string
}

// FullName is the unique key of a spec: name-version, with a -platform suffix
// for platform specific packages.
func (s *Spec) FullName() string {
	if s.Platform == "" || s.Platform == DefaultPlatform {
		return s.Name + "-" + s.Version.String()
	}
	return s.Name + "-" + s.Version.String() + "-" + s.Platform
}

func (s *Spec) String() string {
	return s.FullName()
}

// Satisfies reports whether s fulfills d.
func (s *Spec) Satisfies(d Dependency) bool {
	return d.MatchedBy(s)
}

func (s *Spec) Validate() error {
	if s.Name == "" {
		return &FormatError{Input: s.Name, Reason: "package name is required"}
	}
	if !nameRegexp.MatchString(s.Name) {
		return &FormatError{Input: s.Name, Reason: "invalid package name"}
	}
	if s.Version.IsZero() {
		return &FormatError{Input: s.Name, Reason: "package version is required"}
	}
	for _, d := range s.Dependencies {
		if d.Name == "" {
			return &FormatError{Input: s.FullName(), Reason: "dependency without a name"}
		}
	}
	return nil
}

// CompareSpecs orders by name, then version, then full name.
func CompareSpecs(a, b *Spec) int {
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := a.Version.Compare(b.Version); c != 0 {
		return c
	}
	return cmp.Compare(a.FullName(), b.FullName())
}

// RawDependency is the serialized form of a Dependency.
type RawDependency struct {
	Name        string `json:"name" yaml:"name"`
	Requirement string `json:"requirement,omitempty" yaml:"requirement,omitempty"`
}

// RawSpec is the serialized form of a Spec, as found in installed
// specification files, archive metadata and repository listings.
type RawSpec struct {
	Name         string          `json:"name" yaml:"name"`
	Version      string          `json:"version" yaml:"version"`
	Platform     string          `json:"platform,omitempty" yaml:"platform,omitempty"`
	Summary      string          `json:"summary,omitempty" yaml:"summary,omitempty"`
	Authors      []string        `json:"authors,omitempty" yaml:"authors,omitempty"`
	Homepage     string          `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Dependencies []RawDependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Files        []string        `json:"files,omitempty" yaml:"files,omitempty"`
	// URL locates the archive; only meaningful in repository listings.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Spec converts and validates the raw form.
func (r *RawSpec) Spec() (*Spec, error) {
	v, err := ParseVersion(r.Version)
	if err != nil {
		return nil, err
	}
	s := &Spec{
		Name:         strings.TrimSpace(r.Name),
		Version:      v,
		Platform:     r.Platform,
		Summary:      r.Summary,
		Authors:      r.Authors,
		Homepage:     r.Homepage,
		Dependencies: make([]Dependency, 0, len(r.Dependencies)),
		Files:        r.Files,
	}
	for _, rd := range r.Dependencies {
		d, err := NewDependency(strings.TrimSpace(rd.Name), rd.Requirement)
		if err != nil {
			return nil, err
		}
		s.Dependencies = append(s.Dependencies, d)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Raw converts s to its serialized form.
func (s *Spec) Raw() *RawSpec {
	r := &RawSpec{
		Name:     s.Name,
		Version:  s.Version.String(),
		Platform: s.Platform,
		Summary:  s.Summary,
		Authors:  s.Authors,
		Homepage: s.Homepage,
		Files:    s.Files,
	}
	for _, d := range s.Dependencies {
		r.Dependencies = append(r.Dependencies, RawDependency{
			Name:        d.Name,
			Requirement: d.Requirement.String(),
		})
	}
	return r
}

// ParseSpecYAML reads a spec document.
func ParseSpecYAML(data []byte) (*Spec, error) {
	var raw RawSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &FormatError{Input: truncate(string(data)), Reason: err.Error()}
	}
	return raw.Spec()
}

func ParseSpecJSON(data []byte) (*Spec, error) {
	var raw RawSpec
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FormatError{Input: truncate(string(data)), Reason: err.Error()}
	}
	return raw.Spec()
}

func (s *Spec) MarshalYAML() (interface{}, error) {
	return s.Raw(), nil
}

func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	var raw RawSpec
	if err := node.Decode(&raw); err != nil {
		return errors.AddStack(err)
	}
	parsed, err := raw.Spec()
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

func (s *Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Raw())
}

func (s *Spec) UnmarshalJSON(data []byte) error {
	parsed, err := ParseSpecJSON(data)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// EncodeYAML renders s as a spec document.
func EncodeYAML(s *Spec) ([]byte, error) {
	data, err := yaml.Marshal(s.Raw())
	if err != nil {
		return nil, errors.Wrapf(err, "yaml.Marshal(%s)", s.FullName())
	}
	return data, nil
}

func truncate(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}
	return fmt.Sprintf("%s...", s[:limit])
}
