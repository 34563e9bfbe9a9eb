package manifest

import (
	"regexp"
	"strings"
)

type Operator string

const (
	Equal          Operator = "="
	NotEqual       Operator = "!="
	Greater        Operator = ">"
	Less           Operator = "<"
	GreaterOrEqual Operator = ">="
	LessOrEqual    Operator = "<="
	// Pessimistic is "approximately greater than": ~> 1.2.3 means >= 1.2.3, < 1.3.
	Pessimistic Operator = "~>"
)

// Clause is a single operator/version pair of a Requirement.
type Clause struct {
	Op      Operator
	Version Version
}

func (c Clause) String() string {
	return string(c.Op) + " " + c.Version.String()
}

func (c Clause) SatisfiedBy(v Version) bool {
	cmp := v.Compare(c.Version)
	switch c.Op {
	case Equal:
		return cmp == 0
	case NotEqual:
		return cmp != 0
	case Greater:
		return cmp > 0
	case Less:
		return cmp < 0
	case GreaterOrEqual:
		return cmp >= 0
	case LessOrEqual:
		return cmp <= 0
	case Pessimistic:
		return cmp >= 0 && v.Less(c.Version.Bump())
	default:
		return false
	}
}

// Requirement is the AND of its clauses. The zero value accepts every version.
type Requirement struct {
	clauses []Clause
}

// clauseRegexp matches "op version" with the operator optional (meaning =).
// Two-character operators are listed first so ">=" is not read as ">".
var clauseRegexp = regexp.MustCompile(`^(~>|!=|>=|<=|=|>|<)?\s*([0-9]+(?:\.[0-9]+)*)$`)

// ParseRequirement parses one or more requirement strings. Each string may
// hold several comma separated clauses: ">= 1.0, < 2". Empty input yields the
// default requirement (any version).
func ParseRequirement(exprs ...string) (Requirement, error) {
	var r Requirement
	for _, expr := range exprs {
		for _, part := range strings.Split(expr, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			c, err := parseClause(part)
			if err != nil {
				return Requirement{}, err
			}
			r.clauses = append(r.clauses, c)
		}
	}
	return r, nil
}

// MustParseRequirement is ParseRequirement for literals known to be valid.
func MustParseRequirement(exprs ...string) Requirement {
	r, err := ParseRequirement(exprs...)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRequirement builds a requirement from already parsed clauses.
func NewRequirement(clauses ...Clause) Requirement {
	cs := make([]Clause, len(clauses))
	copy(cs, clauses)
	return Requirement{clauses: cs}
}

// ExactRequirement is "= v".
func ExactRequirement(v Version) Requirement {
	return NewRequirement(Clause{Op: Equal, Version: v})
}

func parseClause(s string) (Clause, error) {
	m := clauseRegexp.FindStringSubmatch(s)
	if m == nil {
		return Clause{}, &FormatError{Input: s, Reason: "invalid requirement clause"}
	}
	op := Operator(m[1])
	if op == "" {
		op = Equal
	}
	v, err := ParseVersion(m[2])
	if err != nil {
		return Clause{}, err
	}
	return Clause{Op: op, Version: v}, nil
}

func (r Requirement) Clauses() []Clause {
	out := make([]Clause, len(r.clauses))
	copy(out, r.clauses)
	return out
}

// IsAny reports whether r has no clauses.
func (r Requirement) IsAny() bool {
	return len(r.clauses) == 0
}

func (r Requirement) SatisfiedBy(v Version) bool {
	for _, c := range r.clauses {
		if !c.SatisfiedBy(v) {
			return false
		}
	}
	return true
}

func (r Requirement) String() string {
	if len(r.clauses) == 0 {
		return ">= 0"
	}
	parts := make([]string, len(r.clauses))
	for i, c := range r.clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

func (r Requirement) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Requirement) UnmarshalText(data []byte) error {
	parsed, err := ParseRequirement(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
