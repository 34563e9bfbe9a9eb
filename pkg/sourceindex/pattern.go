package sourceindex

import (
	"regexp"
	"strings"
)

type patternKind int

const (
	kindAll patternKind = iota
	kindExact
	kindPrefix
	kindSubstring
	kindRegexp
)

// Pattern selects package names in a Search.
type Pattern struct {
	kind patternKind
	text string
	re   *regexp.Regexp
}

// All matches every name.
func All() Pattern { return Pattern{kind: kindAll} }

func Exact(name string) Pattern { return Pattern{kind: kindExact, text: name} }

func Prefix(prefix string) Pattern { return Pattern{kind: kindPrefix, text: prefix} }

func Substring(s string) Pattern { return Pattern{kind: kindSubstring, text: s} }

func Regexp(re *regexp.Regexp) Pattern { return Pattern{kind: kindRegexp, re: re} }

// CompileRegexp builds a Regexp pattern, case-insensitive when fold is set.
func CompileRegexp(expr string, fold bool) (Pattern, error) {
	if fold {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, err //nolint:wrapcheck
	}
	return Regexp(re), nil
}

func (p Pattern) Match(name string) bool {
	switch p.kind {
	case kindAll:
		return true
	case kindExact:
		return name == p.text
	case kindPrefix:
		return strings.HasPrefix(name, p.text)
	case kindSubstring:
		return strings.Contains(name, p.text)
	case kindRegexp:
		return p.re.MatchString(name)
	default:
		return false
	}
}

func (p Pattern) String() string {
	switch p.kind {
	case kindExact:
		return p.text
	case kindPrefix:
		return p.text + "*"
	case kindSubstring:
		return "*" + p.text + "*"
	case kindRegexp:
		return "/" + p.re.String() + "/"
	default:
		return "*"
	}
}

// treePrefix is the radix key prefix every match of p shares, and whether
// the prefix walk alone is enough to decide a match.
func (p Pattern) treePrefix() (string, bool) {
	switch p.kind {
	case kindExact:
		return p.text + keySep, true
	case kindPrefix:
		return p.text, true
	default:
		return "", false
	}
}
