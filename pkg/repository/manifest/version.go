package manifest

import (
	"strconv"
	"strings"
)

// Version is a dotted sequence of non-negative integer segments, e.g. 1.2.0.
// Missing trailing segments compare as zero, so 1.0 and 1.0.0 are equal.
type Version struct {
	segments []int
	raw      string
}

func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, &FormatError{Input: s, Reason: "empty version"}
	}
	parts := strings.Split(raw, ".")
	segments := make([]int, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return Version{}, &FormatError{Input: s, Reason: "empty version segment"}
		}
		// Atoi accepts a leading sign, segments may not have one
		if p[0] < '0' || p[0] > '9' {
			return Version{}, &FormatError{Input: s, Reason: "invalid version segment " + strconv.Quote(p)}
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, &FormatError{Input: s, Reason: "invalid version segment " + strconv.Quote(p)}
		}
		segments = append(segments, n)
	}
	return Version{segments: segments, raw: raw}, nil
}

// MustParseVersion is ParseVersion for literals known to be valid.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Segments returns a copy of the numeric segments.
func (v Version) Segments() []int {
	out := make([]int, len(v.segments))
	copy(out, v.segments)
	return out
}

// IsZero reports whether v is the unset Version value.
func (v Version) IsZero() bool {
	return len(v.segments) == 0
}

func (v Version) Compare(other Version) int {
	n := max(len(v.segments), len(other.segments))
	for i := range n {
		a, b := segmentAt(v.segments, i), segmentAt(other.segments, i)
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Bump returns the exclusive upper bound used by the ~> operator: the last
// segment is dropped and the new last segment is incremented. Two segment
// versions are read as major.minor.0, so 1.2 bumps to 1.3 like 1.2.3 does.
// A single segment version is simply incremented.
func (v Version) Bump() Version {
	segs := v.Segments()
	switch len(segs) {
	case 0:
		return versionFromSegments([]int{1})
	case 1:
		return versionFromSegments([]int{segs[0] + 1})
	case 2:
		segs = append(segs, 0)
	}
	segs = segs[:len(segs)-1]
	segs[len(segs)-1]++
	return versionFromSegments(segs)
}

func (v Version) String() string {
	if v.raw != "" {
		return v.raw
	}
	if len(v.segments) == 0 {
		return "0"
	}
	return joinSegments(v.segments)
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(data []byte) error {
	parsed, err := ParseVersion(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func versionFromSegments(segs []int) Version {
	return Version{segments: segs, raw: joinSegments(segs)}
}

func joinSegments(segs []int) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ".")
}

func segmentAt(segs []int, i int) int {
	if i < len(segs) {
		return segs[i]
	}
	return 0
}
