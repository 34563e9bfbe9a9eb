package manifest

import "fmt"

// FormatError reports a malformed version, requirement or spec document.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed input %q: %s", e.Input, e.Reason)
}
