package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectDirective     = "cap.directive.dispatch.v1"
	SubjectDispatchEvent = "directive.dispatched"
)

// BuildDispatchSubject builds the per-operation subject under base, e.g.
// "directive.dispatched.run_tests". Operation names come from generator output,
// so any byte that is not valid in a subject token is replaced with '_'.
func BuildDispatchSubject(base, operation string) string {
	return fmt.Sprintf("%s.%s", base, SubjectToken(operation))
}

// SubjectToken maps s onto a single subject token.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
