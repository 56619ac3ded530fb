package resolver

import (
	"fmt"
	"strings"
)

// Error describes a command resolver failure: spawn problems, non-zero
// exit, signal kill, timeout, cancellation, or malformed output.
type Error struct {
	Resolver  string
	Detail    string
	Stderr    string
	Truncated bool
	Cancelled bool
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command resolver %s: %s", e.Resolver, e.Detail)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, ": %s", stderr)
	}
	if e.Truncated {
		b.WriteString(" (output truncated)")
	}
	return b.String()
}
