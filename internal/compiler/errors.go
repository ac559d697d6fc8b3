package compiler

import (
	"fmt"
	"strings"
)

// Diagnostic is a single compile error.
type Diagnostic struct {
	Line    int
	Where   string
	Message string
}

func (d Diagnostic) String() string {
	if d.Where == "" {
		return fmt.Sprintf("[line %d] Error: %s", d.Line, d.Message)
	}
	return fmt.Sprintf("[line %d] Error %s: %s", d.Line, d.Where, d.Message)
}

// Error is returned by Compile when the source has one or more errors.
type Error struct {
	diagnostics []Diagnostic
}

func (e *Error) Error() string {
	lines := make([]string, len(e.diagnostics))
	for i, d := range e.diagnostics {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

// Diagnostics returns every reported error in source order.
func (e *Error) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(e.diagnostics))
	copy(out, e.diagnostics)
	return out
}
