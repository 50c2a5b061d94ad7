package ply

import (
	"fmt"
	"os"
)

// Diagnostics receives the two kinds of messages the decoder produces
// (spec.md §6.4): non-fatal warnings (unknown element, demoted
// property, reordered face properties, ...) and a fatal message
// immediately before a read returns false. Both are optional; a nil
// Diagnostics is replaced by defaultDiagnostics, which prints warnings
// to stdout in the rest of this repository's fmt.Printf style and
// fatal messages to stderr.
type Diagnostics interface {
	Warn(format string, args ...any)
	Fatal(format string, args ...any)
}

type stdoutDiagnostics struct{}

func (stdoutDiagnostics) Warn(format string, args ...any) {
	fmt.Printf("Warning: "+format+"\n", args...)
}

func (stdoutDiagnostics) Fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

var defaultDiagnostics Diagnostics = stdoutDiagnostics{}

func diagOrDefault(d Diagnostics) Diagnostics {
	if d == nil {
		return defaultDiagnostics
	}
	return d
}
