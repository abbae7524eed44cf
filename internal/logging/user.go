package logging

import (
	"fmt"
	"io"
	"os"
)

// User-facing output functions with status glyph prefixes.
// These write to Stdout/Stderr directly for CLI output,
// separate from the structured debug logging.

var (
	// Stdout receives UserInfo and UserSuccess output.
	Stdout io.Writer = os.Stdout

	// Stderr receives UserWarning and UserError output.
	Stderr io.Writer = os.Stderr
)

// UserInfo prints an info message to Stdout.
func UserInfo(format string, args ...interface{}) {
	fmt.Fprintf(Stdout, "ℹ "+format+"\n", args...)
}

// UserSuccess prints a success message to Stdout.
func UserSuccess(format string, args ...interface{}) {
	fmt.Fprintf(Stdout, "✓ "+format+"\n", args...)
}

// UserWarning prints a warning message to Stderr.
func UserWarning(format string, args ...interface{}) {
	fmt.Fprintf(Stderr, "⚠ "+format+"\n", args...)
}

// UserError prints an error message to Stderr.
func UserError(format string, args ...interface{}) {
	fmt.Fprintf(Stderr, "✗ "+format+"\n", args...)
}
