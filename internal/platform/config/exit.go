package config

import (
	"fmt"
	"os"
)

// Exitf writes a formatted error message to stderr and exits with code.
// A code below 1 is raised to 1 so fatal paths never report success.
func Exitf(code int, format string, args ...any) {
	if code < 1 {
		code = 1
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
