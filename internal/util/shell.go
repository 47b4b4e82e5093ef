// Package util holds small string helpers shared by the monitor and the CLI.
package util

import "strings"

// ShellQuote wraps s in single quotes so sh treats it literally.
// Embedded single quotes become '\''.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
