// Package ui holds the terminal building blocks shared by fleetmon's
// commands: the colour palette and status symbols, a line spinner for
// blocking calls, status and probe tables, the startup banner and an
// interactive server picker.
//
// Colours are ANSI codes so output follows the terminal theme; call
// DisableColors for --no-color. The full-screen dashboard lives in the
// dashboard subpackage.
package ui
