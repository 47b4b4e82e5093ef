package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"8.8.8.8", "'8.8.8.8'"},
		{"with space", "'with space'"},
		{"with'quote", `'with'\''quote'`},
		{"", "''"},
		{"$(reboot)", "'$(reboot)'"},
		{"`id`", "'`id`'"},
		{"a; rm -rf /", "'a; rm -rf /'"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShellQuote(tt.input))
		})
	}
}

func TestPluralize(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  string
	}{
		{"zero returns plural", 0, "jobs"},
		{"one returns singular", 1, "job"},
		{"two returns plural", 2, "jobs"},
		{"negative returns plural", -1, "jobs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pluralize(tt.count, "job", "jobs"))
		})
	}
}

func TestCount(t *testing.T) {
	assert.Equal(t, "1 server", Count(1, "server", "servers"))
	assert.Equal(t, "0 servers", Count(0, "server", "servers"))
	assert.Equal(t, "12 servers", Count(12, "server", "servers"))
}
