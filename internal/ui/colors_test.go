package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStyles(t *testing.T) {
	prev := SetEnabled(true)
	t.Cleanup(func() { SetEnabled(prev) })

	tests := []struct {
		name  string
		style func(string) string
		want  string
	}{
		{"bold", Bold, "\033[1mtotals\033[0m"},
		{"heading", Heading, "\033[1m\033[97mtotals\033[0m"},
		{"title", Title, "\033[1m\033[36mtotals\033[0m"},
		{"accent", Accent, "\033[36mtotals\033[0m"},
		{"success", Success, "\033[32mtotals\033[0m"},
		{"warn", Warn, "\033[33mtotals\033[0m"},
		{"error", Error, "\033[31mtotals\033[0m"},
		{"dim", Dim, "\033[2mtotals\033[0m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.style("totals"))
			assert.Empty(t, tt.style(""))
		})
	}
}

func TestStyles_Disabled(t *testing.T) {
	prev := SetEnabled(false)
	t.Cleanup(func() { SetEnabled(prev) })

	assert.False(t, Enabled())
	for _, style := range []func(string) string{Bold, Heading, Title, Accent, Success, Warn, Error, Dim} {
		assert.Equal(t, "3 failed", style("3 failed"))
	}
}
