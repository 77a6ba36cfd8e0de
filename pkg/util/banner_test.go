package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorCode(t *testing.T) {
	assert.Equal(t, ColorRed, colorCode("ColorRed"))
	assert.Equal(t, ColorGreen, colorCode("green"))
	assert.Equal(t, ColorReset, colorCode("purple"))
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "agent", "cyan", "v1.0.0")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, ColorCyan))
	assert.Contains(t, out, "agent v1.0.0")
	assert.Greater(t, strings.Count(out, "\n"), 2)
}
