package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStyles_ReturnsStyles(t *testing.T) {
	styles := DefaultStyles()

	assert.NotNil(t, styles.Header)
	assert.NotNil(t, styles.Success)
	assert.NotNil(t, styles.Warning)
	assert.NotNil(t, styles.Error)
	assert.NotNil(t, styles.Dim)
	assert.NotNil(t, styles.Phase)
	assert.NotNil(t, styles.Active)
	assert.NotNil(t, styles.Label)
}

func TestNoColorStyles_ReturnsEmptyStyles(t *testing.T) {
	styles := NoColorStyles()

	_ = styles.Header.Render("")
	_ = styles.Success.Render("")
	_ = styles.Warning.Render("")
	_ = styles.Error.Render("")
	_ = styles.Dim.Render("")
	_ = styles.Phase.Render("")
	_ = styles.Active.Render("")
	_ = styles.Label.Render("")
}

func TestDefaultStyles_HeaderIsBold(t *testing.T) {
	styles := DefaultStyles()

	rendered := styles.Header.Render("Test")

	assert.True(t, styles.Header.GetBold())
	assert.Contains(t, rendered, "Test")
}

func TestStyles_RenderPhaseIndicators(t *testing.T) {
	styles := DefaultStyles()

	active := styles.Active.Render("●")
	dim := styles.Dim.Render("○")

	assert.Contains(t, active, "●")
	assert.Contains(t, dim, "○")
}

func TestGetStyles_WithNoColor(t *testing.T) {
	styles := GetStyles(true)

	text := styles.Success.Render("test")
	assert.Equal(t, "test", text)
}

func TestGetStyles_WithColor(t *testing.T) {
	styles := GetStyles(false)

	text := styles.Success.Render("test")
	assert.Contains(t, text, "test")
}
