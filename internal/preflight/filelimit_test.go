package preflight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFileDescriptors(t *testing.T) {
	c := New()
	result := c.CheckFileDescriptors()
	require.Equal(t, "file_descriptors", result.Name)
	assert.True(t, result.Required)
	assert.Contains(t, result.Message, "minimum")
}
