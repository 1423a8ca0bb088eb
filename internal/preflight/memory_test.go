package preflight

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckMemoryPasses(t *testing.T) {
	c := New()
	result := c.CheckMemory()
	assert.Equal(t, "memory", result.Name)
	assert.Equal(t, StatusPass, result.Status)
}

func TestEstimateAvailableMemoryAboveMinimum(t *testing.T) {
	assert.GreaterOrEqual(t, estimateAvailableMemory(), uint64(MinMemoryBytes))
}
