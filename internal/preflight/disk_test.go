package preflight

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckDiskSpacePassesForTempDir(t *testing.T) {
	c := New()
	result := c.CheckDiskSpace(t.TempDir())
	assert.Equal(t, "disk_space", result.Name)
	assert.True(t, result.Required)
	assert.Contains(t, result.Message, "free")
}

func TestCheckDiskSpaceFailsForMissingPath(t *testing.T) {
	c := New()
	result := c.CheckDiskSpace("/no/such/path/for/ggrep/preflight")
	assert.Equal(t, StatusFail, result.Status)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{500, "500 bytes"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatBytes(tt.bytes))
		})
	}
}
