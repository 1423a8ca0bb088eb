package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := New(KindBusy, "too many queries")
	require.True(t, errors.Is(err, &Error{Kind: KindBusy}))
	require.False(t, errors.Is(err, &Error{Kind: KindTimeout}))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindInternal, "publish failed", cause)
	require.ErrorIs(t, err, cause)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 10, ExitCode(KindBusy))
	assert.Equal(t, 11, ExitCode(KindTimeout))
	assert.Equal(t, 12, ExitCode(KindCancelled))
	assert.Equal(t, 13, ExitCode(KindIncompatible))
	assert.Equal(t, 1, ExitCode(KindInternal))
	assert.Equal(t, 0, ExitCode(""))
}

func TestSanitizeStripsControlCharacters(t *testing.T) {
	got := Sanitize("line1\x07\nline2\x1b[31m")
	assert.Equal(t, "line1 line2[31m", got)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindBusy, "")))
	assert.False(t, IsRetryable(New(KindCancelled, "")))
}
