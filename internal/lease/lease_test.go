package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
)

func TestAcquireThenReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(context.Background(), dir, 50*time.Millisecond)
	require.NoError(t, err)
	assert.EqualValues(t, 1, l.Epoch())
	require.NoError(t, l.Release())

	l2, err := Acquire(context.Background(), dir, 50*time.Millisecond)
	require.NoError(t, err)
	// Release removed the record, so there is no prior epoch to bump: the
	// new lease starts again at 1.
	assert.EqualValues(t, 1, l2.Epoch())
	require.NoError(t, l2.Release())
}

func TestAcquireFailsWhileLiveHolderPresent(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(context.Background(), dir, 5*time.Second)
	require.NoError(t, err)
	defer l.Release()

	_, err = Acquire(context.Background(), dir, 5*time.Second)
	require.Error(t, err)
	assert.Equal(t, ggrepErrors.KindBusy, ggrepErrors.KindOf(err))
}

func TestVerifyFailsAfterRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(context.Background(), dir, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, l.Verify())

	require.NoError(t, l.Release())

	l2, err := Acquire(context.Background(), dir, 50*time.Millisecond)
	require.NoError(t, err)
	defer l2.Release()

	err = l.Verify()
	require.Error(t, err)
	assert.Equal(t, ggrepErrors.KindLeaseLost, ggrepErrors.KindOf(err))
}
