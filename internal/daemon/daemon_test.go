package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ggrep/ggrep/internal/config"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	eng := config.DefaultEngineConfig()
	return Config{
		StoreDir:          dir,
		StoreID:           "store-1",
		CanonicalRoot:     dir,
		ConfigFingerprint: "cfg-fp",
		IgnoreFingerprint: "ignore-fp",
		SocketPath:        filepath.Join(dir, "store-1.sock"),
		PIDPath:           filepath.Join(dir, "store-1.pid"),
		IDPath:            filepath.Join(dir, "store-1.id"),
		Engine:            eng,
		LeaseTTL:          time.Second,
	}
}

func TestClaimSocketRefusesLiveListener(t *testing.T) {
	d1 := New(testConfig(t), nil, nil)
	cfg := testConfig(t)
	d1.cfg = cfg
	require.NoError(t, d1.claimSocket())
	defer d1.listener.Close()

	d2 := New(cfg, nil, nil)
	err := d2.claimSocket()
	require.Error(t, err)
}

func TestClaimSocketReclaimsStaleSocketFile(t *testing.T) {
	cfg := testConfig(t)

	// A crashed daemon leaves its socket inode behind with nothing
	// listening on it; claimSocket must remove it and bind fresh rather
	// than treating its mere existence as "already running".
	require.NoError(t, os.WriteFile(cfg.SocketPath, nil, 0o644))

	d := New(cfg, nil, nil)
	require.NoError(t, d.claimSocket())
	d.listener.Close()
}

func TestIdleLoopShutsDownAfterQuietPeriod(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.IdleTimeoutSecs = 1
	d := New(cfg, nil, nil)
	d.touch()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	shutdown := make(chan struct{})
	done := make(chan struct{})
	go func() {
		d.idleLoop(ctx, func() { close(shutdown) })
		close(done)
	}()

	select {
	case <-shutdown:
	case <-ctx.Done():
		t.Fatal("idle loop never fired shutdown")
	}
	<-done
}

func TestIdleLoopDoesNotFireWhileSyncing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.IdleTimeoutSecs = 1
	d := New(cfg, nil, nil)
	d.touch()
	d.mu.Lock()
	d.syncing = true
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	fired := false
	d.idleLoop(ctx, func() { fired = true })
	require.False(t, fired)
}
