package preflight

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggrep/ggrep/internal/lease"
)

func TestCheckWriterLeaseMissingStore(t *testing.T) {
	c := New()
	result := c.CheckWriterLease(filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, StatusWarn, result.Status)
}

func TestCheckWriterLeaseUnheld(t *testing.T) {
	c := New()
	dir := t.TempDir()
	result := c.CheckWriterLease(dir)
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "not held")
}

func TestCheckWriterLeaseHeldByLiveWriter(t *testing.T) {
	c := New()
	dir := t.TempDir()
	l, err := lease.Acquire(context.Background(), dir, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Release() })

	result := c.CheckWriterLease(dir)
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "live writer")
}

func TestCheckDaemonSocketUnreachable(t *testing.T) {
	c := New()
	result := c.CheckDaemonSocket(filepath.Join(t.TempDir(), "nope.sock"))
	assert.Equal(t, StatusWarn, result.Status)
}

func TestCheckDaemonSocketReachable(t *testing.T) {
	c := New()
	sockPath := filepath.Join(t.TempDir(), "daemon.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	result := c.CheckDaemonSocket(sockPath)
	assert.Equal(t, StatusPass, result.Status)
}
