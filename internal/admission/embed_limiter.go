package admission

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// EmbedLimiter is the host-wide "N-of-M" embed admission ticket service
// (Design Notes §9): one lock file per slot under a shared host directory,
// holders write pid+mtime, and a slot is considered stale (reclaimable)
// once its pid is dead and its mtime is older than TTL (spec §3 "Embed
// limiter lock files").
type EmbedLimiter struct {
	dir   string
	slots int
	ttl   time.Duration
}

// NewEmbedLimiter constructs a limiter over <dir>/embed-slots/slot-<n>.lock
// for n in [0, slots).
func NewEmbedLimiter(dir string, slots int, ttl time.Duration) *EmbedLimiter {
	if slots <= 0 {
		slots = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &EmbedLimiter{dir: filepath.Join(dir, "embed-slots"), slots: slots, ttl: ttl}
}

func (l *EmbedLimiter) slotPath(n int) string {
	return filepath.Join(l.dir, fmt.Sprintf("slot-%d.lock", n))
}

// Permit is a held embed slot; Release frees it for another holder.
type Permit struct {
	path string
}

// spinInterval is the poll interval while every slot is held by a live
// process (spec §5: "contention is handled by spin-with-sleep").
const spinInterval = 25 * time.Millisecond

// Acquire blocks (respecting ctx) until a slot is free or reclaimed as
// stale, writing this process's pid+mtime as the new holder.
func (l *EmbedLimiter) Acquire(ctx context.Context) (*Permit, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create embed slot directory: %w", err)
	}

	ticker := time.NewTicker(spinInterval)
	defer ticker.Stop()

	for {
		for n := 0; n < l.slots; n++ {
			path := l.slotPath(n)
			if l.tryClaim(path) {
				return &Permit{path: path}, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// tryClaim attempts to atomically claim one slot file, either because it
// doesn't exist yet or because its current holder is stale.
func (l *EmbedLimiter) tryClaim(path string) bool {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
		f.Close()
		return werr == nil
	}
	if !os.IsExist(err) {
		return false
	}

	if !l.isStale(path) {
		return false
	}
	// Best-effort reclaim: remove then recreate. A concurrent reclaimer
	// racing here just loses the race and spins again next tick.
	_ = os.Remove(path)
	f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
	f.Close()
	return werr == nil
}

func (l *EmbedLimiter) isStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true // already gone; treat as claimable
	}
	if time.Since(info.ModTime()) <= l.ttl {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return true
	}
	return !pidAlive(pid)
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Release removes the slot file, freeing it for the next holder.
func (p *Permit) Release() error {
	return os.Remove(p.path)
}
