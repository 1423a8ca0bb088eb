// Package lease implements the per-store writer lease (spec §4.1):
// single-writer exclusion with epoch-based fencing and a heartbeat that
// lets a crashed holder's lease be stolen once it goes stale.
package lease

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
)

// DefaultTTL is the lease time-to-live; a holder is presumed dead once
// last_heartbeat_at is older than this and its PID is no longer alive.
const DefaultTTL = 15 * time.Second

// Record is the on-disk shape of locks/writer_lease.json (spec §3).
type Record struct {
	SchemaVersion   int       `json:"schema_version"`
	OwnerID         string    `json:"owner_id"`
	PID             int       `json:"pid"`
	Hostname        string    `json:"hostname"`
	StartedAt       time.Time `json:"started_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	LeaseEpoch      int64     `json:"lease_epoch"`
	LeaseTTLMs      int64     `json:"lease_ttl_ms"`
	StagingTxnID    string    `json:"staging_txn_id,omitempty"`
}

const schemaVersion = 1

// Lease represents a held writer lease plus its background heartbeat.
type Lease struct {
	storeDir string
	ttl      time.Duration
	guard    *flock.Flock

	mu      sync.RWMutex
	record  Record
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func leasePath(storeDir string) string { return filepath.Join(storeDir, "locks", "writer_lease.json") }
func guardPath(storeDir string) string { return filepath.Join(storeDir, "locks", "lease_guard.lock") }

// Acquire takes the guard lock, inspects any existing lease, and either
// takes over a stale lease (bumping lease_epoch) or fails with kind
// "busy" if a live writer already holds it.
func Acquire(ctx context.Context, storeDir string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(filepath.Join(storeDir, "locks"), 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}

	guard := flock.New(guardPath(storeDir))
	locked, err := guard.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, ggrepErrors.Wrap(ggrepErrors.KindInternal, "acquire lease guard", err)
	}
	if !locked {
		return nil, ggrepErrors.New(ggrepErrors.KindBusy, "lease guard held by another process")
	}
	defer guard.Unlock()

	existing, err := readRecord(storeDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read existing lease: %w", err)
	}

	var nextEpoch int64 = 1
	if existing != nil {
		if !isStale(existing, ttl) {
			return nil, ggrepErrors.New(ggrepErrors.KindBusy, "writer lease held by a live process").
				WithDetail("owner_id", existing.OwnerID).
				WithDetail("pid", fmt.Sprint(existing.PID))
		}
		nextEpoch = existing.LeaseEpoch + 1
	}

	hostname, _ := os.Hostname()
	now := time.Now()
	rec := Record{
		SchemaVersion:   schemaVersion,
		OwnerID:         uuid.NewString(),
		PID:             os.Getpid(),
		Hostname:        hostname,
		StartedAt:       now,
		LastHeartbeatAt: now,
		LeaseEpoch:      nextEpoch,
		LeaseTTLMs:      ttl.Milliseconds(),
	}
	if err := writeRecord(storeDir, rec); err != nil {
		return nil, fmt.Errorf("write lease: %w", err)
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	l := &Lease{
		storeDir: storeDir,
		ttl:      ttl,
		guard:    guard,
		record:   rec,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go l.heartbeatLoop(hbCtx)
	return l, nil
}

// IsHeld reports whether storeDir currently has a live writer lease,
// without acquiring it. Used by health checks (spec §4.11 "lease_held").
func IsHeld(storeDir string) bool {
	rec, err := readRecord(storeDir)
	if err != nil {
		return false
	}
	return !isStale(rec, time.Duration(rec.LeaseTTLMs)*time.Millisecond)
}

// OwnerID and Epoch identify this lease for fencing checks.
func (l *Lease) OwnerID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.record.OwnerID
}

func (l *Lease) Epoch() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.record.LeaseEpoch
}

// Verify implements verify_lease_owner(store_id, owner_id, lease_epoch):
// it re-reads the on-disk record and fails with kind lease_lost if it no
// longer matches this Lease's (owner_id, lease_epoch). Call this after
// acquiring the resources for a mutation but before making it visible.
func (l *Lease) Verify() error {
	l.mu.RLock()
	owner, epoch := l.record.OwnerID, l.record.LeaseEpoch
	l.mu.RUnlock()

	current, err := readRecord(l.storeDir)
	if err != nil {
		return ggrepErrors.Wrap(ggrepErrors.KindLeaseLost, "re-read writer lease", err)
	}
	if current.OwnerID != owner || current.LeaseEpoch != epoch {
		return ggrepErrors.New(ggrepErrors.KindLeaseLost, "writer lease no longer current").
			WithDetail("owner_id", owner).
			WithDetail("current_owner_id", current.OwnerID)
	}
	return nil
}

// Release cancels the heartbeat and, if the on-disk lease still matches
// this holder, removes it.
func (l *Lease) Release() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	owner, epoch := l.record.OwnerID, l.record.LeaseEpoch
	l.mu.Unlock()

	l.cancel()
	<-l.done

	guard := flock.New(guardPath(l.storeDir))
	if err := guard.Lock(); err != nil {
		return fmt.Errorf("acquire guard for release: %w", err)
	}
	defer guard.Unlock()

	current, err := readRecord(l.storeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if current.OwnerID == owner && current.LeaseEpoch == epoch {
		return os.Remove(leasePath(l.storeDir))
	}
	return nil
}

func (l *Lease) heartbeatLoop(ctx context.Context) {
	defer close(l.done)
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			l.record.LastHeartbeatAt = time.Now()
			rec := l.record
			l.mu.Unlock()
			_ = writeRecord(l.storeDir, rec) // best-effort; Verify() catches loss
		}
	}
}

func isStale(rec *Record, ttl time.Duration) bool {
	if time.Since(rec.LastHeartbeatAt) <= ttl {
		return false
	}
	return !processAlive(rec.PID)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func readRecord(storeDir string) (*Record, error) {
	data, err := os.ReadFile(leasePath(storeDir))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode lease record: %w", err)
	}
	return &rec, nil
}

func writeRecord(storeDir string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(leasePath(storeDir), data, 0o644)
}
