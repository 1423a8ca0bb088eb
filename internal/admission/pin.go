package admission

import "sync"

// Pinner is the reference-count map of spec §4.9 "Snapshot pinning": every
// in-flight query pins the snapshot it opened, and GC (C8) treats any
// pinned id as retained regardless of the retention policy.
type Pinner struct {
	mu    sync.Mutex
	count map[string]int
}

// NewPinner constructs an empty Pinner.
func NewPinner() *Pinner {
	return &Pinner{count: make(map[string]int)}
}

// Pin increments snapshotID's reference count and returns an Unpin
// function; callers should defer the returned function immediately so a
// pin is never leaked on an error path (spec §5: "pin and unpin are
// paired by RAII").
func (p *Pinner) Pin(snapshotID string) (unpin func()) {
	p.mu.Lock()
	p.count[snapshotID]++
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.count[snapshotID]--
			if p.count[snapshotID] <= 0 {
				delete(p.count, snapshotID)
			}
		})
	}
}

// Pinned reports whether snapshotID currently has at least one live pin.
func (p *Pinner) Pinned(snapshotID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count[snapshotID] > 0
}

// Snapshot returns a copy of every currently pinned snapshot id, for GC to
// union into its retention set (spec §4.10 step 2).
func (p *Pinner) Snapshot() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool, len(p.count))
	for id, n := range p.count {
		if n > 0 {
			out[id] = true
		}
	}
	return out
}
