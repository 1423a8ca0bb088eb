package preflight

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/ggrep/ggrep/internal/lease"
)

// CheckWriterLease reports whether storeDir's writer lease, if any, looks
// healthy: either unheld (no writer currently running) or held by a live
// process. A stale lease file with a dead owner is a warning, not a
// failure, since the next sync/compaction/GC run steals it automatically
// (spec §4.1).
func (c *Checker) CheckWriterLease(storeDir string) CheckResult {
	result := CheckResult{Name: "writer_lease"}

	if _, err := os.Stat(storeDir); os.IsNotExist(err) {
		result.Status = StatusWarn
		result.Message = "store has not been synced yet"
		return result
	}

	if lease.IsHeld(storeDir) {
		result.Status = StatusPass
		result.Message = "held by a live writer"
		return result
	}
	if _, err := os.Stat(filepath.Join(storeDir, "locks", "writer_lease.json")); err == nil {
		result.Status = StatusWarn
		result.Message = "stale lease file left by a dead writer"
		return result
	}
	result.Status = StatusPass
	result.Message = "not held"
	return result
}

// CheckDaemonSocket reports whether a daemon is currently listening on
// socketPath.
func (c *Checker) CheckDaemonSocket(socketPath string) CheckResult {
	result := CheckResult{Name: "daemon_socket"}

	conn, err := net.DialTimeout("unix", socketPath, 500*time.Millisecond)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("no daemon listening at %s", socketPath)
		return result
	}
	_ = conn.Close()
	result.Status = StatusPass
	result.Message = fmt.Sprintf("daemon reachable at %s", socketPath)
	return result
}
