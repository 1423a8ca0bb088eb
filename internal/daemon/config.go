// Package daemon implements the long-running per-store process (spec §4.12,
// C12): the accept loop over the wire protocol, the background sync loop
// with debounced watch integration, and the idle-timeout shutdown.
// Grounded on the teacher's internal/daemon package (server.go's accept
// loop shape, config.go's socket/pid layout, pidfile.go's PID-file
// lifecycle), generalized from the teacher's single shared daemon (one
// socket for every loaded project) to one daemon process per store, the
// model spec §6 "<base>/sockets/<socket-name>.{sock,pid,id}" requires.
package daemon

import (
	"path/filepath"
	"time"

	"github.com/ggrep/ggrep/internal/config"
)

// Config carries everything one daemon instance needs to serve one store.
type Config struct {
	StoreDir string
	StoreID  string

	CanonicalRoot     string
	ConfigFingerprint string
	IgnoreFingerprint string

	SocketPath string
	PIDPath    string
	IDPath     string

	Engine config.EngineConfig

	LeaseTTL time.Duration
}

// NewConfig derives the socket/pid/id paths for storeID from
// internal/config's <base>/sockets layout (spec §6) and fills in the
// engine tunables from the project's loaded config (or its defaults,
// if engineCfg is the zero value).
func NewConfig(storeID, canonicalRoot, configFP, ignoreFP string, engineCfg config.EngineConfig) Config {
	sockPath := config.SocketPath(storeID)
	dir := filepath.Dir(sockPath)
	if engineCfg == (config.EngineConfig{}) {
		engineCfg = config.DefaultEngineConfig()
	}
	return Config{
		StoreDir:          config.StoreDataDir(storeID),
		StoreID:           storeID,
		CanonicalRoot:     canonicalRoot,
		ConfigFingerprint: configFP,
		IgnoreFingerprint: ignoreFP,
		SocketPath:        sockPath,
		PIDPath:           filepath.Join(dir, storeID+".pid"),
		IDPath:            filepath.Join(dir, storeID+".id"),
		Engine:            engineCfg,
		LeaseTTL:          30 * time.Second,
	}
}
