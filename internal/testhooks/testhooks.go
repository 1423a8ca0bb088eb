// Package testhooks implements the named fault-injection points Design
// Notes §9 requires at every crash-sensitive step of publish, compaction,
// and GC (e.g. "publish.before_pointer_swap"). Production code calls Fire
// unconditionally; it is a no-op unless a test has installed a hook.
package testhooks

import "sync"

var (
	mu    sync.RWMutex
	hooks map[string]func() error
)

// Fire invokes the hook registered for name, if any. Hooks are meant to
// return an injected error (e.g. to simulate a crash) or nil.
func Fire(name string) error {
	mu.RLock()
	h, ok := hooks[name]
	mu.RUnlock()
	if !ok {
		return nil
	}
	return h()
}

// Install registers fn to run when Fire(name) is called, returning a
// function that restores the previous state. Intended for use from
// table-driven crash-injection tests, one at a time.
func Install(name string, fn func() error) (restore func()) {
	mu.Lock()
	if hooks == nil {
		hooks = make(map[string]func() error)
	}
	prev, had := hooks[name]
	hooks[name] = fn
	mu.Unlock()

	return func() {
		mu.Lock()
		defer mu.Unlock()
		if had {
			hooks[name] = prev
		} else {
			delete(hooks, name)
		}
	}
}

// Named fault points referenced by spec.md Design Notes §9 and §4.3/§4.6/§4.10.
const (
	PublishAfterManifest        = "publish.after_manifest"
	PublishBeforePointerSwap    = "publish.before_pointer_swap"
	CompactionBeforePublish     = "compaction.before_publish"
	GCBeforeDelete              = "gc.before_delete"
)
