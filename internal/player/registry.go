package player

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"hls-playback/internal/playback"
)

// Registry is a concurrency-safe registry of playback sessions. Each session
// wraps one engine; the registry owns engine teardown so a deleted session
// never leaks goroutines or sinks.
type Registry struct {
	mu        sync.RWMutex
	newEngine func() *playback.Engine
	sessions  map[string]*playback.Engine
}

// NewRegistry constructs a registry that builds engines through newEngine.
func NewRegistry(newEngine func() *playback.Engine) *Registry {
	return &Registry{
		newEngine: newEngine,
		sessions:  make(map[string]*playback.Engine),
	}
}

// Create builds a new engine and registers it under a fresh session id.
func (r *Registry) Create() (string, *playback.Engine) {
	id := newSessionID()
	eng := r.newEngine()

	r.mu.Lock()
	r.sessions[id] = eng
	r.mu.Unlock()

	return id, eng
}

// Get returns the engine for the given session id.
func (r *Registry) Get(id string) (*playback.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, ok := r.sessions[id]
	return eng, ok
}

// Delete removes the session and destroys its engine. Deleting an unknown
// id reports false.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	eng, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		eng.Destroy()
	}
	return ok
}

// ActiveCount returns the number of live sessions. Used for metrics.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DestroyAll tears down every session. Used on shutdown.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	engines := make([]*playback.Engine, 0, len(r.sessions))
	for id, eng := range r.sessions {
		engines = append(engines, eng)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, eng := range engines {
		eng.Destroy()
	}
}

func newSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
