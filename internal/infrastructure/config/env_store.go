package configinfra

import (
	"os"
	"sync"

	configports "kilometers.ai/boot/internal/core/ports/config"
)

// ProcessEnv reads and writes the real process environment.
type ProcessEnv struct{}

func NewProcessEnv() ProcessEnv { return ProcessEnv{} }

func (ProcessEnv) Lookup(key string) (string, bool) { return os.LookupEnv(key) }

func (ProcessEnv) Set(key, value string) error { return os.Setenv(key, value) }

// MapEnv is an isolated in-memory environment, safe for concurrent use.
type MapEnv struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewMapEnv returns a MapEnv seeded with a copy of vars.
func NewMapEnv(vars map[string]string) *MapEnv {
	m := &MapEnv{vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		m.vars[k] = v
	}
	return m
}

func (m *MapEnv) Lookup(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[key]
	return v, ok
}

func (m *MapEnv) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars[key] = value
	return nil
}

// Unset removes key; callers use it to clear state between independent builds.
func (m *MapEnv) Unset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vars, key)
}

var (
	_ configports.Env = ProcessEnv{}
	_ configports.Env = (*MapEnv)(nil)
)
