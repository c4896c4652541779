package server

import (
	"fmt"
	"sync"
)

// scope holds decorations. Lookups fall through to the parent.
type scope struct {
	mu     sync.RWMutex
	values map[string]interface{}
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{values: make(map[string]interface{}), parent: parent}
}

func (s *scope) get(name string) (interface{}, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		v, ok := cur.values[name]
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

func (s *scope) set(name string, value interface{}) error {
	if name == "" {
		return fmt.Errorf("decorator name is required")
	}
	if _, exists := s.get(name); exists {
		return fmt.Errorf("%w: %s", ErrDecoratorPresent, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return nil
}
