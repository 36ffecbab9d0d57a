// Package store ships the SessionStore implementations backing the
// authentication pipeline: an in-process store for single-node
// deployments and tests, and a Redis store for shared backends.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"authgate/core"
)

// SessionIDAccessor is implemented by WebContext adapters that transport
// the session id (typically via a cookie). The stores resolve the current
// session through it.
type SessionIDAccessor interface {
	SessionID() string
	SetSessionID(id string)
}

// ContextProvider is optionally implemented by WebContext adapters to
// supply a request-scoped context for backend calls.
type ContextProvider interface {
	Context() context.Context
}

func requestContext(web core.WebContext) context.Context {
	if cp, ok := web.(ContextProvider); ok {
		return cp.Context()
	}
	return context.Background()
}

func accessor(web core.WebContext) SessionIDAccessor {
	acc, _ := web.(SessionIDAccessor)
	return acc
}

func newSessionID() string { return ksuid.New().String() }

type memorySession struct {
	values  map[string]any
	expires time.Time
}

// MemoryStore is an in-process SessionStore with sliding expiration.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	ttl      time.Duration
}

// NewMemoryStore builds a store whose sessions expire after ttl of
// inactivity. Zero disables expiration.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession), ttl: ttl}
}

func (s *MemoryStore) session(id string, touch bool) *memorySession {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if !sess.expires.IsZero() && time.Now().After(sess.expires) {
		delete(s.sessions, id)
		return nil
	}
	if touch && s.ttl > 0 {
		sess.expires = time.Now().Add(s.ttl)
	}
	return sess
}

// ID implements core.SessionStore.
func (s *MemoryStore) ID(web core.WebContext, create bool) string {
	acc := accessor(web)
	if acc == nil {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id := acc.SessionID(); id != "" {
		if s.session(id, true) != nil {
			return id
		}
	}
	if !create {
		return ""
	}

	id := newSessionID()
	sess := &memorySession{values: make(map[string]any)}
	if s.ttl > 0 {
		sess.expires = time.Now().Add(s.ttl)
	}
	s.sessions[id] = sess
	acc.SetSessionID(id)
	return id
}

// Get implements core.SessionStore.
func (s *MemoryStore) Get(web core.WebContext, key string) (any, bool) {
	acc := accessor(web)
	if acc == nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(acc.SessionID(), true)
	if sess == nil {
		return nil, false
	}
	v, ok := sess.values[key]
	return v, ok
}

// Set implements core.SessionStore. The session is created lazily on the
// first write; a nil value removes the entry.
func (s *MemoryStore) Set(web core.WebContext, key string, value any) {
	acc := accessor(web)
	if acc == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(acc.SessionID(), true)
	if sess == nil {
		if value == nil {
			return
		}
		id := newSessionID()
		sess = &memorySession{values: make(map[string]any)}
		if s.ttl > 0 {
			sess.expires = time.Now().Add(s.ttl)
		}
		s.sessions[id] = sess
		acc.SetSessionID(id)
	}

	if value == nil {
		delete(sess.values, key)
		return
	}
	sess.values[key] = value
}

// Destroy implements core.SessionStore.
func (s *MemoryStore) Destroy(web core.WebContext) bool {
	acc := accessor(web)
	if acc == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := acc.SessionID()
	if id == "" {
		return false
	}
	delete(s.sessions, id)
	acc.SetSessionID("")
	return true
}

// Renew implements core.SessionStore: the id changes, the entries stay.
func (s *MemoryStore) Renew(web core.WebContext) bool {
	acc := accessor(web)
	if acc == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldID := acc.SessionID()
	sess := s.session(oldID, true)
	if sess == nil {
		return false
	}
	newID := newSessionID()
	s.sessions[newID] = sess
	delete(s.sessions, oldID)
	acc.SetSessionID(newID)
	return true
}

// DestroyByID implements core.SessionStoreByID for back-channel logout.
func (s *MemoryStore) DestroyByID(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// MemoryIndex is an in-process core.SessionKeyIndex.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryIndex builds an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]string)}
}

// Bind implements core.SessionKeyIndex.
func (i *MemoryIndex) Bind(_ context.Context, key, sessionID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[key] = sessionID
	return nil
}

// Resolve implements core.SessionKeyIndex.
func (i *MemoryIndex) Resolve(_ context.Context, key string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	id, ok := i.entries[key]
	return id, ok
}

// Remove implements core.SessionKeyIndex.
func (i *MemoryIndex) Remove(_ context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, key)
	return nil
}
