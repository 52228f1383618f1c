// Package storefake is an in-memory store.Store used in tests. Expired
// entries are filtered lazily, the same guarantee the Redis backend gives
// through key TTLs.
package storefake

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/isotammi/qondor-cloudapp/internal/apperr"
	"github.com/isotammi/qondor-cloudapp/store"
)

var _ store.Store = (*Store)(nil)

type entry struct {
	doc       []byte
	expiresIn time.Duration
	expiresAt time.Time // zero means no expiry
}

type Store struct {
	mu      sync.RWMutex
	entries map[string]map[string]entry // collection -> id -> entry
	nowFunc func() time.Time
}

type Option func(*Store)

// WithNowFunc sets the clock (for expiry tests).
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func New(options ...Option) *Store {
	s := &Store{
		entries: make(map[string]map[string]entry),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Insert(_ context.Context, collection string, doc any, ttl time.Duration) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	if _, ok := s.entries[collection]; !ok {
		s.entries[collection] = make(map[string]entry)
	}
	s.entries[collection][id] = s.newEntry(raw, ttl)
	return id, nil
}

func (s *Store) Replace(_ context.Context, collection, id string, doc any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveEntryLocked(collection, id); !ok {
		return false, nil
	}
	s.entries[collection][id] = s.newEntry(raw, ttl)
	return true, nil
}

func (s *Store) Get(_ context.Context, collection, id string, dest any, refresh bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveEntryLocked(collection, id)
	if !ok {
		return apperr.ErrNotFound
	}
	if refresh && e.expiresIn > 0 {
		e.expiresAt = s.nowFunc().Add(e.expiresIn)
		s.entries[collection][id] = e
	}
	return json.Unmarshal(e.doc, dest)
}

func (s *Store) FindOne(_ context.Context, collection string, match store.Fields, dest any) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.nowFunc()
	for id, e := range s.entries[collection] {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			continue
		}
		if !matches(e.doc, match) {
			continue
		}
		return id, json.Unmarshal(e.doc, dest)
	}
	return "", apperr.ErrNotFound
}

func (s *Store) Delete(_ context.Context, collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveEntryLocked(collection, id); !ok {
		return false, nil
	}
	delete(s.entries[collection], id)
	return true, nil
}

func (s *Store) newEntry(raw []byte, ttl time.Duration) entry {
	e := entry{doc: raw}
	if ttl > 0 {
		e.expiresIn = ttl
		e.expiresAt = s.nowFunc().Add(ttl)
	}
	return e
}

// liveEntryLocked returns the entry at id if it exists and has not
// expired, evicting it when it has. Caller must hold mu.
func (s *Store) liveEntryLocked(collection, id string) (entry, bool) {
	e, ok := s.entries[collection][id]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.nowFunc().Before(e.expiresAt) {
		delete(s.entries[collection], id)
		return entry{}, false
	}
	return e, true
}

func matches(doc []byte, match store.Fields) bool {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return false
	}
	for k, want := range match {
		got, ok := m[k].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}
