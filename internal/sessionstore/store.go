// Package sessionstore remembers which conversation a widget opened, so a
// returning visitor resumes it instead of creating a new one.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("sessionstore: not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Entry is one stored widget session.
type Entry struct {
	Key       string `json:"key"`
	Value     string `json:"conversation_uuid"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Lister is implemented by backends that can enumerate their sessions.
// Entries are sorted by key.
type Lister interface {
	List(ctx context.Context) ([]Entry, error)
}

const keyPrefix = "chat_widget:"

// Key scopes the stored conversation UUID to one backend and one source.
func Key(baseURL, source string) string {
	host := strings.TrimRight(baseURL, "/")
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host + strings.TrimRight(u.Path, "/")
	}
	return fmt.Sprintf("%s%s:%s", keyPrefix, host, source)
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.values))
	for k, v := range s.values {
		entries = append(entries, Entry{Key: k, Value: v})
	}
	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
}
