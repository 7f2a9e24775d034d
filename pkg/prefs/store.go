// Package prefs stores user preferences such as the preferred book language.
package prefs

import (
	"context"
	"errors"
	"sync"

	"github.com/Sternrassler/catalog-pager/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KeyPreferredBookLang holds the ISO code of the preferred catalog language.
const KeyPreferredBookLang = "preferred_book_language"

// ErrEmptyKey is returned for operations on an empty key.
var ErrEmptyKey = errors.New("preference key is empty")

var prefsOperationsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
	Name: "prefs_operations_total",
	Help: "Total preference operations by backend, operation and result",
}, []string{"backend", "operation", "result"})

// Store reads and writes string preferences.
type Store interface {
	// GetString returns the value of key, or def if it was never set.
	GetString(ctx context.Context, key, def string) (string, error)

	// PutString stores value under key.
	PutString(ctx context.Context, key, value string) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// GetString implements Store.
func (s *MemoryStore) GetString(_ context.Context, key, def string) (string, error) {
	if key == "" {
		prefsOperationsTotal.WithLabelValues("memory", "get", "error").Inc()
		return def, ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		prefsOperationsTotal.WithLabelValues("memory", "get", "miss").Inc()
		return def, nil
	}
	prefsOperationsTotal.WithLabelValues("memory", "get", "hit").Inc()
	return v, nil
}

// PutString implements Store.
func (s *MemoryStore) PutString(_ context.Context, key, value string) error {
	if key == "" {
		prefsOperationsTotal.WithLabelValues("memory", "put", "error").Inc()
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	prefsOperationsTotal.WithLabelValues("memory", "put", "ok").Inc()
	return nil
}
