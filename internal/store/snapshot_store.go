package store

import (
	"errors"
	"sync"

	"OptiFlow/internal/domain/models"
)

// ErrSnapshotNotFound means no snapshot has been computed for the key yet.
// REST handlers translate it to 404.
var ErrSnapshotNotFound = errors.New("store: snapshot not found")

// SnapshotStore holds the latest DerivedSnapshot per key. Writes replace the
// whole value atomically under the lock; readers never observe a partially
// updated payload. Implements repository.SnapshotSink.
type SnapshotStore struct {
	mu    sync.RWMutex
	snaps map[models.SnapshotKey]*models.DerivedSnapshot
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snaps: make(map[models.SnapshotKey]*models.DerivedSnapshot)}
}

// Publish replaces the stored snapshot for the key.
func (s *SnapshotStore) Publish(snap *models.DerivedSnapshot) {
	s.mu.Lock()
	s.snaps[snap.Key()] = snap
	s.mu.Unlock()
}

// Get returns the latest snapshot for the key.
func (s *SnapshotStore) Get(key models.SnapshotKey) (*models.DerivedSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[key]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return snap, nil
}

// BySymbol returns every stored snapshot for a symbol, any metric.
func (s *SnapshotStore) BySymbol(symbol string) []*models.DerivedSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DerivedSnapshot
	for key, snap := range s.snaps {
		if key.Symbol == symbol {
			out = append(out, snap)
		}
	}
	return out
}

// Size returns the number of distinct keys held.
func (s *SnapshotStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}
