package profile

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-node deployments.
// Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*DeviceProfile
}

// NewMemoryStore creates an empty in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*DeviceProfile)}
}

// Load retrieves a profile by device ID.
func (s *MemoryStore) Load(ctx context.Context, deviceID string) (*DeviceProfile, error) {
	if deviceID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	p, ok := s.profiles[deviceID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy so callers cannot mutate stored state.
	cp := *p
	cp.WakeWords = append([]string(nil), p.WakeWords...)
	return &cp, nil
}

// Save persists a profile.
func (s *MemoryStore) Save(ctx context.Context, p *DeviceProfile) error {
	if p == nil {
		return ErrInvalidProfile
	}
	if p.DeviceID == "" {
		return ErrInvalidID
	}

	cp := *p
	cp.WakeWords = append([]string(nil), p.WakeWords...)
	cp.LastAccessedAt = time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.LastAccessedAt
	}

	s.mu.Lock()
	s.profiles[p.DeviceID] = &cp
	s.mu.Unlock()
	return nil
}

// Delete removes a profile.
func (s *MemoryStore) Delete(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	delete(s.profiles, deviceID)
	s.mu.Unlock()
	return nil
}
