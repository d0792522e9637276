package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/quasilyte/gdata"
)

// DiskStore keeps values in the per-user application data directory, so a
// game client's pending scores survive restarts.
type DiskStore struct {
	mu sync.Mutex
	m  *gdata.Manager
}

// OpenDiskStore opens the data directory for appName.
func OpenDiskStore(appName string) (*DiskStore, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open data dir for %s: %w", appName, err)
	}
	return &DiskStore{m: m}, nil
}

func (s *DiskStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.m.SaveItem(key, value); err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	return nil
}

func (s *DiskStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.m.LoadItem(key)
	if err != nil {
		return nil, false, fmt.Errorf("load %q: %w", key, err)
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

// Remove clears the item by saving an empty value.
func (s *DiskStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.m.SaveItem(key, nil); err != nil {
		return fmt.Errorf("clear %q: %w", key, err)
	}
	return nil
}

func (s *DiskStore) Ping(context.Context) error { return nil }
