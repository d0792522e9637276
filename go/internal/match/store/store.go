package store

import (
	"context"
	"fmt"
)

// KV is the durable key-value contract every backend implements.
type KV interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Backend names a KV implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendDisk     Backend = "disk"
)

// Options selects and configures a backend.
type Options struct {
	Backend Backend
	DSN     string
	AppName string
}

// Open builds the configured backend. The returned func releases its resources.
func Open(ctx context.Context, opts Options) (KV, func(), error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), func() {}, nil
	case BackendPostgres:
		pool, err := OpenPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, nil, err
		}
		s := NewPostgresStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	case BackendDisk:
		s, err := OpenDiskStore(opts.AppName)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
