package session

import "context"

// Store defines the interface for session storage backends that operate on
// serializable session records. Load returns an error wrapping
// errors.ErrNotFound for unknown keys.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Load(ctx context.Context, key string) (*Record, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
}
