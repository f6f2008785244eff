// Package storage is the key-value persistence layer. Every backend stores
// opaque string values under string keys; callers serialize JSON through
// GetJSON and SetJSON.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrRead    = errors.New("storage read failed")
	ErrWrite   = errors.New("storage write failed")
	ErrCorrupt = errors.New("stored value is corrupt")
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes the value under key into v. It reports false when the key
// is absent. On a decode failure v is reset to its zero value and the error
// wraps ErrCorrupt.
func GetJSON[T any](ctx context.Context, s Store, key string, v *T) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrRead, key, err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		var zero T
		*v = zero
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrWrite, key, err)
	}
	if err := s.Set(ctx, key, string(b)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, key, err)
	}
	return nil
}
