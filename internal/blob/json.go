package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const jsonContentType = "application/json"

// GetJSON reads and decodes the JSON record at key. The second return is
// false when the key does not exist.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	_, rc, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and writes it at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := s.Put(ctx, key, bytes.NewReader(data), PutOptions{ContentType: jsonContentType}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// FetchJSONVerified head-verifies key before reading it, for use inside
// scan-then-read loops over eventually consistent listings. A key that was
// listed but has since disappeared yields (false, nil) so callers skip it
// instead of failing the whole scan.
func FetchJSONVerified(ctx context.Context, s Store, key string, v any) (bool, error) {
	if _, err := s.Head(ctx, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", key, err)
	}
	return GetJSON(ctx, s, key, v)
}

// Exists reports whether the key currently resolves.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
