// Package storage defines the persistence contract for the development
// response cache.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no response is cached under a key.
var ErrNotFound = errors.New("record not found")

// CachedResponse is one memoized upstream response body.
type CachedResponse struct {
	Key      string
	Body     []byte
	StoredAt time.Time
}

// ResponseCache memoizes upstream responses by a key derived from the request
// URL. Keys never carry the URL itself since URLs embed API keys.
type ResponseCache interface {
	GetResponse(ctx context.Context, key string) (CachedResponse, error)
	PutResponse(ctx context.Context, response CachedResponse) error
}
