// Package blobstore provides the persistence layer for scan documents.
//
// Documents are stored as whole JSON blobs under deterministic keys. Writes
// are full overwrites with no conditional check; the pipeline assumes at most
// one stage writer per scan at a time.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists at the requested key.
var ErrNotFound = errors.New("blob not found")

// Store is a key-value blob store.
type Store interface {
	// Get returns the blob at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the blob at key, overwriting any existing content.
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
