package record

import "context"

// Store is the read/write contract between the persisted record layer and
// the graph builder. Reads must return a consistent set: records written by
// a concurrent ReplaceAll are either all visible or not at all.
type Store interface {
	// All returns every record kind in one consistent read.
	All(ctx context.Context) (*Set, error)

	// ReplaceAll atomically replaces the stored records with the given set
	// and returns the batch id of the new generation.
	ReplaceAll(ctx context.Context, set *Set) (string, error)

	// Reset removes all stored records.
	Reset(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}
