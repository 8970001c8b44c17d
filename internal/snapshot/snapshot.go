// Package snapshot stores whole JSON documents under a single key and
// rewrites them atomically. The offline sale queue and the catalog mirror
// both persist through it.
package snapshot

import "context"

// Store is one durable document with read-modify-write semantics. Update
// hands fn the current document (nil when absent) and persists what it
// returns; an error from fn leaves the document untouched.
type Store interface {
	Read(ctx context.Context) ([]byte, error)
	Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error
}
