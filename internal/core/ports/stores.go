package ports

import (
	"context"
	"io"
)

// ImageStore persists uploaded profile images.
type ImageStore interface {
	// Put stores the content under a generated key derived from filename and
	// returns the stable public path for it.
	Put(ctx context.Context, filename string, r io.Reader, contentType string) (string, error)
	// Delete removes the object behind a path previously returned by Put.
	// Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}

// IdempotencyStore maps an Idempotency-Key to the donation it produced.
// A key is claimed with Reserve before the ledger write, so only one of
// several concurrent submissions with the same key may append.
type IdempotencyStore interface {
	// Reserve atomically claims the key. When the key is already held it
	// reports reserved=false together with the stored donation id, which is
	// zero while the holder has not completed yet.
	Reserve(ctx context.Context, userID, key string) (reserved bool, donationID int, err error)
	// Complete records the donation id for a reserved key.
	Complete(ctx context.Context, userID, key string, donationID int) error
	// Release drops a reservation whose submission failed.
	Release(ctx context.Context, userID, key string) error
}
