// Package blob abstracts attachment payload storage. The engine writes
// payloads under keys of the form {userID}/{uid}/{filename}; reads go
// through signed URLs handed to the (out of scope) UI layer.
package blob

import "context"

// Store is the attachment payload storage interface.
type Store interface {
	// Put writes data under key, overwriting any existing object (a
	// message's attachment set is fixed once fetched, so a collision
	// is a rewrite of identical content). It returns the stored
	// object's location reference.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// SignedURL returns a URL granting temporary read access to the
	// object stored under key.
	SignedURL(ctx context.Context, key string) (string, error)
}
