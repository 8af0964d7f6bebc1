// Package storage provides the durable key/value store backing token and
// cart persistence. The core services are storage-agnostic: anything
// satisfying Store works, and tests use the in-memory implementation.
package storage

import "errors"

// Persisted state keys. The layout is part of the client's contract: the CLI
// and any embedding process read and write the same keys.
const (
	KeyAdminToken       = "auth.token.admin"
	KeyCustomerToken    = "auth.token.customer"
	KeyProfile          = "auth.profile"
	KeyCustomerSnapshot = "cart.customer.snapshot"
	KeyGuestCartID      = "cart.guest.id"
	KeyGuestSnapshot    = "cart.guest.snapshot"
)

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable key/value store. Values are opaque bytes; callers own
// serialization. Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	// Clear removes every key. Used by logout.
	Clear() error
}
