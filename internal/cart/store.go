// Package cart holds the session's cart state and the reconciliation engine
// that mutates it against the commerce API.
package cart

import (
	"encoding/json"
	"sync"

	"storefront/internal/model"
	"storefront/internal/storage"
)

// Store owns the in-memory cart and mirrors it to durable storage keyed by
// identity kind. Writes only happen through the Service; reads are
// unrestricted. Every accepted replace notifies subscribers — this is the
// view layer's re-render trigger.
type Store struct {
	mu   sync.RWMutex
	cart *model.Cart
	kv   storage.Store

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// NewStore creates a cart store over durable storage.
func NewStore(kv storage.Store) *Store {
	return &Store{kv: kv, subs: make(map[int]func())}
}

// Current returns a copy of the in-memory cart, or nil when none is loaded.
func (s *Store) Current() *model.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

// Replace fully replaces the in-memory cart — never a partial merge of
// stale and fresh data — mirrors it to the durable snapshot for the
// identity kind, and notifies subscribers.
func (s *Store) Replace(c *model.Cart, kind model.IdentityKind) error {
	s.mu.Lock()
	s.cart = c.Clone()
	s.mu.Unlock()

	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.kv.Set(snapshotKey(kind), raw); err != nil {
		return err
	}

	s.notify()
	return nil
}

// SetInMemory replaces only the in-memory cart, without mirroring. Used when
// serving a durable snapshot after a failed live read: the snapshot is
// already durable and must not be re-mirrored as if it were fresh.
func (s *Store) SetInMemory(c *model.Cart) {
	s.mu.Lock()
	s.cart = c.Clone()
	s.mu.Unlock()
	s.notify()
}

// Snapshot loads the durable cart snapshot for an identity kind.
// Returns nil when no snapshot exists.
func (s *Store) Snapshot(kind model.IdentityKind) *model.Cart {
	raw, err := s.kv.Get(snapshotKey(kind))
	if err != nil {
		return nil
	}
	var c model.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil
	}
	return &c
}

// GuestCartID returns the stored guest cart id, or "".
func (s *Store) GuestCartID() string {
	raw, err := s.kv.Get(storage.KeyGuestCartID)
	if err != nil {
		return ""
	}
	return string(raw)
}

// SetGuestCartID persists a newly created guest cart id.
func (s *Store) SetGuestCartID(id string) error {
	return s.kv.Set(storage.KeyGuestCartID, []byte(id))
}

// ClearGuest removes the guest cart id and snapshot. Called once the guest
// cart has been merged into the customer cart.
func (s *Store) ClearGuest() {
	s.kv.Delete(storage.KeyGuestCartID)
	s.kv.Delete(storage.KeyGuestSnapshot)
}

// ClearCustomer removes the customer snapshot and drops the in-memory cart.
// Called on logout.
func (s *Store) ClearCustomer() {
	s.kv.Delete(storage.KeyCustomerSnapshot)
	s.mu.Lock()
	s.cart = nil
	s.mu.Unlock()
	s.notify()
}

// Subscribe registers a change callback and returns its cancel func.
// Callbacks run synchronously after each accepted cart replace.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func snapshotKey(kind model.IdentityKind) string {
	if kind == model.IdentityCustomer {
		return storage.KeyCustomerSnapshot
	}
	return storage.KeyGuestSnapshot
}
