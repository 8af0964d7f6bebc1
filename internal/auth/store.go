package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/model"
	"storefront/internal/storage"
)

// Store persists tokens and the customer profile in the durable key/value
// store. All token writes in the process go through here; a newly written
// token of a kind supersedes the prior one for that kind.
type Store struct {
	kv storage.Store
}

// NewStore wraps a key/value store.
func NewStore(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// Token returns the stored token of the given kind, or "" when absent.
func (s *Store) Token(kind Kind) string {
	key := storage.KeyAdminToken
	if kind == KindCustomer {
		key = storage.KeyCustomerToken
	}
	v, err := s.kv.Get(key)
	if err != nil {
		return ""
	}
	return string(v)
}

// SetToken persists a token of the given kind.
func (s *Store) SetToken(kind Kind, token string) error {
	key := storage.KeyAdminToken
	if kind == KindCustomer {
		key = storage.KeyCustomerToken
	}
	return s.kv.Set(key, []byte(token))
}

// DeleteToken removes the stored token of the given kind.
func (s *Store) DeleteToken(kind Kind) error {
	key := storage.KeyAdminToken
	if kind == KindCustomer {
		key = storage.KeyCustomerToken
	}
	return s.kv.Delete(key)
}

// Profile returns the cached customer profile, or nil when absent.
func (s *Store) Profile() *model.UserProfile {
	v, err := s.kv.Get(storage.KeyProfile)
	if err != nil {
		return nil
	}
	var p model.UserProfile
	if err := json.Unmarshal(v, &p); err != nil {
		return nil
	}
	return &p
}

// SetProfile caches the customer profile.
func (s *Store) SetProfile(p *model.UserProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return s.kv.Set(storage.KeyProfile, raw)
}

// ClearCustomer removes the customer token and profile. Admin state is kept:
// catalog reads keep working for the now-guest session.
func (s *Store) ClearCustomer() error {
	err1 := s.kv.Delete(storage.KeyCustomerToken)
	err2 := s.kv.Delete(storage.KeyProfile)
	return errors.Join(err1, err2)
}
