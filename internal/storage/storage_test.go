package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

// storeFactory builds a fresh store for the shared conformance tests.
type storeFactory func(t *testing.T) Store

func TestStoreConformance(t *testing.T) {
	factories := map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"file": func(t *testing.T) Store {
			f, err := NewFile(filepath.Join(t.TempDir(), "state.json"))
			if err != nil {
				t.Fatalf("NewFile: %v", err)
			}
			return f
		},
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
			}

			if err := s.Set(KeyGuestCartID, []byte("abc123")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(KeyGuestCartID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "abc123" {
				t.Errorf("Get = %q, want abc123", got)
			}

			// Overwrite
			if err := s.Set(KeyGuestCartID, []byte("def456")); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, _ = s.Get(KeyGuestCartID)
			if string(got) != "def456" {
				t.Errorf("Get after overwrite = %q, want def456", got)
			}

			if err := s.Delete(KeyGuestCartID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(KeyGuestCartID); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
			}

			// Delete of a missing key is a no-op.
			if err := s.Delete("missing"); err != nil {
				t.Errorf("Delete(missing) = %v, want nil", err)
			}

			s.Set("a", []byte("1"))
			s.Set("b", []byte("2"))
			if err := s.Clear(); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if _, err := s.Get("a"); !errors.Is(err, ErrNotFound) {
				t.Error("Clear left keys behind")
			}
		})
	}
}

func TestFilePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	f1, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := f1.Set(KeyCustomerToken, []byte("tok-xyz")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// Non-JSON values must round-trip unaltered.
	if err := f1.Set("raw", []byte(`{"k":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	f2, err := NewFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := f2.Get(KeyCustomerToken)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "tok-xyz" {
		t.Errorf("Get = %q, want tok-xyz", got)
	}
	raw, err := f2.Get("raw")
	if err != nil {
		t.Fatalf("Get raw: %v", err)
	}
	if string(raw) != `{"k":1}` {
		t.Errorf("raw value = %q, want unchanged JSON", raw)
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	val := []byte("original")
	m.Set("k", val)
	val[0] = 'X'

	got, _ := m.Get("k")
	if string(got) != "original" {
		t.Errorf("store shares backing array with caller: got %q", got)
	}

	got[0] = 'Y'
	again, _ := m.Get("k")
	if string(again) != "original" {
		t.Errorf("returned slice shares backing array with store: got %q", again)
	}
}
