package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/gateway"
	"storefront/internal/magento"
	"storefront/internal/storage"
)

type testFixture struct {
	catalog *Service
	tokens  *auth.Service
	hits    *atomic.Int32
}

func newFixture(t *testing.T, cacheControl string) *testFixture {
	t.Helper()

	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/integration/admin/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode("admin-tok")
	})
	mux.HandleFunc("/categories", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if cacheControl != "" {
			w.Header().Set("Cache-Control", cacheControl)
		}
		json.NewEncoder(w).Encode(magento.Category{ID: 2, Name: "Default Category"})
	})
	mux.HandleFunc("/products/24-MB01", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(magento.Product{ID: 1, SKU: "24-MB01", Name: "Joust Bag", Price: 45})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewService(srv.URL, auth.Credentials{Username: "svc", Password: "secret"}, srv.Client(), auth.NewStore(storage.NewMemory()), logger)
	api := magento.NewClient(gateway.New(srv.URL, srv.Client(), tokens, logger))

	return &testFixture{
		catalog: NewService(api, tokens, 10*time.Minute),
		tokens:  tokens,
		hits:    &hits,
	}
}

func TestCategoryTreeIsCached(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	tree, err := f.catalog.CategoryTree(ctx)
	if err != nil {
		t.Fatalf("CategoryTree: %v", err)
	}
	if tree.Name != "Default Category" {
		t.Errorf("tree = %+v", tree)
	}

	f.catalog.CategoryTree(ctx)
	f.catalog.CategoryTree(ctx)
	if n := f.hits.Load(); n != 1 {
		t.Errorf("upstream hit %d times for 3 reads, want 1", n)
	}
}

func TestCacheClearedOnNewAdminToken(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	f.catalog.CategoryTree(ctx)
	if n := f.hits.Load(); n != 1 {
		t.Fatalf("hits = %d, want 1", n)
	}

	// A fresh admin token invalidates everything cached under the old one.
	if _, err := f.tokens.Refresh(ctx, auth.KindAdmin); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	f.catalog.CategoryTree(ctx)
	if n := f.hits.Load(); n != 2 {
		t.Errorf("hits = %d after token refresh, want 2 (cache cleared)", n)
	}
}

func TestProductCacheAndInvalidate(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	p, err := f.catalog.Product(ctx, "24-MB01")
	if err != nil {
		t.Fatalf("Product: %v", err)
	}
	if p.SKU != "24-MB01" || p.Price != 45 {
		t.Errorf("product = %+v", p)
	}

	f.catalog.Product(ctx, "24-MB01")
	if n := f.hits.Load(); n != 1 {
		t.Fatalf("hits = %d, want 1", n)
	}

	f.catalog.InvalidateProduct("24-MB01")
	f.catalog.Product(ctx, "24-MB01")
	if n := f.hits.Load(); n != 2 {
		t.Errorf("hits = %d after invalidation, want 2", n)
	}
}

func TestNoStoreResponsesNotCached(t *testing.T) {
	f := newFixture(t, "no-store")
	ctx := context.Background()

	f.catalog.CategoryTree(ctx)
	f.catalog.CategoryTree(ctx)
	if n := f.hits.Load(); n != 2 {
		t.Errorf("hits = %d for 2 reads of a no-store response, want 2", n)
	}
}

func TestServerCacheControlShortensTTL(t *testing.T) {
	// A max-age of 1s must override the 10-minute default.
	f := newFixture(t, "public, max-age=1")
	ctx := context.Background()

	f.catalog.CategoryTree(ctx)
	f.catalog.CategoryTree(ctx)
	if n := f.hits.Load(); n != 1 {
		t.Fatalf("hits = %d before expiry, want 1", n)
	}

	time.Sleep(1100 * time.Millisecond)
	f.catalog.CategoryTree(ctx)
	if n := f.hits.Load(); n != 2 {
		t.Errorf("hits = %d after max-age expiry, want 2", n)
	}
}
