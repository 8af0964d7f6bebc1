package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/gateway"
	"storefront/internal/magento"
	"storefront/internal/model"
	"storefront/internal/storage"
)

// fakeBackend is an in-memory Magento-compatible cart server. It implements
// the server-side invariants the client relies on: merge-by-SKU on add, and
// full cart reads reflecting all prior writes.
type fakeBackend struct {
	mu      sync.Mutex
	carts   map[string]*fakeCart // "mine" plus guest ids
	nextID  int
	coupons map[string]bool // accepted codes

	// onGet, when set, runs before every cart read (for epoch tests).
	onGet func()

	// onTotals, when set, runs before every totals read.
	onTotals func()

	// failGets, when > 0, makes cart reads fail with this status.
	failGets int
}

type fakeCart struct {
	items  []fakeItem
	coupon string
}

type fakeItem struct {
	id  int
	sku string
	qty int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		carts:   map[string]*fakeCart{},
		coupons: map[string]bool{"SAVE10": true},
		nextID:  100,
	}
}

func (b *fakeBackend) cart(key string) *fakeCart {
	c, ok := b.carts[key]
	if !ok {
		c = &fakeCart{}
		b.carts[key] = c
	}
	return c
}

func (b *fakeBackend) addItem(key, sku string, qty int) {
	c := b.cart(key)
	for i := range c.items {
		if c.items[i].sku == sku {
			c.items[i].qty += qty // merge by SKU
			return
		}
	}
	b.nextID++
	c.items = append(c.items, fakeItem{id: b.nextID, sku: sku, qty: qty})
}

func (b *fakeBackend) renderCart(key string) map[string]any {
	c := b.cart(key)
	items := make([]map[string]any, 0, len(c.items))
	for _, it := range c.items {
		items = append(items, map[string]any{
			"item_id": it.id,
			"sku":     it.sku,
			"qty":     it.qty,
			"price":   10.0,
			"name":    "Product " + it.sku,
		})
	}
	return map[string]any{"id": 918, "items": items}
}

// cartKey resolves a request path to the backend cart key, or "" if the
// path is not a cart route.
func cartKey(path string) (key, rest string) {
	switch {
	case path == "/carts/mine" || strings.HasPrefix(path, "/carts/mine/"):
		return "mine", strings.TrimPrefix(path, "/carts/mine")
	case strings.HasPrefix(path, "/guest-carts/"):
		tail := strings.TrimPrefix(path, "/guest-carts/")
		if i := strings.IndexByte(tail, '/'); i >= 0 {
			return tail[:i], tail[i:]
		}
		return tail, ""
	}
	return "", ""
}

func (b *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/integration/admin/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode("admin-tok")
	})
	mux.HandleFunc("/guest-carts", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		id := fmt.Sprintf("guest-%d", len(b.carts)+1)
		b.cart(id)
		json.NewEncoder(w).Encode(id)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		key, rest := cartKey(r.URL.Path)
		if key == "" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}

		switch {
		case rest == "" && r.Method == http.MethodPost: // create customer cart
			b.cart(key)
			json.NewEncoder(w).Encode(918)

		case rest == "" && r.Method == http.MethodGet:
			if b.onGet != nil {
				b.onGet()
			}
			if b.failGets != 0 {
				w.WriteHeader(b.failGets)
				return
			}
			json.NewEncoder(w).Encode(b.renderCart(key))

		case rest == "/items" && r.Method == http.MethodPost:
			var body struct {
				CartItem struct {
					SKU string `json:"sku"`
					Qty int    `json:"qty"`
				} `json:"cartItem"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			b.addItem(key, body.CartItem.SKU, body.CartItem.Qty)
			w.Write([]byte("{}"))

		case strings.HasPrefix(rest, "/items/") && r.Method == http.MethodPut:
			itemID, _ := strconv.Atoi(strings.TrimPrefix(rest, "/items/"))
			var body struct {
				CartItem struct {
					Qty int `json:"qty"`
				} `json:"cartItem"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			c := b.cart(key)
			for i := range c.items {
				if c.items[i].id == itemID {
					c.items[i].qty = body.CartItem.Qty
				}
			}
			w.Write([]byte("{}"))

		case strings.HasPrefix(rest, "/items/") && r.Method == http.MethodDelete:
			itemID, _ := strconv.Atoi(strings.TrimPrefix(rest, "/items/"))
			c := b.cart(key)
			kept := c.items[:0]
			for _, it := range c.items {
				if it.id != itemID {
					kept = append(kept, it)
				}
			}
			c.items = kept
			w.Write([]byte("true"))

		case strings.HasPrefix(rest, "/coupons/") && r.Method == http.MethodPut:
			code := strings.TrimPrefix(rest, "/coupons/")
			if !b.coupons[code] {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"message": "The coupon code isn't valid."})
				return
			}
			b.cart(key).coupon = code
			w.Write([]byte("true"))

		case rest == "/coupons" && r.Method == http.MethodDelete:
			b.cart(key).coupon = ""
			w.Write([]byte("true"))

		case rest == "/totals" && r.Method == http.MethodGet:
			if b.onTotals != nil {
				b.onTotals()
			}
			c := b.cart(key)
			sub := 0.0
			for _, it := range c.items {
				sub += 10.0 * float64(it.qty)
			}
			totals := map[string]any{
				"subtotal": sub, "grand_total": sub, "quote_currency_code": "USD",
			}
			if c.coupon != "" {
				totals["coupon_code"] = c.coupon
				totals["discount_amount"] = -sub / 10
				totals["grand_total"] = sub * 0.9
			}
			json.NewEncoder(w).Encode(totals)

		default:
			t.Errorf("unhandled %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	})
	return mux
}

// newTestService wires a cart service against a fake backend.
func newTestService(t *testing.T, b *fakeBackend) (*Service, *Store) {
	t.Helper()
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := storage.NewMemory()
	tokenStore := auth.NewStore(kv)
	tokenStore.SetToken(auth.KindCustomer, "cust-tok")
	tokens := auth.NewService(srv.URL, auth.Credentials{Username: "svc", Password: "secret"}, srv.Client(), tokenStore, logger)
	api := magento.NewClient(gateway.New(srv.URL, srv.Client(), tokens, logger))
	store := NewStore(kv)
	return NewService(api, store, logger), store
}

func customer() model.Identity { return model.Customer("cust-tok", nil) }

func TestGuestWithoutCartID(t *testing.T) {
	svc, _ := newTestService(t, newFakeBackend())
	ctx := context.Background()

	if _, err := svc.Get(ctx, model.Guest("")); !errors.Is(err, model.ErrMissingGuestID) {
		t.Errorf("Get err = %v, want ErrMissingGuestID", err)
	}
	if _, err := svc.AddItem(ctx, model.Guest(""), "24-MB01", 1); !errors.Is(err, model.ErrMissingGuestID) {
		t.Errorf("AddItem err = %v, want ErrMissingGuestID", err)
	}
}

func TestCreateGuestCartPersistsID(t *testing.T) {
	svc, store := newTestService(t, newFakeBackend())

	id, err := svc.Create(context.Background(), model.Guest(""))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id.GuestCartID == "" {
		t.Fatal("returned identity carries no cart id")
	}
	if store.GuestCartID() != id.GuestCartID {
		t.Errorf("stored id %q != returned id %q", store.GuestCartID(), id.GuestCartID)
	}
}

func TestAddItemIsReadAfterWrite(t *testing.T) {
	backend := newFakeBackend()
	svc, store := newTestService(t, backend)
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, customer(), "24-MB01", 2)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].SKU != "24-MB01" || cart.Items[0].Qty != 2 {
		t.Errorf("cart = %+v", cart)
	}
	// Server item ids come back from the refetch, enabling later updates.
	if cart.Items[0].ItemID == "" {
		t.Error("refetched cart is missing server item ids")
	}

	cur := store.Current()
	if cur == nil || len(cur.Items) != 1 {
		t.Errorf("store view = %+v, want the refetched cart", cur)
	}
	// The durable snapshot mirrors the view.
	snap := store.Snapshot(model.IdentityCustomer)
	if snap == nil || len(snap.Items) != 1 {
		t.Errorf("snapshot = %+v, want mirrored cart", snap)
	}
}

func TestAddSameSKUMergesQuantity(t *testing.T) {
	svc, _ := newTestService(t, newFakeBackend())
	ctx := context.Background()

	svc.AddItem(ctx, customer(), "24-MB01", 2)
	cart, err := svc.AddItem(ctx, customer(), "24-MB01", 1)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1 merged line", len(cart.Items))
	}
	if cart.Items[0].Qty != 3 {
		t.Errorf("Qty = %d, want 3", cart.Items[0].Qty)
	}
}

func TestUpdateItemQty(t *testing.T) {
	svc, _ := newTestService(t, newFakeBackend())
	ctx := context.Background()

	first, _ := svc.AddItem(ctx, customer(), "24-MB01", 2)
	itemID := first.Items[0].ItemID

	cart, err := svc.UpdateItemQty(ctx, customer(), itemID, 5)
	if err != nil {
		t.Fatalf("UpdateItemQty: %v", err)
	}
	if cart.Items[0].Qty != 5 {
		t.Errorf("Qty = %d, want 5", cart.Items[0].Qty)
	}

	// Updating by SKU resolves to the same line.
	cart, err = svc.UpdateItemQty(ctx, customer(), "24-MB01", 4)
	if err != nil {
		t.Fatalf("UpdateItemQty by sku: %v", err)
	}
	if cart.Items[0].Qty != 4 {
		t.Errorf("Qty = %d, want 4", cart.Items[0].Qty)
	}
}

func TestUpdateToZeroRemoves(t *testing.T) {
	svc, _ := newTestService(t, newFakeBackend())
	ctx := context.Background()

	svc.AddItem(ctx, customer(), "24-MB01", 2)
	cart, err := svc.UpdateItemQty(ctx, customer(), "24-MB01", 0)
	if err != nil {
		t.Fatalf("UpdateItemQty(0): %v", err)
	}
	if len(cart.Items) != 0 {
		t.Errorf("len(Items) = %d, want 0 (qty 0 means removal)", len(cart.Items))
	}
}

func TestUpdateUnknownItem(t *testing.T) {
	svc, _ := newTestService(t, newFakeBackend())
	ctx := context.Background()

	svc.AddItem(ctx, customer(), "24-MB01", 1)
	_, err := svc.UpdateItemQty(ctx, customer(), "nope", 3)
	if !errors.Is(err, model.ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestConcurrentAddsLoseNoUpdates(t *testing.T) {
	backend := newFakeBackend()
	svc, store := newTestService(t, backend)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.AddItem(ctx, customer(), fmt.Sprintf("SKU-%02d", i), 1); err != nil {
				t.Errorf("AddItem %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	// Every add survived on the server.
	backend.mu.Lock()
	serverItems := len(backend.cart("mine").items)
	backend.mu.Unlock()
	if serverItems != n {
		t.Errorf("server has %d lines, want %d", serverItems, n)
	}

	// The final view reflects all writes: mutations were serialized, so the
	// last refetch happened after the last write.
	cur := store.Current()
	if len(cur.Items) != n {
		t.Errorf("store view has %d lines, want %d", len(cur.Items), n)
	}
}

func TestCoupons(t *testing.T) {
	svc, _ := newTestService(t, newFakeBackend())
	ctx := context.Background()

	svc.AddItem(ctx, customer(), "24-MB01", 1)

	if _, err := svc.ApplyCoupon(ctx, customer(), "BOGUS"); !errors.Is(err, model.ErrInvalidCoupon) {
		t.Errorf("err = %v, want ErrInvalidCoupon", err)
	}

	if _, err := svc.ApplyCoupon(ctx, customer(), "SAVE10"); err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}

	totals, err := svc.Totals(ctx, customer())
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.CouponCode != "SAVE10" {
		t.Errorf("CouponCode = %q, want SAVE10", totals.CouponCode)
	}
	if totals.GrandTotal >= totals.Subtotal {
		t.Errorf("grand total %v not discounted below subtotal %v", totals.GrandTotal, totals.Subtotal)
	}

	if _, err := svc.RemoveCoupon(ctx, customer()); err != nil {
		t.Fatalf("RemoveCoupon: %v", err)
	}
	totals, _ = svc.Totals(ctx, customer())
	if totals.CouponCode != "" {
		t.Errorf("coupon %q survived removal", totals.CouponCode)
	}
}

func TestTotalsAttachToStoredCart(t *testing.T) {
	svc, store := newTestService(t, newFakeBackend())
	ctx := context.Background()

	svc.AddItem(ctx, customer(), "24-MB01", 2)
	if _, err := svc.Totals(ctx, customer()); err != nil {
		t.Fatalf("Totals: %v", err)
	}

	cur := store.Current()
	if cur.Totals == nil {
		t.Fatal("totals were not attached to the stored cart")
	}
	if cur.Totals.GrandTotal != 20 {
		t.Errorf("GrandTotal = %v, want 20", cur.Totals.GrandTotal)
	}
}

func TestEpochDiscardsStaleTotals(t *testing.T) {
	backend := newFakeBackend()
	svc, store := newTestService(t, backend)
	ctx := context.Background()

	svc.AddItem(ctx, customer(), "24-MB01", 2)

	// Simulate an identity switch landing while the totals fetch is in
	// flight.
	backend.mu.Lock()
	backend.onTotals = svc.BumpEpoch
	backend.mu.Unlock()

	totals, err := svc.Totals(ctx, customer())
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	// The caller still receives the totals it asked for.
	if totals == nil || totals.GrandTotal != 20 {
		t.Errorf("returned totals = %+v", totals)
	}
	// But they must never be attached to the successor identity's cart.
	if cur := store.Current(); cur.Totals != nil {
		t.Errorf("stale-epoch totals were applied to the store: %+v", cur.Totals)
	}
	if snap := store.Snapshot(model.IdentityCustomer); snap != nil && snap.Totals != nil {
		t.Errorf("stale-epoch totals were mirrored to the snapshot: %+v", snap.Totals)
	}
}

func TestMergeGuestCart(t *testing.T) {
	backend := newFakeBackend()
	svc, store := newTestService(t, backend)
	ctx := context.Background()

	// Shop as a guest first.
	guest, err := svc.Create(ctx, model.Guest(""))
	if err != nil {
		t.Fatalf("Create guest: %v", err)
	}
	svc.AddItem(ctx, guest, "24-MB01", 2)
	svc.AddItem(ctx, guest, "24-WB04", 1)

	// The customer cart already holds one overlapping SKU.
	backend.mu.Lock()
	backend.addItem("mine", "24-MB01", 1)
	backend.mu.Unlock()

	cart, err := svc.MergeGuestCart(ctx, customer())
	if err != nil {
		t.Fatalf("MergeGuestCart: %v", err)
	}

	if len(cart.Items) != 2 {
		t.Fatalf("merged cart has %d lines, want 2", len(cart.Items))
	}
	bySKU := map[string]int{}
	for _, it := range cart.Items {
		bySKU[it.SKU] = it.Qty
	}
	// Overlapping SKU folds into quantity: 1 (customer) + 2 (guest) = 3.
	if bySKU["24-MB01"] != 3 {
		t.Errorf("24-MB01 qty = %d, want 3", bySKU["24-MB01"])
	}
	if bySKU["24-WB04"] != 1 {
		t.Errorf("24-WB04 qty = %d, want 1", bySKU["24-WB04"])
	}

	// Guest state is gone once merged.
	if store.GuestCartID() != "" {
		t.Error("guest cart id survived the merge")
	}
	if store.Snapshot(model.IdentityGuest) != nil {
		t.Error("guest snapshot survived the merge")
	}

	// Re-running the merge is a no-op: the guest snapshot is gone.
	again, err := svc.MergeGuestCart(ctx, customer())
	if err != nil {
		t.Fatalf("second MergeGuestCart: %v", err)
	}
	for _, it := range again.Items {
		if it.SKU == "24-MB01" && it.Qty != 3 {
			t.Errorf("second merge changed qty to %d", it.Qty)
		}
	}
}

func TestMergeRequiresCustomer(t *testing.T) {
	svc, _ := newTestService(t, newFakeBackend())
	if _, err := svc.MergeGuestCart(context.Background(), model.Guest("g-1")); err == nil {
		t.Error("merge into a guest identity should fail")
	}
}

func TestGetFallsBackToSnapshot(t *testing.T) {
	backend := newFakeBackend()
	svc, store := newTestService(t, backend)
	ctx := context.Background()

	// Populate the snapshot through a normal mutation.
	svc.AddItem(ctx, customer(), "24-MB01", 2)

	backend.mu.Lock()
	backend.failGets = http.StatusServiceUnavailable
	backend.mu.Unlock()

	cart, err := svc.Get(ctx, customer())
	if err != nil {
		t.Fatalf("Get with snapshot available: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].SKU != "24-MB01" {
		t.Errorf("fallback cart = %+v, want last snapshot", cart)
	}

	// Without a snapshot the read fails loudly.
	store.ClearCustomer()
	_, err = svc.Get(ctx, customer())
	if !errors.Is(err, model.ErrCartUnavailable) {
		t.Errorf("err = %v, want ErrCartUnavailable", err)
	}
}

func TestGetAuthFailureDoesNotServeSnapshot(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend)
	ctx := context.Background()

	svc.AddItem(ctx, customer(), "24-MB01", 2)

	backend.mu.Lock()
	backend.failGets = http.StatusUnauthorized
	backend.mu.Unlock()

	_, err := svc.Get(ctx, customer())
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized (snapshot must not mask auth failures)", err)
	}
}

func TestEpochDiscardsStaleResponse(t *testing.T) {
	backend := newFakeBackend()
	svc, store := newTestService(t, backend)
	ctx := context.Background()

	svc.AddItem(ctx, customer(), "24-MB01", 2)
	before := store.Current()

	backend.mu.Lock()
	backend.addItem("mine", "24-WB04", 1)
	// Simulate an identity switch landing while the fetch is in flight.
	backend.onGet = svc.BumpEpoch
	backend.mu.Unlock()

	got, err := svc.Get(ctx, customer())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// The caller still receives the response it asked for.
	if len(got.Items) != 2 {
		t.Errorf("returned cart has %d lines, want 2", len(got.Items))
	}
	// But the shared view must not absorb a response from a dead epoch.
	after := store.Current()
	if len(after.Items) != len(before.Items) {
		t.Errorf("stale response replaced the store view: %d lines, want %d", len(after.Items), len(before.Items))
	}
}

func TestAutoRefreshLifecycle(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend)
	ctx := context.Background()

	svc.AddItem(ctx, customer(), "24-MB01", 1)

	var gets atomic.Int32
	backend.mu.Lock()
	backend.onGet = func() { gets.Add(1) }
	backend.mu.Unlock()

	svc.StartAutoRefresh(10*time.Millisecond, customer)
	deadline := time.Now().Add(2 * time.Second)
	for gets.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if gets.Load() < 2 {
		t.Fatal("periodic refresh never reached the backend")
	}

	svc.StopAutoRefresh()
	svc.StopAutoRefresh()             // safe to call twice
	time.Sleep(50 * time.Millisecond) // drain a tick already in flight
	stopped := gets.Load()
	time.Sleep(100 * time.Millisecond)
	if n := gets.Load(); n != stopped {
		t.Errorf("refresh fetched %d more times after stop", n-stopped)
	}
}

func TestItemResolvedAgainstLatestView(t *testing.T) {
	backend := newFakeBackend()
	svc, store := newTestService(t, backend)
	ctx := context.Background()

	svc.AddItem(ctx, customer(), "24-MB01", 1)

	// Hold the identity lock so the removal has to queue, the way it would
	// behind a concurrent mutation.
	mu := svc.lockFor(customer().Key())
	mu.Lock()

	done := make(chan error, 1)
	go func() {
		_, err := svc.RemoveItem(ctx, customer(), "24-MB01")
		done <- err
	}()

	// While the removal is queued, the line acquires a new server item id,
	// as happens when the holder of the lock removed and re-added the SKU.
	backend.mu.Lock()
	backend.carts["mine"].items[0].id = 777
	backend.mu.Unlock()
	cur := store.Current()
	cur.Items[0].ItemID = "777"
	store.SetInMemory(cur)

	mu.Unlock()
	if err := <-done; err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if got := store.Current(); len(got.Items) != 0 {
		t.Errorf("cart still has %d lines; removal addressed a stale item id", len(got.Items))
	}
}
