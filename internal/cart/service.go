package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"storefront/internal/magento"
	"storefront/internal/model"
)

// Service is the cart reconciliation engine. Every mutation is
// read-after-write: write to the server, then re-fetch the full cart, so the
// client's view always matches server truth. Mutations on one cart identity
// are serialized behind a per-identity mutex; without it, two overlapping
// write-then-fetch sequences could leave the store holding a fetch that
// predates the other mutation's write.
type Service struct {
	api    *magento.Client
	store  *Store
	logger *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// epoch is bumped at every identity transition. In-flight operations
	// capture it before their I/O; a response arriving for an old epoch is
	// discarded rather than resurrecting cleared state.
	epoch atomic.Int64

	refreshMu   sync.Mutex
	stopRefresh chan struct{}
}

// NewService creates the cart service.
func NewService(api *magento.Client, store *Store, logger *slog.Logger) *Service {
	return &Service{
		api:    api,
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Store exposes the underlying cart store for reads and subscriptions.
func (s *Service) Store() *Store {
	return s.store
}

// BumpEpoch invalidates the results of any in-flight cart operation.
// The session calls this at login and logout.
func (s *Service) BumpEpoch() {
	s.epoch.Add(1)
}

// lockFor returns the mutex serializing mutations for one cart identity.
func (s *Service) lockFor(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	return mu
}

// requireCartID validates the guest precondition: a guest identity must
// never address "its" cart without a stored id.
func requireCartID(id model.Identity) error {
	if !id.IsCustomer() && id.GuestCartID == "" {
		return model.NewMissingGuestIDError()
	}
	return nil
}

// Create ensures a cart exists for the identity and returns the (possibly
// updated) identity. For a customer the server call is idempotent; for a
// guest the new cart id is persisted and carried on the returned identity.
func (s *Service) Create(ctx context.Context, id model.Identity) (model.Identity, error) {
	cartID, err := s.api.CreateCart(ctx, id)
	if err != nil {
		return id, err
	}
	if !id.IsCustomer() {
		if err := s.store.SetGuestCartID(cartID); err != nil {
			return id, err
		}
		id.GuestCartID = cartID
	}
	return id, nil
}

// Get fetches the authoritative cart for the identity and replaces the
// stored view. A transport failure on this read path (only) falls back to
// the last mirrored durable snapshot; with no snapshot the read fails with
// CART_UNAVAILABLE.
func (s *Service) Get(ctx context.Context, id model.Identity) (*model.Cart, error) {
	if err := requireCartID(id); err != nil {
		return nil, err
	}

	epoch := s.epoch.Load()
	cart, err := s.api.GetCart(ctx, id)
	if err != nil {
		if isTransport(err) {
			if snap := s.store.Snapshot(id.Kind); snap != nil {
				s.logger.Warn("cart fetch failed; serving durable snapshot",
					slog.String("identity", id.Key()),
					slog.String("error", err.Error()),
				)
				if s.epoch.Load() == epoch {
					s.store.SetInMemory(snap)
				}
				return snap, nil
			}
			return nil, model.NewCartUnavailableError(err)
		}
		return nil, err
	}

	s.apply(cart, id, epoch)
	return cart, nil
}

// AddItem posts a new line (the server merges by SKU if one exists) and
// re-fetches the cart.
func (s *Service) AddItem(ctx context.Context, id model.Identity, sku string, qty int) (*model.Cart, error) {
	if err := requireCartID(id); err != nil {
		return nil, err
	}

	mu := s.lockFor(id.Key())
	mu.Lock()
	defer mu.Unlock()

	epoch := s.epoch.Load()
	if err := s.api.AddItem(ctx, id, sku, qty); err != nil {
		return nil, err
	}
	return s.refetch(ctx, id, epoch)
}

// UpdateItemQty sets a line's quantity. qty <= 0 is defined to be removal.
// The item must exist in the current cart so its server id can be resolved.
func (s *Service) UpdateItemQty(ctx context.Context, id model.Identity, itemRef string, qty int) (*model.Cart, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, id, itemRef)
	}
	if err := requireCartID(id); err != nil {
		return nil, err
	}

	mu := s.lockFor(id.Key())
	mu.Lock()
	defer mu.Unlock()

	// Resolved under the lock so a concurrent mutation cannot invalidate
	// the server item id between resolution and the write.
	item, err := s.resolveItem(itemRef)
	if err != nil {
		return nil, err
	}

	epoch := s.epoch.Load()
	if err := s.api.UpdateItem(ctx, id, item.ItemID, qty); err != nil {
		return nil, err
	}
	return s.refetch(ctx, id, epoch)
}

// RemoveItem deletes a line and re-fetches the cart.
func (s *Service) RemoveItem(ctx context.Context, id model.Identity, itemRef string) (*model.Cart, error) {
	if err := requireCartID(id); err != nil {
		return nil, err
	}

	mu := s.lockFor(id.Key())
	mu.Lock()
	defer mu.Unlock()

	item, err := s.resolveItem(itemRef)
	if err != nil {
		return nil, err
	}

	epoch := s.epoch.Load()
	if err := s.api.RemoveItem(ctx, id, item.ItemID); err != nil {
		return nil, err
	}
	return s.refetch(ctx, id, epoch)
}

// ApplyCoupon applies a coupon server-side and re-fetches the cart.
// Invalid codes surface as model.ErrInvalidCoupon.
func (s *Service) ApplyCoupon(ctx context.Context, id model.Identity, code string) (*model.Cart, error) {
	if err := requireCartID(id); err != nil {
		return nil, err
	}

	mu := s.lockFor(id.Key())
	mu.Lock()
	defer mu.Unlock()

	epoch := s.epoch.Load()
	if err := s.api.ApplyCoupon(ctx, id, code); err != nil {
		return nil, err
	}
	return s.refetch(ctx, id, epoch)
}

// RemoveCoupon clears the applied coupon and re-fetches the cart.
func (s *Service) RemoveCoupon(ctx context.Context, id model.Identity) (*model.Cart, error) {
	if err := requireCartID(id); err != nil {
		return nil, err
	}

	mu := s.lockFor(id.Key())
	mu.Lock()
	defer mu.Unlock()

	epoch := s.epoch.Load()
	if err := s.api.RemoveCoupon(ctx, id); err != nil {
		return nil, err
	}
	return s.refetch(ctx, id, epoch)
}

// Totals fetches server-computed totals and attaches them to the current
// cart view. The store write goes through the same epoch check as cart
// responses: totals fetched for an identity that logged out mid-flight are
// returned to the caller but never attached to the successor's cart.
func (s *Service) Totals(ctx context.Context, id model.Identity) (*model.Totals, error) {
	if err := requireCartID(id); err != nil {
		return nil, err
	}

	mu := s.lockFor(id.Key())
	mu.Lock()
	defer mu.Unlock()

	epoch := s.epoch.Load()
	totals, err := s.api.Totals(ctx, id)
	if err != nil {
		return nil, err
	}

	if cur := s.store.Current(); cur != nil {
		cur.Totals = totals
		s.apply(cur, id, epoch)
	}
	return totals, nil
}

// MergeGuestCart replays the guest cart accumulated before login into the
// customer cart, one AddItem per line. The server's merge-by-SKU semantics
// make a replay idempotent: re-adding an already-merged SKU folds into
// quantity rather than duplicating a line, so an interrupted merge can be
// re-run safely. Per-item failures are logged and skipped — one bad line
// must not abort the login flow. The guest-scoped storage is cleared and
// the customer cart re-fetched before returning.
func (s *Service) MergeGuestCart(ctx context.Context, customer model.Identity) (*model.Cart, error) {
	if !customer.IsCustomer() {
		return nil, errors.New("merge requires a customer identity")
	}

	mu := s.lockFor(customer.Key())
	mu.Lock()
	defer mu.Unlock()

	epoch := s.epoch.Load()

	if snap := s.store.Snapshot(model.IdentityGuest); snap != nil {
		for _, item := range snap.Items {
			if item.Qty < 1 {
				continue
			}
			if err := s.api.AddItem(ctx, customer, item.SKU, item.Qty); err != nil {
				s.logger.Warn("merging guest item failed",
					slog.String("sku", item.SKU),
					slog.Int("qty", item.Qty),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	s.store.ClearGuest()

	return s.refetch(ctx, customer, epoch)
}

// StartAutoRefresh begins periodic background cart refresh. current is
// polled each tick; ticks are no-ops unless it reports a customer identity.
// A second call while running is a no-op.
func (s *Service) StartAutoRefresh(interval time.Duration, current func() model.Identity) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if s.stopRefresh != nil {
		return
	}
	stop := make(chan struct{})
	s.stopRefresh = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				id := current()
				if !id.IsCustomer() {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := s.Get(ctx, id); err != nil {
					s.logger.Debug("periodic cart refresh failed", slog.String("error", err.Error()))
				}
				cancel()
			}
		}
	}()
}

// StopAutoRefresh cancels the background refresh. Safe to call when not
// running; must be called on logout and on session teardown so no timer
// outlives the identity it was refreshing for.
func (s *Service) StopAutoRefresh() {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if s.stopRefresh != nil {
		close(s.stopRefresh)
		s.stopRefresh = nil
	}
}

// refetch is the read-after-write step: fetch the authoritative cart and
// apply it, unless the session identity changed while the round trip was in
// flight.
func (s *Service) refetch(ctx context.Context, id model.Identity, epoch int64) (*model.Cart, error) {
	cart, err := s.api.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	s.apply(cart, id, epoch)
	return cart, nil
}

// apply replaces the stored cart if the epoch is still current.
func (s *Service) apply(cart *model.Cart, id model.Identity, epoch int64) {
	if s.epoch.Load() != epoch {
		s.logger.Debug("discarding stale cart response",
			slog.String("identity", id.Key()),
		)
		return
	}
	if err := s.store.Replace(cart, id.Kind); err != nil {
		s.logger.Warn("mirroring cart snapshot failed", slog.String("error", err.Error()))
	}
}

// resolveItem maps an item reference (server item id or SKU) to the line in
// the current in-memory cart.
func (s *Service) resolveItem(itemRef string) (*model.CartItem, error) {
	cur := s.store.Current()
	item := cur.FindItem(itemRef)
	if item == nil || item.ItemID == "" {
		return nil, model.NewItemNotFoundError(itemRef)
	}
	return item, nil
}

// isTransport reports whether err is a transport-level failure eligible for
// the snapshot fallback. Authentication failures are not: serving a
// snapshot would mask a logged-out session.
func isTransport(err error) bool {
	return errors.Is(err, model.ErrNetwork) || errors.Is(err, model.ErrServerFault)
}
