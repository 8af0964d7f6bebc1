// Package session is the process-wide storefront session: it wires storage,
// the token service, the request gateway, and the cart/catalog/checkout
// services together, and exposes the narrow operation surface the view
// layer (CLI, MCP agent, or an embedding app) consumes.
//
// A session holds exactly one identity at a time. It starts Guest; Login is
// the only Guest→Customer transition and performs the guest cart merge
// before returning, so by the time a caller sees Login succeed the customer
// cart is authoritative and already contains the pre-login items.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/gateway"
	"storefront/internal/magento"
	"storefront/internal/model"
	"storefront/internal/storage"
)

// Session is the explicit context object owning the storefront state.
type Session struct {
	logger *slog.Logger
	kv     storage.Store

	auth      *auth.Service
	authStore *auth.Store
	carts     *cart.Service
	catalog   *catalog.Service
	checkout  *checkout.Service
	api       *magento.Client

	refreshInterval time.Duration
}

// New builds a session from configuration. client is the HTTP client for
// all outbound calls; pass transport.NewClient in production and the test
// server's client in tests.
func New(cfg *config.Config, kv storage.Store, client *http.Client, logger *slog.Logger) *Session {
	tokenStore := auth.NewStore(kv)
	tokens := auth.NewService(cfg.Store.BaseURL, auth.Credentials{
		Username: cfg.Store.AdminUsername,
		Password: cfg.Store.AdminPassword,
	}, client, tokenStore, logger)

	gw := gateway.New(cfg.Store.BaseURL, client, tokens, logger)
	api := magento.NewClient(gw)
	cartStore := cart.NewStore(kv)

	return &Session{
		logger:          logger,
		kv:              kv,
		auth:            tokens,
		authStore:       tokenStore,
		carts:           cart.NewService(api, cartStore, logger),
		catalog:         catalog.NewService(api, tokens, cfg.CatalogCacheTTL),
		checkout:        checkout.NewService(api),
		api:             api,
		refreshInterval: cfg.RefreshInterval,
	}
}

// Init restores persisted identity and loads the matching cart, mirroring
// the original application-load behavior: customer cart for an
// authenticated session, guest cart when an id is stored, nothing for a
// fresh guest. Cart load failures are logged, not fatal — the session is
// usable without a warm cart.
func (s *Session) Init(ctx context.Context) {
	id := s.Identity()
	switch {
	case id.IsCustomer():
		if _, err := s.carts.Get(ctx, id); err != nil {
			s.logger.Warn("initial customer cart load failed", slog.String("error", err.Error()))
		}
		s.carts.StartAutoRefresh(s.refreshInterval, s.Identity)
	case id.GuestCartID != "":
		if _, err := s.carts.Get(ctx, id); err != nil {
			s.logger.Warn("initial guest cart load failed", slog.String("error", err.Error()))
		}
	}
}

// Close stops background work. The durable store keeps the session state
// for the next Init.
func (s *Session) Close() {
	s.carts.StopAutoRefresh()
}

// Identity returns the session's current identity.
func (s *Session) Identity() model.Identity {
	if s.auth.IsAuthenticated() {
		return model.Customer("", s.auth.Profile())
	}
	return model.Guest(s.carts.Store().GuestCartID())
}

// === Authentication ===

// Login authenticates, establishes the customer cart, merges the guest cart
// into it, and starts the periodic refresh. The merge completes before
// Login returns: callers never observe a customer session whose cart is
// missing pre-login items.
func (s *Session) Login(ctx context.Context, email, password string) error {
	// Invalidate any in-flight guest operation before switching identity.
	s.carts.BumpEpoch()

	if _, err := s.auth.Login(ctx, email, password); err != nil {
		return err
	}
	customer := s.Identity()

	if _, err := s.carts.Create(ctx, customer); err != nil {
		return fmt.Errorf("establishing customer cart: %w", err)
	}
	if _, err := s.carts.MergeGuestCart(ctx, customer); err != nil {
		return fmt.Errorf("merging guest cart: %w", err)
	}

	s.carts.StartAutoRefresh(s.refreshInterval, s.Identity)
	return nil
}

// Logout tears the customer session down: refresh stops, in-flight
// responses are invalidated, tokens and the customer cart snapshot are
// cleared. Always succeeds locally.
func (s *Session) Logout(ctx context.Context) {
	s.carts.StopAutoRefresh()
	s.carts.BumpEpoch()
	s.auth.Logout(ctx)
	s.carts.Store().ClearCustomer()
}

// IsAuthenticated reports whether the session holds a customer identity.
func (s *Session) IsAuthenticated() bool {
	return s.auth.IsAuthenticated()
}

// Profile returns the authenticated customer's profile, or nil.
func (s *Session) Profile() *model.UserProfile {
	return s.auth.Profile()
}

// Register creates a new customer account. The caller still logs in
// explicitly afterwards.
func (s *Session) Register(ctx context.Context, in magento.RegistrationInput) (*model.UserProfile, error) {
	return s.api.Register(ctx, in)
}

// UpdateProfile saves changes to the authenticated customer's record and
// refreshes the locally persisted profile with the server's copy.
func (s *Session) UpdateProfile(ctx context.Context, p *model.UserProfile) (*model.UserProfile, error) {
	if !s.auth.IsAuthenticated() {
		return nil, model.NewUnauthorizedError("profile update requires login")
	}
	updated, err := s.api.UpdateCustomer(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.authStore.SetProfile(updated); err != nil {
		s.logger.Warn("persisting updated profile", slog.String("error", err.Error()))
	}
	return updated, nil
}

// ChangePassword changes the authenticated customer's password. Some
// stores revoke outstanding tokens on password change; callers should be
// prepared to log in again.
func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	if !s.auth.IsAuthenticated() {
		return model.NewUnauthorizedError("password change requires login")
	}
	return s.api.ChangePassword(ctx, current, next)
}

// === Cart (view boundary) ===

// CurrentCart returns the session's cart view without network I/O.
func (s *Session) CurrentCart() *model.Cart {
	return s.carts.Store().Current()
}

// ItemCount returns the current cart's total quantity.
func (s *Session) ItemCount() int {
	return model.ItemCount(s.CurrentCart())
}

// OnCartChanged subscribes to cart replacements; returns the cancel func.
func (s *Session) OnCartChanged(fn func()) func() {
	return s.carts.Store().Subscribe(fn)
}

// Cart fetches the authoritative cart for the current identity.
func (s *Session) Cart(ctx context.Context) (*model.Cart, error) {
	return s.carts.Get(ctx, s.Identity())
}

// AddItem adds qty of sku to the cart. A guest cart is created lazily on
// the first mutation.
func (s *Session) AddItem(ctx context.Context, sku string, qty int) (*model.Cart, error) {
	id := s.Identity()
	if !id.IsCustomer() && id.GuestCartID == "" {
		var err error
		id, err = s.carts.Create(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("creating guest cart: %w", err)
		}
	}
	return s.carts.AddItem(ctx, id, sku, qty)
}

// UpdateItemQty sets a line's quantity; qty <= 0 removes the line.
func (s *Session) UpdateItemQty(ctx context.Context, itemRef string, qty int) (*model.Cart, error) {
	return s.carts.UpdateItemQty(ctx, s.Identity(), itemRef, qty)
}

// RemoveItem removes a line by item id or SKU.
func (s *Session) RemoveItem(ctx context.Context, itemRef string) (*model.Cart, error) {
	return s.carts.RemoveItem(ctx, s.Identity(), itemRef)
}

// ApplyCoupon applies a coupon code to the cart.
func (s *Session) ApplyCoupon(ctx context.Context, code string) (*model.Cart, error) {
	return s.carts.ApplyCoupon(ctx, s.Identity(), code)
}

// RemoveCoupon removes the applied coupon.
func (s *Session) RemoveCoupon(ctx context.Context) (*model.Cart, error) {
	return s.carts.RemoveCoupon(ctx, s.Identity())
}

// Totals fetches server-computed totals for the current cart.
func (s *Session) Totals(ctx context.Context) (*model.Totals, error) {
	return s.carts.Totals(ctx, s.Identity())
}

// === Orders / catalog / checkout ===

// Orders returns the authenticated customer's order history.
func (s *Session) Orders(ctx context.Context) ([]model.Order, error) {
	p := s.auth.Profile()
	if p == nil {
		return nil, model.NewUnauthorizedError("order history requires login")
	}
	return s.api.OrdersByCustomer(ctx, p.ID)
}

// Catalog exposes cached catalog reads.
func (s *Session) Catalog() *catalog.Service {
	return s.catalog
}

// ShippingMethods lists shipping methods available for the current cart.
func (s *Session) ShippingMethods(ctx context.Context) ([]magento.ShippingMethod, error) {
	return s.checkout.ShippingMethods(ctx, s.Identity())
}

// PaymentMethods lists payment methods available for the current cart.
func (s *Session) PaymentMethods(ctx context.Context) ([]magento.PaymentMethod, error) {
	return s.checkout.PaymentMethods(ctx, s.Identity())
}

// SetShippingInformation submits the shipping address and carrier choice.
func (s *Session) SetShippingInformation(ctx context.Context, info *magento.ShippingInformation) error {
	return s.checkout.SetShippingInformation(ctx, s.Identity(), info)
}

// PlaceOrder submits payment information and places the order, returning
// the order id. The cart is cleared server-side; drop the local view too.
func (s *Session) PlaceOrder(ctx context.Context, info *magento.PaymentInformation) (string, error) {
	id := s.Identity()
	orderID, err := s.checkout.PlaceOrder(ctx, id, info)
	if err != nil {
		return "", err
	}
	if !id.IsCustomer() {
		s.carts.Store().ClearGuest()
	} else {
		s.carts.Store().ClearCustomer()
	}
	return orderID, nil
}
