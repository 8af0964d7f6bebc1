// Package magento is the typed client for the Magento-compatible commerce
// REST API. It owns paths and wire formats; authentication and the
// 401-refresh-retry policy live in the request gateway it calls through.
//
// Cart endpoints come in two families selected by identity: the customer's
// implicit cart ("/carts/mine") and id-addressed guest carts
// ("/guest-carts/{id}"). cartPath centralizes the split.
package magento

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"storefront/internal/gateway"
	"storefront/internal/model"
)

// Client issues commerce API calls through the authenticated gateway.
type Client struct {
	gw *gateway.Gateway
}

// NewClient wraps a gateway.
func NewClient(gw *gateway.Gateway) *Client {
	return &Client{gw: gw}
}

// cartPath builds the cart endpoint for an identity. Callers must have
// validated that a guest identity carries a cart id.
func cartPath(id model.Identity, suffix string) string {
	if id.IsCustomer() {
		return "/carts/mine" + suffix
	}
	return "/guest-carts/" + url.PathEscape(id.GuestCartID) + suffix
}

// === Cart lifecycle ===

// CreateCart creates a cart for the identity. For a customer the server
// associates (or returns) the cart bound to the account — calling twice
// yields the same underlying cart. For a guest it returns the new masked
// cart id.
func (c *Client) CreateCart(ctx context.Context, id model.Identity) (string, error) {
	path := "/guest-carts"
	if id.IsCustomer() {
		path = "/carts/mine"
	}
	var cartID any
	if err := c.gw.Do(ctx, http.MethodPost, path, nil, &cartID); err != nil {
		return "", fmt.Errorf("creating cart: %w", err)
	}
	return anyID(cartID), nil
}

// GetCart fetches the full authoritative cart for the identity.
func (c *Client) GetCart(ctx context.Context, id model.Identity) (*model.Cart, error) {
	var w wireCart
	if err := c.gw.Do(ctx, http.MethodGet, cartPath(id, ""), nil, &w); err != nil {
		return nil, err
	}
	cart := toCart(&w)
	if !id.IsCustomer() && cart.ID == "" {
		// Guest cart responses carry the numeric quote id, not the masked
		// id the client addresses it by. Keep the addressable one.
		cart.ID = id.GuestCartID
	}
	return cart, nil
}

// AddItem posts a new line. If the SKU already exists the server merges by
// SKU, incrementing quantity rather than duplicating the line.
func (c *Client) AddItem(ctx context.Context, id model.Identity, sku string, qty int) error {
	body := cartItemEnvelope{CartItem: cartItemInput{SKU: sku, Qty: qty}}
	if !id.IsCustomer() {
		body.CartItem.QuoteID = id.GuestCartID
	}
	if err := c.gw.Do(ctx, http.MethodPost, cartPath(id, "/items"), body, nil); err != nil {
		return fmt.Errorf("adding %s to cart: %w", sku, err)
	}
	return nil
}

// UpdateItem sets a line's quantity by server-assigned item id.
func (c *Client) UpdateItem(ctx context.Context, id model.Identity, itemID string, qty int) error {
	body := cartItemEnvelope{CartItem: cartItemInput{ItemID: itemID, Qty: qty}}
	if !id.IsCustomer() {
		body.CartItem.QuoteID = id.GuestCartID
	}
	path := cartPath(id, "/items/"+url.PathEscape(itemID))
	if err := c.gw.Do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("updating item %s: %w", itemID, err)
	}
	return nil
}

// RemoveItem deletes a line by server-assigned item id.
func (c *Client) RemoveItem(ctx context.Context, id model.Identity, itemID string) error {
	path := cartPath(id, "/items/"+url.PathEscape(itemID))
	if err := c.gw.Do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("removing item %s: %w", itemID, err)
	}
	return nil
}

// === Coupons ===

// ApplyCoupon applies a coupon code to the cart. A rejected code surfaces
// as model.ErrInvalidCoupon, distinct from transport failures.
func (c *Client) ApplyCoupon(ctx context.Context, id model.Identity, code string) error {
	path := cartPath(id, "/coupons/"+url.PathEscape(code))
	if err := c.gw.Do(ctx, http.MethodPut, path, nil, nil); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusBadRequest) {
			return model.NewInvalidCouponError(code)
		}
		return fmt.Errorf("applying coupon: %w", err)
	}
	return nil
}

// RemoveCoupon clears any applied coupon.
func (c *Client) RemoveCoupon(ctx context.Context, id model.Identity) error {
	if err := c.gw.Do(ctx, http.MethodDelete, cartPath(id, "/coupons"), nil, nil); err != nil {
		return fmt.Errorf("removing coupon: %w", err)
	}
	return nil
}

// === Totals ===

// Totals fetches server-computed cart totals.
func (c *Client) Totals(ctx context.Context, id model.Identity) (*model.Totals, error) {
	var w wireTotals
	if err := c.gw.Do(ctx, http.MethodGet, cartPath(id, "/totals"), nil, &w); err != nil {
		return nil, err
	}
	return toTotals(&w), nil
}

// === Checkout ===

// ShippingMethods lists available shipping methods for the cart.
func (c *Client) ShippingMethods(ctx context.Context, id model.Identity) ([]ShippingMethod, error) {
	var out []ShippingMethod
	if err := c.gw.Do(ctx, http.MethodGet, cartPath(id, "/shipping-methods"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PaymentMethods lists available payment methods for the cart.
func (c *Client) PaymentMethods(ctx context.Context, id model.Identity) ([]PaymentMethod, error) {
	var out []PaymentMethod
	if err := c.gw.Do(ctx, http.MethodGet, cartPath(id, "/payment-methods"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetShippingInformation submits shipping address and method selection.
func (c *Client) SetShippingInformation(ctx context.Context, id model.Identity, info *ShippingInformation) error {
	if err := c.gw.Do(ctx, http.MethodPost, cartPath(id, "/shipping-information"), info, nil); err != nil {
		return fmt.Errorf("setting shipping information: %w", err)
	}
	return nil
}

// PlaceOrder submits payment information and places the order.
// Returns the server's order id.
func (c *Client) PlaceOrder(ctx context.Context, id model.Identity, info *PaymentInformation) (string, error) {
	var orderID any
	if err := c.gw.Do(ctx, http.MethodPost, cartPath(id, "/payment-information"), info, &orderID); err != nil {
		return "", fmt.Errorf("placing order: %w", err)
	}
	return anyID(orderID), nil
}

// === Customers ===

// Register creates a new customer account (admin-scoped call).
func (c *Client) Register(ctx context.Context, in RegistrationInput) (*model.UserProfile, error) {
	body := map[string]any{
		"customer": map[string]any{
			"email":      in.Email,
			"firstname":  in.FirstName,
			"lastname":   in.LastName,
			"store_id":   1,
			"website_id": 1,
		},
		"password": in.Password,
	}
	var profile model.UserProfile
	if err := c.gw.Do(ctx, http.MethodPost, "/customers", body, &profile); err != nil {
		return nil, fmt.Errorf("registering customer: %w", err)
	}
	return &profile, nil
}

// UpdateCustomer updates the authenticated customer's record.
func (c *Client) UpdateCustomer(ctx context.Context, p *model.UserProfile) (*model.UserProfile, error) {
	body := map[string]any{"customer": p}
	var out model.UserProfile
	if err := c.gw.Do(ctx, http.MethodPut, "/customers/me", body, &out); err != nil {
		return nil, fmt.Errorf("updating customer: %w", err)
	}
	return &out, nil
}

// ChangePassword changes the authenticated customer's password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{
		"currentPassword": current,
		"newPassword":     next,
	}
	if err := c.gw.Do(ctx, http.MethodPut, "/customers/me/password", body, nil); err != nil {
		return fmt.Errorf("changing password: %w", err)
	}
	return nil
}

// === Orders ===

// OrdersByCustomer searches order history for a customer id (admin-scoped).
func (c *Client) OrdersByCustomer(ctx context.Context, customerID int) ([]model.Order, error) {
	q := url.Values{}
	q.Set("searchCriteria[filterGroups][0][filters][0][field]", "customer_id")
	q.Set("searchCriteria[filterGroups][0][filters][0][value]", fmt.Sprintf("%d", customerID))
	q.Set("searchCriteria[filterGroups][0][filters][0][condition_type]", "eq")

	var w ordersResult
	if err := c.gw.Do(ctx, http.MethodGet, "/orders?"+q.Encode(), nil, &w); err != nil {
		return nil, err
	}
	return toOrders(&w), nil
}

// === Catalog (raw reads; caching lives in internal/catalog) ===

// CategoryTree fetches the full category tree rooted at the store root.
// Headers are returned so callers can derive cache TTLs.
func (c *Client) CategoryTree(ctx context.Context) (*Category, http.Header, error) {
	var root Category
	header, err := c.gw.DoHeader(ctx, http.MethodGet, "/categories", nil, &root)
	if err != nil {
		return nil, nil, err
	}
	return &root, header, nil
}

// CategoryByID fetches one category.
func (c *Client) CategoryByID(ctx context.Context, categoryID int) (*Category, http.Header, error) {
	var cat Category
	header, err := c.gw.DoHeader(ctx, http.MethodGet, fmt.Sprintf("/categories/%d", categoryID), nil, &cat)
	if err != nil {
		return nil, nil, err
	}
	return &cat, header, nil
}

// ProductBySKU fetches a product by SKU.
func (c *Client) ProductBySKU(ctx context.Context, sku string) (*Product, http.Header, error) {
	var p Product
	header, err := c.gw.DoHeader(ctx, http.MethodGet, "/products/"+url.PathEscape(sku), nil, &p)
	if err != nil {
		return nil, nil, err
	}
	return &p, header, nil
}

// ProductsByCategory lists products in a category, paginated.
func (c *Client) ProductsByCategory(ctx context.Context, categoryID, page, pageSize int) (*ProductList, http.Header, error) {
	q := url.Values{}
	q.Set("searchCriteria[filterGroups][0][filters][0][field]", "category_id")
	q.Set("searchCriteria[filterGroups][0][filters][0][value]", fmt.Sprintf("%d", categoryID))
	q.Set("searchCriteria[filterGroups][0][filters][0][condition_type]", "eq")
	q.Set("searchCriteria[currentPage]", fmt.Sprintf("%d", page))
	q.Set("searchCriteria[pageSize]", fmt.Sprintf("%d", pageSize))

	var list ProductList
	header, err := c.gw.DoHeader(ctx, http.MethodGet, "/products?"+q.Encode(), nil, &list)
	if err != nil {
		return nil, nil, err
	}
	return &list, header, nil
}
