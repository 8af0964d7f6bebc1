// Package model defines the domain types shared across the storefront
// session client: carts, identities, customer profiles, and the error
// taxonomy used at the commerce API boundary.
package model

// CartItem is a single line in a cart. SKU is the unique key within a cart;
// ItemID is assigned by the server and is only present once the line exists
// server-side.
type CartItem struct {
	ItemID   string  `json:"item_id,omitempty"`
	SKU      string  `json:"sku"`
	Qty      int     `json:"qty"`
	Price    float64 `json:"price"`
	Name     string  `json:"name,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
}

// Totals holds server-computed cart totals. The server is authoritative for
// discounts and tax; the client never derives these locally.
type Totals struct {
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	TaxAmount      float64 `json:"tax_amount"`
	GrandTotal     float64 `json:"grand_total"`
	CouponCode     string  `json:"coupon_code,omitempty"`
	Currency       string  `json:"currency,omitempty"`
}

// Cart is the client's view of a cart. ID is the server-issued guest cart id;
// a customer cart is addressed implicitly ("mine") and carries no id.
// Totals is nil until fetched and is invalidated on any item mutation.
type Cart struct {
	ID     string     `json:"id,omitempty"`
	Items  []CartItem `json:"items"`
	Totals *Totals    `json:"totals,omitempty"`
}

// FindItem returns the line matching itemID or SKU, or nil.
func (c *Cart) FindItem(ref string) *CartItem {
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if c.Items[i].ItemID == ref || c.Items[i].SKU == ref {
			return &c.Items[i]
		}
	}
	return nil
}

// Clone returns a deep copy. The store hands out clones so callers can never
// mutate shared state.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := &Cart{ID: c.ID}
	out.Items = make([]CartItem, len(c.Items))
	copy(out.Items, c.Items)
	if c.Totals != nil {
		t := *c.Totals
		out.Totals = &t
	}
	return out
}

// ItemCount returns the sum of line quantities.
func ItemCount(c *Cart) int {
	if c == nil {
		return 0
	}
	n := 0
	for _, it := range c.Items {
		n += it.Qty
	}
	return n
}

// Subtotal returns the sum of price*qty over all lines. This is a display
// helper only; authoritative totals come from the server.
func Subtotal(c *Cart) float64 {
	if c == nil {
		return 0
	}
	var sum float64
	for _, it := range c.Items {
		sum += it.Price * float64(it.Qty)
	}
	return sum
}
