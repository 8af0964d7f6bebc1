package magento

import (
	"fmt"

	"storefront/internal/model"
)

// anyID renders the API's loosely typed ids (ints for customer quotes,
// masked strings for guest carts) as strings.
func anyID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; quote ids are integral.
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// toCart maps a wire cart onto the domain model. Totals are not carried
// over: they come from the dedicated totals endpoint and are fetched lazily.
func toCart(w *wireCart) *model.Cart {
	if w == nil {
		return &model.Cart{Items: []model.CartItem{}}
	}

	out := &model.Cart{
		ID:    anyID(w.ID),
		Items: make([]model.CartItem, 0, len(w.Items)),
	}
	for _, it := range w.Items {
		item := model.CartItem{
			ItemID: anyID(it.ItemID),
			SKU:    it.SKU,
			Qty:    it.Qty,
			Price:  it.Price,
			Name:   it.Name,
		}
		if it.ExtAttrs != nil {
			item.ImageURL = it.ExtAttrs.ImageURL
		}
		out.Items = append(out.Items, item)
	}
	return out
}

// toTotals maps the totals endpoint response.
func toTotals(w *wireTotals) *model.Totals {
	if w == nil {
		return nil
	}
	return &model.Totals{
		Subtotal:       w.Subtotal,
		DiscountAmount: w.DiscountAmount,
		TaxAmount:      w.TaxAmount,
		GrandTotal:     w.GrandTotal,
		CouponCode:     w.CouponCode,
		Currency:       w.QuoteCurrencyCode,
	}
}

// toOrders maps the order search result.
func toOrders(w *ordersResult) []model.Order {
	if w == nil {
		return nil
	}
	out := make([]model.Order, 0, len(w.Items))
	for _, o := range w.Items {
		out = append(out, model.Order{
			EntityID:      o.EntityID,
			IncrementID:   o.IncrementID,
			Status:        o.Status,
			GrandTotal:    o.GrandTotal,
			CreatedAt:     o.CreatedAt,
			CustomerEmail: o.CustomerEmail,
		})
	}
	return out
}
