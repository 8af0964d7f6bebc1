// Package checkout wraps the checkout endpoints: shipping and payment
// method discovery, shipping information, and order placement. Rendering a
// checkout form is the caller's concern; this layer only validates the
// preconditions the API will not diagnose clearly.
package checkout

import (
	"context"
	"fmt"

	"storefront/internal/magento"
	"storefront/internal/model"
)

// Service performs checkout operations for a cart identity.
type Service struct {
	api *magento.Client
}

// NewService wraps the commerce client.
func NewService(api *magento.Client) *Service {
	return &Service{api: api}
}

func requireCartID(id model.Identity) error {
	if !id.IsCustomer() && id.GuestCartID == "" {
		return model.NewMissingGuestIDError()
	}
	return nil
}

// ShippingMethods lists shipping methods available for the cart.
func (s *Service) ShippingMethods(ctx context.Context, id model.Identity) ([]magento.ShippingMethod, error) {
	if err := requireCartID(id); err != nil {
		return nil, err
	}
	return s.api.ShippingMethods(ctx, id)
}

// PaymentMethods lists payment methods available for the cart.
func (s *Service) PaymentMethods(ctx context.Context, id model.Identity) ([]magento.PaymentMethod, error) {
	if err := requireCartID(id); err != nil {
		return nil, err
	}
	return s.api.PaymentMethods(ctx, id)
}

// SetShippingInformation submits the shipping address and method selection.
func (s *Service) SetShippingInformation(ctx context.Context, id model.Identity, info *magento.ShippingInformation) error {
	if err := requireCartID(id); err != nil {
		return err
	}
	return s.api.SetShippingInformation(ctx, id, info)
}

// PlaceOrder submits payment information and places the order. Guest
// checkout requires a contact email; the server rejects its absence with an
// unhelpful message, so it is validated here.
func (s *Service) PlaceOrder(ctx context.Context, id model.Identity, info *magento.PaymentInformation) (string, error) {
	if err := requireCartID(id); err != nil {
		return "", err
	}
	if !id.IsCustomer() && info.Email == "" {
		return "", fmt.Errorf("guest checkout requires an email address")
	}
	return s.api.PlaceOrder(ctx, id, info)
}
