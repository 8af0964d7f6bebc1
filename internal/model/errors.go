package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrMissingGuestID     = errors.New("missing guest cart id")
	ErrCartUnavailable    = errors.New("cart unavailable")
	ErrItemNotFound       = errors.New("item not found")
	ErrInvalidCoupon      = errors.New("invalid coupon")
	ErrNetwork            = errors.New("network error")
	ErrServerFault        = errors.New("server fault")
	ErrUnauthorized       = errors.New("unauthorized")
)

// APIError represents a structured error raised at the commerce API boundary.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status from the commerce API, 0 if none
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewInvalidCredentialsError creates an error for rejected login or token requests.
// Authentication failures are never retried with the same credentials.
func NewInvalidCredentialsError(reason string) *APIError {
	return &APIError{
		Code:       "INVALID_CREDENTIALS",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrInvalidCredentials,
	}
}

// NewServiceUnavailableError creates an error for an unreachable token endpoint.
func NewServiceUnavailableError(err error) *APIError {
	return &APIError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: "authentication service unreachable",
		Err:     fmt.Errorf("%w: %v", ErrServiceUnavailable, err),
	}
}

// NewMissingGuestIDError creates a precondition error for guest cart access
// attempted before any guest cart was created.
func NewMissingGuestIDError() *APIError {
	return &APIError{
		Code:    "MISSING_GUEST_ID",
		Message: "no guest cart id stored; create a cart first",
		Err:     ErrMissingGuestID,
	}
}

// NewCartUnavailableError creates an error for a cart read that failed with
// no durable snapshot to fall back to.
func NewCartUnavailableError(err error) *APIError {
	return &APIError{
		Code:    "CART_UNAVAILABLE",
		Message: "cart could not be fetched and no snapshot exists",
		Err:     fmt.Errorf("%w: %v", ErrCartUnavailable, err),
	}
}

// NewItemNotFoundError creates an error for a mutation referencing an item id
// absent from the current cart.
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:       "ITEM_NOT_FOUND",
		Message:    fmt.Sprintf("item %s not in cart", itemID),
		StatusCode: 404,
		Err:        ErrItemNotFound,
	}
}

// NewInvalidCouponError creates an error for a coupon code the server rejected.
// Distinct from transport errors so the UI can show a field-level message.
func NewInvalidCouponError(code string) *APIError {
	return &APIError{
		Code:       "INVALID_COUPON",
		Message:    fmt.Sprintf("coupon %q was not accepted", code),
		StatusCode: 404,
		Err:        ErrInvalidCoupon,
	}
}

// NewNetworkError creates an error for a request that never got a response.
func NewNetworkError(err error) *APIError {
	return &APIError{
		Code:    "NETWORK_ERROR",
		Message: "commerce API request failed",
		Err:     fmt.Errorf("%w: %v", ErrNetwork, err),
	}
}

// NewServerError creates an error for a non-401 failure status from the API.
func NewServerError(status int, message string) *APIError {
	if message == "" {
		message = "commerce API returned an error"
	}
	return &APIError{
		Code:       "SERVER_ERROR",
		Message:    message,
		StatusCode: status,
		Err:        fmt.Errorf("%w: status %d", ErrServerFault, status),
	}
}

// NewUnauthorizedError creates a 401 error for requests still rejected after
// the single refresh-and-retry attempt.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}
