package model

// IdentityKind discriminates the two session identities.
type IdentityKind string

const (
	IdentityGuest    IdentityKind = "guest"
	IdentityCustomer IdentityKind = "customer"
)

// Identity is the tagged variant a session holds exactly one of at a time.
// Guest carries the server-issued guest cart id (empty until a cart is
// created); Customer carries the bearer token and cached profile.
// The only valid transition is Guest -> Customer at login; logout resets to
// a fresh Guest rather than reverting.
type Identity struct {
	Kind        IdentityKind
	GuestCartID string       // guest only
	Token       string       // customer only
	Profile     *UserProfile // customer only
}

// Guest returns a guest identity with the given cart id (may be empty).
func Guest(cartID string) Identity {
	return Identity{Kind: IdentityGuest, GuestCartID: cartID}
}

// Customer returns a customer identity.
func Customer(token string, profile *UserProfile) Identity {
	return Identity{Kind: IdentityCustomer, Token: token, Profile: profile}
}

// IsCustomer reports whether this is an authenticated identity.
func (id Identity) IsCustomer() bool {
	return id.Kind == IdentityCustomer
}

// Key returns the serialization key used for per-cart-identity locking and
// snapshot storage. All customer carts share one key ("mine" addressing);
// guest carts are keyed by their id.
func (id Identity) Key() string {
	if id.Kind == IdentityCustomer {
		return "customer"
	}
	return "guest:" + id.GuestCartID
}
