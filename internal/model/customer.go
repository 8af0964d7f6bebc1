package model

// UserProfile is the customer record returned by GET /customers/me.
type UserProfile struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	StoreID   int    `json:"store_id,omitempty"`
	WebsiteID int    `json:"website_id,omitempty"`
}

// Order is a summarized order record from the order history search.
type Order struct {
	EntityID      int     `json:"entity_id"`
	IncrementID   string  `json:"increment_id"`
	Status        string  `json:"status"`
	GrandTotal    float64 `json:"grand_total"`
	CreatedAt     string  `json:"created_at"`
	CustomerEmail string  `json:"customer_email,omitempty"`
}
