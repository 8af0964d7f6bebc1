package magento

// Wire types for the Magento-compatible REST API. Field names follow the
// API's snake_case JSON; transform.go maps them onto the domain model.

// cartItemEnvelope wraps item writes: {"cartItem": {...}}.
type cartItemEnvelope struct {
	CartItem cartItemInput `json:"cartItem"`
}

type cartItemInput struct {
	ItemID  string `json:"item_id,omitempty"`
	SKU     string `json:"sku,omitempty"`
	Qty     int    `json:"qty"`
	QuoteID string `json:"quote_id,omitempty"` // guest carts only
}

// wireCart is GET /carts/mine and GET /guest-carts/{id}.
type wireCart struct {
	ID           any            `json:"id"` // int for customer quotes, masked string for guests
	ItemsCount   int            `json:"items_count"`
	ItemsQty     float64        `json:"items_qty"`
	Items        []wireCartItem `json:"items"`
	CurrencyInfo *wireCurrency  `json:"currency,omitempty"`
}

type wireCurrency struct {
	QuoteCurrencyCode string `json:"quote_currency_code"`
}

type wireCartItem struct {
	ItemID    any     `json:"item_id"` // int in responses
	SKU       string  `json:"sku"`
	Qty       int     `json:"qty"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	ProductID any     `json:"product_id,omitempty"`
	ExtAttrs  *struct {
		ImageURL string `json:"image_url"`
	} `json:"extension_attributes,omitempty"`
}

// wireTotals is GET .../totals.
type wireTotals struct {
	Subtotal          float64 `json:"subtotal"`
	DiscountAmount    float64 `json:"discount_amount"`
	TaxAmount         float64 `json:"tax_amount"`
	GrandTotal        float64 `json:"grand_total"`
	CouponCode        string  `json:"coupon_code,omitempty"`
	QuoteCurrencyCode string  `json:"quote_currency_code,omitempty"`
}

// Category is a node of the store's category tree.
type Category struct {
	ID           int        `json:"id"`
	ParentID     int        `json:"parent_id"`
	Name         string     `json:"name"`
	IsActive     bool       `json:"is_active"`
	Level        int        `json:"level"`
	ProductCount int        `json:"product_count"`
	Children     []Category `json:"children_data,omitempty"`
}

// Product is a catalog product record.
type Product struct {
	ID         int     `json:"id"`
	SKU        string  `json:"sku"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Status     int     `json:"status"`
	TypeID     string  `json:"type_id,omitempty"`
	CustomAttr []struct {
		AttributeCode string `json:"attribute_code"`
		Value         any    `json:"value"`
	} `json:"custom_attributes,omitempty"`
}

// ProductList is the searchCriteria result envelope.
type ProductList struct {
	Items      []Product `json:"items"`
	TotalCount int       `json:"total_count"`
}

// ShippingMethod is one entry from .../shipping-methods.
type ShippingMethod struct {
	CarrierCode  string  `json:"carrier_code"`
	MethodCode   string  `json:"method_code"`
	CarrierTitle string  `json:"carrier_title"`
	MethodTitle  string  `json:"method_title"`
	Amount       float64 `json:"amount"`
	Available    bool    `json:"available"`
}

// PaymentMethod is one entry from .../payment-methods.
type PaymentMethod struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Address is a checkout address.
type Address struct {
	FirstName string   `json:"firstname"`
	LastName  string   `json:"lastname"`
	Street    []string `json:"street"`
	City      string   `json:"city"`
	Region    string   `json:"region,omitempty"`
	RegionID  int      `json:"region_id,omitempty"`
	Postcode  string   `json:"postcode"`
	CountryID string   `json:"country_id"`
	Telephone string   `json:"telephone,omitempty"`
	Email     string   `json:"email,omitempty"`
}

// ShippingInformation is POST .../shipping-information.
type ShippingInformation struct {
	AddressInformation struct {
		ShippingAddress    Address `json:"shipping_address"`
		BillingAddress     Address `json:"billing_address"`
		ShippingCarrierCode string `json:"shipping_carrier_code"`
		ShippingMethodCode  string `json:"shipping_method_code"`
	} `json:"addressInformation"`
}

// PaymentInformation is POST .../payment-information.
type PaymentInformation struct {
	Email          string  `json:"email,omitempty"` // required for guest checkout
	PaymentMethod  struct {
		Method string `json:"method"`
	} `json:"paymentMethod"`
	BillingAddress *Address `json:"billing_address,omitempty"`
}

// RegistrationInput is the customer registration payload.
type RegistrationInput struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// ordersResult is the GET /orders searchCriteria envelope.
type ordersResult struct {
	Items      []wireOrder `json:"items"`
	TotalCount int         `json:"total_count"`
}

type wireOrder struct {
	EntityID      int     `json:"entity_id"`
	IncrementID   string  `json:"increment_id"`
	Status        string  `json:"status"`
	GrandTotal    float64 `json:"grand_total"`
	CreatedAt     string  `json:"created_at"`
	CustomerEmail string  `json:"customer_email"`
}
