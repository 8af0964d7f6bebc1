// Package agent is the MCP tool surface for the storefront session, built
// on the official MCP Go SDK. It exposes cart, catalog, and account
// operations so an agent can drive a shopping session end to end.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront/internal/magento"
	"storefront/internal/model"
	"storefront/internal/session"
)

// Agent adapts a storefront session to MCP tools. All tools share the one
// session, mirroring how a single browser tab owns one identity and cart.
type Agent struct {
	session *session.Session
	logger  *slog.Logger
}

// New returns an agent bound to the given session.
func New(s *session.Session, logger *slog.Logger) *Agent {
	return &Agent{session: s, logger: logger}
}

// === Tool Input Types ===

// AddToCartInput is the input schema for the add_to_cart tool.
type AddToCartInput struct {
	SKU string `json:"sku" jsonschema:"product SKU,required"`
	Qty int    `json:"qty" jsonschema:"quantity to add,required"`
}

// UpdateQuantityInput is the input schema for the update_quantity tool.
type UpdateQuantityInput struct {
	Item string `json:"item" jsonschema:"cart item id or SKU,required"`
	Qty  int    `json:"qty" jsonschema:"new quantity; zero removes the item,required"`
}

// RemoveItemInput is the input schema for the remove_item tool.
type RemoveItemInput struct {
	Item string `json:"item" jsonschema:"cart item id or SKU,required"`
}

// ApplyCouponInput is the input schema for the apply_coupon tool.
type ApplyCouponInput struct {
	Code string `json:"code" jsonschema:"coupon code,required"`
}

// LoginInput is the input schema for the login tool.
type LoginInput struct {
	Email    string `json:"email" jsonschema:"customer email,required"`
	Password string `json:"password" jsonschema:"customer password,required"`
}

// GetProductInput is the input schema for the get_product tool.
type GetProductInput struct {
	SKU string `json:"sku" jsonschema:"product SKU,required"`
}

// ListProductsInput is the input schema for the list_products tool.
type ListProductsInput struct {
	CategoryID int `json:"category_id" jsonschema:"category id,required"`
	Page       int `json:"page,omitempty" jsonschema:"page number, 1-based"`
	PageSize   int `json:"page_size,omitempty" jsonschema:"items per page"`
}

type emptyInput struct{}

// LoginResult reports the outcome of the login tool.
type LoginResult struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	ItemCount int    `json:"item_count"`
}

// NewServer creates an MCP server with storefront tools registered.
func (a *Agent) NewServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront shopping session. Use these tools to browse " +
				"the catalog, manage the cart, and sign in as a customer. Cart " +
				"mutations return the updated cart.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_cart",
		Description: "Get the current cart with line items and totals.",
	}, a.viewCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add a product to the cart by SKU. Adding an existing SKU increases its quantity.",
	}, a.addToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_quantity",
		Description: "Set a cart line's quantity. A quantity of zero removes the line.",
	}, a.updateQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_item",
		Description: "Remove a line from the cart by item id or SKU.",
	}, a.removeItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_coupon",
		Description: "Apply a coupon code to the cart.",
	}, a.applyCoupon)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_coupon",
		Description: "Remove the applied coupon from the cart.",
	}, a.removeCoupon)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "login",
		Description: "Sign in as a customer. Items in the guest cart are merged into the customer cart.",
	}, a.login)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "logout",
		Description: "Sign out. The session returns to a fresh guest state.",
	}, a.logout)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_product",
		Description: "Get product details by SKU.",
	}, a.getProduct)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_categories",
		Description: "Get the store's category tree.",
	}, a.listCategories)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_products",
		Description: "List products in a category, paginated.",
	}, a.listProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "order_history",
		Description: "Get the signed-in customer's order history.",
	}, a.orderHistory)

	return server
}

// NewHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (a *Agent) NewHandler() http.Handler {
	server := a.NewServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (a *Agent) viewCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input emptyInput,
) (*mcp.CallToolResult, *model.Cart, error) {
	cart, err := a.session.Cart(ctx)
	if err != nil {
		if errors.Is(err, model.ErrMissingGuestID) {
			// Fresh guest with no cart yet.
			return nil, &model.Cart{}, nil
		}
		return nil, nil, a.toolError(err)
	}
	return nil, cart, nil
}

func (a *Agent) addToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, *model.Cart, error) {
	if input.SKU == "" {
		return nil, nil, fmt.Errorf("sku is required")
	}
	if input.Qty <= 0 {
		return nil, nil, fmt.Errorf("qty must be positive")
	}
	cart, err := a.session.AddItem(ctx, input.SKU, input.Qty)
	if err != nil {
		return nil, nil, a.toolError(err)
	}
	return nil, cart, nil
}

func (a *Agent) updateQuantity(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input UpdateQuantityInput,
) (*mcp.CallToolResult, *model.Cart, error) {
	if input.Item == "" {
		return nil, nil, fmt.Errorf("item is required")
	}
	cart, err := a.session.UpdateItemQty(ctx, input.Item, input.Qty)
	if err != nil {
		return nil, nil, a.toolError(err)
	}
	return nil, cart, nil
}

func (a *Agent) removeItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveItemInput,
) (*mcp.CallToolResult, *model.Cart, error) {
	if input.Item == "" {
		return nil, nil, fmt.Errorf("item is required")
	}
	cart, err := a.session.RemoveItem(ctx, input.Item)
	if err != nil {
		return nil, nil, a.toolError(err)
	}
	return nil, cart, nil
}

func (a *Agent) applyCoupon(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ApplyCouponInput,
) (*mcp.CallToolResult, *model.Cart, error) {
	if input.Code == "" {
		return nil, nil, fmt.Errorf("code is required")
	}
	cart, err := a.session.ApplyCoupon(ctx, input.Code)
	if err != nil {
		return nil, nil, a.toolError(err)
	}
	return nil, cart, nil
}

func (a *Agent) removeCoupon(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input emptyInput,
) (*mcp.CallToolResult, *model.Cart, error) {
	cart, err := a.session.RemoveCoupon(ctx)
	if err != nil {
		return nil, nil, a.toolError(err)
	}
	return nil, cart, nil
}

func (a *Agent) login(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input LoginInput,
) (*mcp.CallToolResult, *LoginResult, error) {
	if input.Email == "" || input.Password == "" {
		return nil, nil, fmt.Errorf("email and password are required")
	}
	if err := a.session.Login(ctx, input.Email, input.Password); err != nil {
		return nil, nil, a.toolError(err)
	}
	result := &LoginResult{Email: input.Email, ItemCount: a.session.ItemCount()}
	if p := a.session.Profile(); p != nil {
		result.Email = p.Email
		result.FirstName = p.FirstName
	}
	return nil, result, nil
}

func (a *Agent) logout(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input emptyInput,
) (*mcp.CallToolResult, *struct{}, error) {
	a.session.Logout(ctx)
	return nil, &struct{}{}, nil
}

func (a *Agent) getProduct(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetProductInput,
) (*mcp.CallToolResult, *magento.Product, error) {
	if input.SKU == "" {
		return nil, nil, fmt.Errorf("sku is required")
	}
	product, err := a.session.Catalog().Product(ctx, input.SKU)
	if err != nil {
		return nil, nil, a.toolError(err)
	}
	return nil, product, nil
}

func (a *Agent) listCategories(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input emptyInput,
) (*mcp.CallToolResult, *magento.Category, error) {
	tree, err := a.session.Catalog().CategoryTree(ctx)
	if err != nil {
		return nil, nil, a.toolError(err)
	}
	return nil, tree, nil
}

func (a *Agent) listProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListProductsInput,
) (*mcp.CallToolResult, *magento.ProductList, error) {
	if input.CategoryID == 0 {
		return nil, nil, fmt.Errorf("category_id is required")
	}
	page, size := input.Page, input.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	list, err := a.session.Catalog().ProductsByCategory(ctx, input.CategoryID, page, size)
	if err != nil {
		return nil, nil, a.toolError(err)
	}
	return nil, list, nil
}

// OrderHistoryResult wraps the order list for a JSON object payload.
type OrderHistoryResult struct {
	Orders []model.Order `json:"orders"`
}

func (a *Agent) orderHistory(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input emptyInput,
) (*mcp.CallToolResult, *OrderHistoryResult, error) {
	orders, err := a.session.Orders(ctx)
	if err != nil {
		return nil, nil, a.toolError(err)
	}
	return nil, &OrderHistoryResult{Orders: orders}, nil
}

// toolError converts service errors to MCP-friendly errors.
func (a *Agent) toolError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	a.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
