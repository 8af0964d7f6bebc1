// storefront is a CLI for driving a storefront session against a Magento
// compatible backend. Each command performs a single operation; session
// state (tokens, cart ids, snapshots) persists across invocations in a
// state file, so commands compose in scripts.
//
// Commands:
//
//	storefront login -email EMAIL -password PASS
//	storefront logout
//	storefront cart
//	storefront add -sku SKU [-qty N]
//	storefront update -item REF -qty N
//	storefront remove -item REF
//	storefront coupon -code CODE | -clear
//	storefront totals
//	storefront categories
//	storefront products -category ID [-page N] [-size N]
//	storefront product -sku SKU
//	storefront orders
//	storefront register -email EMAIL -password PASS -first NAME -last NAME
//
// Examples:
//
//	storefront add -sku 24-MB01 -qty 2
//	storefront login -email jane@example.com -password secret
//	storefront cart    # merged cart, includes pre-login items
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"storefront/internal/config"
	"storefront/internal/magento"
	"storefront/internal/model"
	"storefront/internal/session"
	"storefront/internal/storage"
	"storefront/internal/transport"
)

// Global flags (apply to all commands)
var (
	quiet   bool
	noColor bool
	asJSON  bool
)

// ANSI color codes
var (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen = "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "login":
		runLogin(args)
	case "logout":
		runLogout(args)
	case "cart":
		runCart(args)
	case "add":
		runAdd(args)
	case "update":
		runUpdate(args)
	case "remove":
		runRemove(args)
	case "coupon":
		runCoupon(args)
	case "totals":
		runTotals(args)
	case "categories":
		runCategories(args)
	case "products":
		runProducts(args)
	case "product":
		runProduct(args)
	case "orders":
		runOrders(args)
	case "register":
		runRegister(args)
	case "profile":
		runProfile(args)
	case "passwd":
		runPasswd(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `storefront - Magento storefront session tool

Usage:
  storefront <command> [options]

Commands:
  login       Sign in as a customer (merges the guest cart)
  logout      Sign out and reset to a fresh guest session
  cart        Show the current cart
  add         Add a product to the cart by SKU
  update      Change a cart line's quantity (0 removes it)
  remove      Remove a cart line by item id or SKU
  coupon      Apply or clear a coupon code
  totals      Show server-computed cart totals
  categories  Show the category tree
  products    List products in a category
  product     Show a product by SKU
  orders      Show the signed-in customer's order history
  register    Create a new customer account
  profile     Show or update the signed-in customer's profile
  passwd      Change the signed-in customer's password

Examples:
  storefront add -sku 24-MB01 -qty 2
  storefront login -email jane@example.com -password secret
  storefront cart

Run 'storefront <command> -h' for command-specific options.
`)
}

// newFlagSet creates a flag set with the flags every command shares.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.BoolVar(&quiet, "q", false, "Quiet mode - minimal output")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&asJSON, "json", false, "Output raw JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: storefront %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// openSession loads config, opens the state file, and restores the session.
func openSession(ctx context.Context) *session.Session {
	cfg, err := config.Load(ctx)
	if err != nil {
		fatal("Loading config: %v", err)
	}

	kv, err := storage.NewFile(cfg.StatePath)
	if err != nil {
		fatal("Opening state file: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	return session.New(cfg, kv, transport.NewClient(30*time.Second), logger)
}

// =============================================================================
// ACCOUNT COMMANDS
// =============================================================================

func runLogin(args []string) {
	fs := newFlagSet("login", "login -email EMAIL -password PASS")
	var email, password string
	fs.StringVar(&email, "email", "", "Customer email (required)")
	fs.StringVar(&password, "password", "", "Customer password (required)")
	fs.Parse(args)
	applyColorFlag()

	if email == "" || password == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	if err := sess.Login(ctx, email, password); err != nil {
		fatal("Login failed: %v", err)
	}

	p := sess.Profile()
	if p != nil {
		printSuccess("Signed in as %s %s <%s>", p.FirstName, p.LastName, p.Email)
	} else {
		printSuccess("Signed in as %s", email)
	}
	if n := sess.ItemCount(); n > 0 {
		printInfo("Cart has %d item(s)", n)
	}
}

func runLogout(args []string) {
	fs := newFlagSet("logout", "logout")
	fs.Parse(args)
	applyColorFlag()

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	sess.Logout(ctx)
	printSuccess("Signed out")
}

func runRegister(args []string) {
	fs := newFlagSet("register", "register -email EMAIL -password PASS -first NAME -last NAME")
	var email, password, first, last string
	fs.StringVar(&email, "email", "", "Email (required)")
	fs.StringVar(&password, "password", "", "Password (required)")
	fs.StringVar(&first, "first", "", "First name (required)")
	fs.StringVar(&last, "last", "", "Last name (required)")
	fs.Parse(args)
	applyColorFlag()

	if email == "" || password == "" || first == "" || last == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	p, err := sess.Register(ctx, magento.RegistrationInput{
		Email:     email,
		Password:  password,
		FirstName: first,
		LastName:  last,
	})
	if err != nil {
		fatal("Registration failed: %v", err)
	}
	printSuccess("Account created for %s", p.Email)
	printInfo("Run 'storefront login' to sign in")
}

func runProfile(args []string) {
	fs := newFlagSet("profile", "profile [-first NAME] [-last NAME]")
	var first, last string
	fs.StringVar(&first, "first", "", "New first name")
	fs.StringVar(&last, "last", "", "New last name")
	fs.Parse(args)
	applyColorFlag()

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	p := sess.Profile()
	if p == nil {
		fatal("Not signed in")
	}

	if first != "" || last != "" {
		updated := *p
		if first != "" {
			updated.FirstName = first
		}
		if last != "" {
			updated.LastName = last
		}
		var err error
		p, err = sess.UpdateProfile(ctx, &updated)
		if err != nil {
			fatal("Updating profile: %v", err)
		}
		printSuccess("Profile updated")
	}

	if asJSON {
		printJSON(p)
		return
	}
	fmt.Printf("  %-8s %s %s\n", "Name", p.FirstName, p.LastName)
	fmt.Printf("  %-8s %s\n", "Email", p.Email)
}

func runPasswd(args []string) {
	fs := newFlagSet("passwd", "passwd -current PASS -new PASS")
	var current, next string
	fs.StringVar(&current, "current", "", "Current password (required)")
	fs.StringVar(&next, "new", "", "New password (required)")
	fs.Parse(args)
	applyColorFlag()

	if current == "" || next == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	if err := sess.ChangePassword(ctx, current, next); err != nil {
		fatal("Changing password: %v", err)
	}
	printSuccess("Password changed")
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runCart(args []string) {
	fs := newFlagSet("cart", "cart")
	fs.Parse(args)
	applyColorFlag()

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	cart, err := sess.Cart(ctx)
	if err != nil {
		fatal("Fetching cart: %v", err)
	}
	printCart(cart)
}

func runAdd(args []string) {
	fs := newFlagSet("add", "add -sku SKU [-qty N]")
	var sku string
	var qty int
	fs.StringVar(&sku, "sku", "", "Product SKU (required)")
	fs.IntVar(&qty, "qty", 1, "Quantity")
	fs.Parse(args)
	applyColorFlag()

	if sku == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	cart, err := sess.AddItem(ctx, sku, qty)
	if err != nil {
		fatal("Adding item: %v", err)
	}
	printSuccess("Added %dx %s", qty, sku)
	printCart(cart)
}

func runUpdate(args []string) {
	fs := newFlagSet("update", "update -item REF -qty N")
	var item string
	var qty int
	fs.StringVar(&item, "item", "", "Item id or SKU (required)")
	fs.IntVar(&qty, "qty", -1, "New quantity; 0 removes the item (required)")
	fs.Parse(args)
	applyColorFlag()

	if item == "" || qty < 0 {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	cart, err := sess.UpdateItemQty(ctx, item, qty)
	if err != nil {
		fatal("Updating item: %v", err)
	}
	printSuccess("Updated %s", item)
	printCart(cart)
}

func runRemove(args []string) {
	fs := newFlagSet("remove", "remove -item REF")
	var item string
	fs.StringVar(&item, "item", "", "Item id or SKU (required)")
	fs.Parse(args)
	applyColorFlag()

	if item == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	cart, err := sess.RemoveItem(ctx, item)
	if err != nil {
		fatal("Removing item: %v", err)
	}
	printSuccess("Removed %s", item)
	printCart(cart)
}

func runCoupon(args []string) {
	fs := newFlagSet("coupon", "coupon -code CODE | -clear")
	var code string
	var clear bool
	fs.StringVar(&code, "code", "", "Coupon code")
	fs.BoolVar(&clear, "clear", false, "Remove the applied coupon")
	fs.Parse(args)
	applyColorFlag()

	if code == "" && !clear {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	var cart *model.Cart
	var err error
	if clear {
		cart, err = sess.RemoveCoupon(ctx)
	} else {
		cart, err = sess.ApplyCoupon(ctx, code)
	}
	if err != nil {
		fatal("Coupon: %v", err)
	}
	if clear {
		printSuccess("Coupon removed")
	} else {
		printSuccess("Coupon %s applied", code)
	}
	printCart(cart)
}

func runTotals(args []string) {
	fs := newFlagSet("totals", "totals")
	fs.Parse(args)
	applyColorFlag()

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	totals, err := sess.Totals(ctx)
	if err != nil {
		fatal("Fetching totals: %v", err)
	}

	if asJSON {
		printJSON(totals)
		return
	}
	fmt.Printf("%sTotals%s\n", colorBold, colorReset)
	printAmount("Subtotal", totals.Subtotal, totals.Currency)
	if totals.DiscountAmount != 0 {
		printAmount("Discount", totals.DiscountAmount, totals.Currency)
	}
	if totals.CouponCode != "" {
		fmt.Printf("  %-12s %s%s%s\n", "Coupon", colorCyan, totals.CouponCode, colorReset)
	}
	printAmount("Tax", totals.TaxAmount, totals.Currency)
	printAmount("Grand total", totals.GrandTotal, totals.Currency)
}

// =============================================================================
// CATALOG COMMANDS
// =============================================================================

func runCategories(args []string) {
	fs := newFlagSet("categories", "categories")
	fs.Parse(args)
	applyColorFlag()

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	tree, err := sess.Catalog().CategoryTree(ctx)
	if err != nil {
		fatal("Fetching categories: %v", err)
	}
	if asJSON {
		printJSON(tree)
		return
	}
	printCategory(tree, 0)
}

func runProducts(args []string) {
	fs := newFlagSet("products", "products -category ID [-page N] [-size N]")
	var categoryID, page, size int
	fs.IntVar(&categoryID, "category", 0, "Category id (required)")
	fs.IntVar(&page, "page", 1, "Page number")
	fs.IntVar(&size, "size", 20, "Page size")
	fs.Parse(args)
	applyColorFlag()

	if categoryID == 0 {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	list, err := sess.Catalog().ProductsByCategory(ctx, categoryID, page, size)
	if err != nil {
		fatal("Fetching products: %v", err)
	}
	if asJSON {
		printJSON(list)
		return
	}
	for _, p := range list.Items {
		fmt.Printf("  %s%-20s%s %-40s %.2f\n", colorCyan, p.SKU, colorReset, p.Name, p.Price)
	}
	printInfo("%d of %d product(s), page %d", len(list.Items), list.TotalCount, page)
}

func runProduct(args []string) {
	fs := newFlagSet("product", "product -sku SKU")
	var sku string
	fs.StringVar(&sku, "sku", "", "Product SKU (required)")
	fs.Parse(args)
	applyColorFlag()

	if sku == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	p, err := sess.Catalog().Product(ctx, sku)
	if err != nil {
		fatal("Fetching product: %v", err)
	}
	if asJSON {
		printJSON(p)
		return
	}
	fmt.Printf("%s%s%s\n", colorBold, p.Name, colorReset)
	fmt.Printf("  %-8s %s\n", "SKU", p.SKU)
	fmt.Printf("  %-8s %.2f\n", "Price", p.Price)
	if p.Status != 0 {
		fmt.Printf("  %-8s %d\n", "Status", p.Status)
	}
}

func runOrders(args []string) {
	fs := newFlagSet("orders", "orders")
	fs.Parse(args)
	applyColorFlag()

	ctx := context.Background()
	sess := openSession(ctx)
	defer sess.Close()

	orders, err := sess.Orders(ctx)
	if err != nil {
		fatal("Fetching orders: %v", err)
	}
	if asJSON {
		printJSON(orders)
		return
	}
	if len(orders) == 0 {
		printInfo("No orders yet")
		return
	}
	for _, o := range orders {
		fmt.Printf("  %s#%s%s  %-12s %10.2f  %s\n",
			colorCyan, o.IncrementID, colorReset, o.Status, o.GrandTotal, o.CreatedAt)
	}
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func applyColorFlag() {
	if noColor {
		disableColors()
	}
}

func printCart(c *model.Cart) {
	if asJSON {
		printJSON(c)
		return
	}
	if quiet {
		return
	}
	if c == nil || len(c.Items) == 0 {
		printInfo("Cart is empty")
		return
	}
	fmt.Printf("%sCart%s\n", colorBold, colorReset)
	for _, item := range c.Items {
		fmt.Printf("  %s%-20s%s %-30s x%-3d %8.2f\n",
			colorCyan, item.SKU, colorReset, item.Name, item.Qty, item.Price)
	}
	if c.Totals != nil {
		printAmount("Grand total", c.Totals.GrandTotal, c.Totals.Currency)
	}
}

func printCategory(c *magento.Category, depth int) {
	if c == nil {
		return
	}
	if depth > 0 {
		fmt.Printf("%*s%s%d%s %s\n", depth*2, "", colorGray, c.ID, colorReset, c.Name)
	}
	for i := range c.Children {
		printCategory(&c.Children[i], depth+1)
	}
}

func printAmount(label string, amount float64, currency string) {
	fmt.Printf("  %-12s %s%.2f %s%s\n", label, colorBold, amount, currency, colorReset)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("Encoding JSON: %v", err)
	}
	fmt.Println(string(data))
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
