// Command shopper drives the storefront API from a terminal: it browses the
// catalog page by page and mutates a cart the way a storefront page would.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"storefront/internal/bridge"
	"storefront/internal/cartsession"
	"storefront/internal/client"
	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/filter"
	"storefront/internal/logging"
	"storefront/internal/pager"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: shopper [-api URL] [-cart ID] <command> [flags]

commands:
  browse   list products, following pages like an infinite scroll
  cart     print the current cart
  add      add one unit of a variant
  remove   remove a cart line
  update   set a line's quantity (0 removes)
  watch    print the cart badge every time the cart changes
`)
}

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	global := flag.NewFlagSet("shopper", flag.ExitOnError)
	api := global.String("api", envOr("STOREFRONT_API", "http://localhost"+cfg.HTTPAddr), "storefront API base URL")
	cartID := global.String("cart", os.Getenv("CART_ID"), "existing cart id")
	global.Usage = usage
	_ = global.Parse(os.Args[1:])
	if global.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	logger := logging.New("shopper", cfg.LogLevel)
	c, err := client.New(*api, 10*time.Second)
	if err != nil {
		logger.WithError(err).Fatal("init client")
	}
	if *cartID != "" {
		c.UseCart(*cartID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "browse":
		err = browse(ctx, c, logger, args)
	case "cart":
		err = printCart(ctx, c)
	case "add", "remove", "update":
		err = mutate(ctx, c, cmd, args)
	case "watch":
		err = watch(ctx, c, logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.WithError(err).Fatal(cmd)
	}
}

func browse(ctx context.Context, c *client.Client, logger logrus.FieldLogger, args []string) error {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	q := fs.String("q", "", "search text")
	minPrice := fs.String("min", "", "minimum price")
	maxPrice := fs.String("max", "", "maximum price")
	brands := fs.String("brands", "", "comma separated vendors")
	category := fs.String("category", "", "collection handle")
	tag := fs.String("tag", "", "product tag")
	sortSlug := fs.String("sort", "", "sort slug (trending-desc, latest-desc, price-asc, price-desc)")
	pages := fs.Int("pages", 0, "stop after this many pages (0 = all)")
	_ = fs.Parse(args)

	set := filter.Set{
		SearchValue: *q,
		MinPrice:    *minPrice,
		MaxPrice:    *maxPrice,
		Category:    *category,
		Tag:         *tag,
	}
	for _, b := range strings.Split(*brands, ",") {
		if b = strings.TrimSpace(b); b != "" {
			set.Brands = append(set.Brands, b)
		}
	}
	params := filter.Values(set)
	if *sortSlug != "" {
		params.Set(filter.ParamSort, *sortSlug)
	}

	p := pager.New(c, logger)
	defer p.Close()
	if err := p.Load(ctx, params); err != nil {
		return err
	}

	trigger := pager.NewTrigger(p)
	loaded := 1
	for p.HasNext() && (*pages == 0 || loaded < *pages) {
		before := len(p.Snapshot().Products)
		trigger.Visible(ctx)
		trigger.Wait()
		if len(p.Snapshot().Products) == before && p.HasNext() {
			return fmt.Errorf("next page did not load")
		}
		loaded++
	}

	state := p.Snapshot()
	fmt.Printf("%d products (%s)\n", len(state.Products), describe(params))
	for _, prod := range state.Products {
		fmt.Printf("  %-28s %-14s %s\n", prod.Title, prod.Vendor, formatRange(prod.PriceRange))
		for _, v := range prod.Variants {
			mark := ""
			if !v.AvailableForSale {
				mark = " (sold out)"
			}
			fmt.Printf("      %s  %s %s%s\n", v.ID, v.Title, formatMoney(v.Price), mark)
		}
	}
	return nil
}

func printCart(ctx context.Context, c *client.Client) error {
	cart, err := c.Cart(ctx)
	if err != nil {
		return err
	}
	if cart == nil {
		fmt.Println("no cart")
		return nil
	}
	fmt.Printf("cart %s: %d items\n", cart.ID, cart.TotalQuantity)
	for _, l := range cart.Lines {
		fmt.Printf("  %s  %dx %s / %s  %s\n", l.ID, l.Quantity, l.Merchandise.ProductTitle, l.Merchandise.VariantTitle, formatMoney(l.Cost.Total))
	}
	fmt.Printf("subtotal %s  tax %s  total %s\n", formatMoney(cart.Cost.Subtotal), formatMoney(cart.Cost.Tax), formatMoney(cart.Cost.Total))
	return nil
}

func mutate(ctx context.Context, c *client.Client, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	variant := fs.String("variant", "", "variant id")
	line := fs.String("line", "", "cart line id")
	qty := fs.Int("qty", 1, "quantity")
	_ = fs.Parse(args)

	badge := bridge.NewCartBadge(c, bridge.Default, nil)
	badge.Mount(ctx)
	defer badge.Unmount()
	select {
	case <-badge.Changed():
	default:
	}

	action := bridge.NewAction(bridge.Default)
	res := action.Run(func() cartsession.Result {
		switch cmd {
		case "add":
			return c.AddItem(ctx, *variant)
		case "remove":
			return c.RemoveItem(ctx, *line)
		default:
			return c.UpdateQuantity(ctx, *line, *variant, *qty)
		}
	})
	if !res.OK() {
		return fmt.Errorf("%s", res.Message)
	}

	select {
	case <-badge.Changed():
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
	}
	fmt.Printf("%s ok, cart %s now holds %d items\n", cmd, c.CartID(), badge.Quantity())
	return nil
}

// watch mirrors server-side cart events into the local signal so the badge
// re-reads the cart whenever any shopper session changes it.
func watch(ctx context.Context, c *client.Client, logger logrus.FieldLogger) error {
	sig := bridge.NewSignal()
	badge := bridge.NewCartBadge(c, sig, logger)
	badge.Mount(ctx)
	defer badge.Unmount()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-badge.Changed():
				fmt.Printf("%s cart items: %d\n", time.Now().Format(time.Kitchen), badge.Quantity())
			}
		}
	}()

	for ctx.Err() == nil {
		err := c.Events(ctx, func(event string) {
			if event == bridge.EventCartChanged {
				sig.Deliver()
			}
		})
		if err != nil {
			logger.WithError(err).Warn("event stream dropped, reconnecting")
		}
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}

func describe(params url.Values) string {
	if len(params) == 0 {
		return "no filters"
	}
	return params.Encode()
}

func formatRange(r domain.PriceRange) string {
	if r.Min.Amount.Equal(r.Max.Amount) {
		return formatMoney(r.Min)
	}
	return formatMoney(r.Min) + " - " + formatMoney(r.Max)
}

func formatMoney(m domain.Money) string {
	return m.Amount.StringFixed(2) + " " + m.CurrencyCode
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
