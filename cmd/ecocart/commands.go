package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"ecocart/internal/catalog"
	"ecocart/internal/kv"
	"ecocart/internal/observe"
	"ecocart/internal/prefs"
	"ecocart/internal/session"
	"ecocart/pkg/domain"
)

type command func(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int

var commands = map[string]command{
	"products":   productsCmd,
	"categories": categoriesCmd,
	"cart":       cartCmd,
	"login":      loginCmd,
	"logout":     logoutCmd,
	"register":   registerCmd,
	"whoami":     whoamiCmd,
	"theme":      themeCmd,
	"watch":      watchCmd,
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("ecocart "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// fail prints err the way a user should read it and returns exit code 1.
func fail(stderr io.Writer, err error) int {
	var v session.ValidationErrors
	if errors.As(err, &v) {
		for _, field := range []string{"username", "email", "password", "confirm"} {
			if msg, ok := v[field]; ok {
				fmt.Fprintf(stderr, "%s: %s\n", field, msg)
			}
		}
		return 1
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}

func productsCmd(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("products", stderr)
	q := fs.String("q", "", "free-text search")
	category := fs.String("category", "", "category id")
	minPrice := fs.String("min", "", "minimum price")
	maxPrice := fs.String("max", "", "maximum price")
	page := fs.String("page", "1", "page number")
	sortKey := fs.String("sort", string(catalog.SortRelevance), "relevance|price_asc|price_desc|newest")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	values := url.Values{}
	for key, v := range map[string]string{"q": *q, "category_id": *category, "min_price": *minPrice, "max_price": *maxPrice, "page": *page} {
		if v != "" {
			values.Set(key, v)
		}
	}
	ctl := catalog.NewController(a.catalog, nil, a.hub, "/products", a.opts...)
	if err := ctl.Load(ctx, values); err != nil {
		fmt.Fprintf(stderr, "error: %s\n", ctl.State().Err)
		return 1
	}
	if err := ctl.Update(ctx, catalog.SetSort(catalog.SortKey(*sortKey))); err != nil {
		return fail(stderr, err)
	}
	st := ctl.State()
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSTOCK\tIMAGE")
	for _, p := range st.Result.Items {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%d\t%s\n", p.ID, p.Name, p.Price, p.Stock, catalog.ResolveImageURL(a.catalog.BaseURL(), p.ImageURL))
	}
	_ = tw.Flush()
	fmt.Fprintf(stdout, "page %d of %d (%d results) %s\n", st.Result.Page, st.Result.TotalPages, st.Result.Total, st.Location)
	return 0
}

func categoriesCmd(ctx context.Context, a *app, _ []string, stdout, stderr io.Writer) int {
	cats, err := a.catalog.ListCategories(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	for _, c := range cats {
		fmt.Fprintf(stdout, "%d\t%s\n", c.ID, c.Name)
	}
	return 0
}

func cartCmd(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	ids := make([]int64, 0, 2)
	for _, raw := range args {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fmt.Fprintf(stderr, "invalid number %q\n", raw)
			return 2
		}
		ids = append(ids, n)
	}
	need := map[string]int{"list": 0, "add": 1, "set": 2, "remove": 1, "clear": 0, "checkout": 0}
	want, known := need[sub]
	if !known || len(ids) < want {
		fmt.Fprintf(stderr, "usage: ecocart cart list | add <id> [qty] | set <id> <qty> | remove <id> | clear | checkout\n")
		return 2
	}

	var err error
	switch sub {
	case "add":
		qty := 1
		if len(ids) > 1 {
			qty = int(ids[1])
		}
		var p domain.Product
		if p, err = a.catalog.GetProduct(ctx, ids[0]); err == nil {
			err = a.cart.Add(ctx, p, qty)
		}
	case "set":
		err = a.cart.SetQuantity(ctx, ids[0], int(ids[1]))
	case "remove":
		err = a.cart.Remove(ctx, ids[0])
	case "clear":
		err = a.cart.Clear(ctx)
	case "checkout":
		var order domain.Order
		if order, err = a.cart.Checkout(ctx); err == nil {
			fmt.Fprintf(stdout, "order placed: %d lines, total %.2f\n", len(order.Lines), order.Total)
			return 0
		}
	}
	if err != nil {
		return fail(stderr, err)
	}
	return printCart(ctx, a, stdout, stderr)
}

func printCart(ctx context.Context, a *app, stdout, stderr io.Writer) int {
	items, err := a.cart.Items(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "cart is empty")
		return 0
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE\tSUBTOTAL")
	var total float64
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.2f\t%.2f\n", it.Product.ID, it.Product.Name, it.Quantity, it.Product.Price, it.Subtotal())
		total += it.Subtotal()
	}
	_ = tw.Flush()
	fmt.Fprintf(stdout, "total %.2f\n", total)
	return 0
}

func loginCmd(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("login", stderr)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	resp, err := a.exchange.Commit(ctx, domain.Credentials{Email: *email, Password: *password})
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "signed in as %s (%s)\n", resp.User.Username, resp.User.Role)
	return 0
}

func logoutCmd(ctx context.Context, a *app, _ []string, stdout, stderr io.Writer) int {
	if err := a.exchange.Revoke(ctx); err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}
	fmt.Fprintln(stdout, "signed out")
	return 0
}

func registerCmd(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("register", stderr)
	username := fs.String("username", "", "display name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	confirm := fs.String("confirm", "", "repeat password")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := session.ValidateRegistration(*username, *email, *password, *confirm); err != nil {
		return fail(stderr, err)
	}
	out, err := a.catalog.Register(ctx, domain.Registration{Username: *username, Email: *email, Password: *password})
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "registered account %s; sign in with ecocart login\n", out.ID)
	return 0
}

func whoamiCmd(ctx context.Context, a *app, _ []string, stdout, stderr io.Writer) int {
	tok, ok, err := a.mirror.Token(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	if !ok || !a.mirror.Authenticated(ctx) {
		fmt.Fprintln(stdout, "not signed in")
		return 1
	}
	u, _, err := a.mirror.User(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	left := session.ExpiresIn(tok, time.Now()).Round(time.Second)
	fmt.Fprintf(stdout, "%s <%s> role=%s expires in %s\n", u.Username, u.Email, tok.Role, left)
	return 0
}

func themeCmd(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("theme", stderr)
	systemDark := fs.Bool("system-dark", false, "treat the system preference as dark")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		t, err := prefs.ParseTheme(fs.Arg(0))
		if err != nil {
			return fail(stderr, err)
		}
		if err := a.themes.Set(ctx, t); err != nil {
			return fail(stderr, err)
		}
	}
	fmt.Fprintln(stdout, a.themes.Preferred(ctx, *systemDark))
	return 0
}

func watchCmd(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("watch", stderr)
	interval := fs.Duration("interval", a.cfg.PollInterval, "poll interval")
	duration := fs.Duration("for", 0, "stop after this long (0 runs until interrupted)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}
	poller := observe.NewPoller(a.store, a.hub, *interval, a.opts...)
	defer poller.Close()
	poller.Watch(kv.KeyCart, observe.TopicCart)
	poller.Watch(kv.KeyAccessToken, observe.TopicSession)
	poller.Watch(kv.KeyTheme, observe.TopicTheme)

	unsubscribe := a.hub.Subscribe(func(e observe.Event) {
		if !e.External {
			return
		}
		switch e.Topic {
		case observe.TopicCart:
			n, err := a.cart.Count(ctx)
			total, _ := a.cart.Total(ctx)
			if err == nil {
				fmt.Fprintf(stdout, "cart changed: %d items, total %.2f\n", n, total)
			}
		case observe.TopicSession:
			fmt.Fprintf(stdout, "session changed: signed in=%t\n", a.mirror.Authenticated(ctx))
		case observe.TopicTheme:
			fmt.Fprintf(stdout, "theme changed: %s\n", a.themes.Preferred(ctx, false))
		}
	})
	defer unsubscribe()

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fail(stderr, err)
	}
	return 0
}
