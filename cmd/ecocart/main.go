// Command ecocart is the storefront client. It owns a local kv store the way
// a browser owns its storage: the cart, the mirrored session, and the theme
// live there and survive between invocations.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"ecocart/internal/cart"
	"ecocart/internal/catalog"
	"ecocart/internal/config"
	"ecocart/internal/core"
	"ecocart/internal/kv"
	"ecocart/internal/observe"
	"ecocart/internal/prefs"
	"ecocart/internal/session"
)

var exitFunc = os.Exit

// loadConfig is replaced in tests.
var loadConfig = func() (config.Config, error) { return config.Load() }

const usage = `usage: ecocart <command> [flags]

commands:
  products    list products (-q -category -min -max -page -sort)
  categories  list categories
  cart        list | add <id> [qty] | set <id> <qty> | remove <id> | clear | checkout
  login       -email -password
  logout
  register    -username -email -password -confirm
  whoami
  theme       [light|dark] [-system-dark]
  watch       print cart, session, and theme changes from any process
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	return run(context.Background(), args, stdout, stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer a.Close()
	return cmd(ctx, a, args[1:], stdout, stderr)
}

// app holds the stores every command works against.
type app struct {
	cfg      config.Config
	log      *logrus.Logger
	store    kv.Store
	hub      *observe.Hub
	opts     []core.Option
	catalog  *catalog.Client
	cart     *cart.Store
	mirror   *session.Mirror
	exchange *session.Exchange
	themes   *prefs.Themes
}

func newApp(ctx context.Context, cfg config.Config, stderr io.Writer) (*app, error) {
	log := core.NewJSONLogrus(stderr, cfg.LogLevel)
	opts := []core.Option{
		core.WithLogger(core.NewLogrusLogger(log)),
		core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")),
	}
	if cfg.EnableTracing {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(stderr)))
	}
	raw, err := kv.Open(ctx, cfg.KV)
	if err != nil {
		return nil, err
	}
	store := kv.Observe(raw, opts...)
	hub := observe.NewHub()
	jar, _ := cookiejar.New(nil)
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout, Jar: jar}
	mirror := session.NewMirror(store, hub, opts...)
	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		hub:      hub,
		opts:     opts,
		catalog:  catalog.NewClient(cfg.APIBaseURL, httpClient, opts...),
		cart:     cart.NewStore(store, hub, opts...),
		mirror:   mirror,
		exchange: session.NewExchange(cfg.StorefrontURL, httpClient, mirror, opts...),
		themes:   prefs.NewThemes(store, hub, opts...),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("close kv store")
	}
}
