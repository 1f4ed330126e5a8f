package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/atomic"

	"github.com/betsync/internal/api"
	"github.com/betsync/internal/cache"
	"github.com/betsync/internal/channel"
	"github.com/betsync/internal/client"
	"github.com/betsync/internal/config"
	"github.com/betsync/internal/ledger"
	"github.com/betsync/internal/storage"
	"github.com/betsync/internal/utils"
)

var version = "dev"

// Globals are flags shared by every command
type Globals struct {
	Config string `help:"YAML configuration file." short:"c" type:"path" default:"betsync.yaml"`
	Debug  bool   `help:"Log every HTTP attempt."`
}

// CLI is the top-level command structure for betsync
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version." short:"V"`
	Fetch   FetchCmd         `cmd:"" help:"Read an API endpoint through the response cache."`
	Health  HealthCmd        `cmd:"" help:"Check that the API answers its health endpoint."`
	Watch   WatchCmd         `cmd:"" help:"Stream push-channel events until interrupted."`
	Lineups LineupsCmd       `cmd:"" help:"Manage saved lineups."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("betsync"),
		kong.Description("Cached API reads, push-channel streaming and a lineup ledger."),
		kong.Vars{"version": version},
	)
	if err := kctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// load reads the configuration and applies command-line overrides
func (g *Globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.Debug {
		cfg.Debug = true
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newAPI wires client, response cache and façade. The cache sweeper runs
// until ctx is done.
func newAPI(ctx context.Context, cfg *config.Config) *api.API {
	retries := cfg.API.MaxRetries
	if retries == 0 {
		retries = client.NoRetries
	}

	var observer client.Observer = client.ObserverFunc(func(client.Attempt) {})
	if cfg.Debug {
		observer = client.LogObserver{}
	}

	c := client.New(client.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		MaxRetries: retries,
		BaseDelay:  cfg.API.RetryBaseDelay,
		Observer:   observer,
	})
	if cfg.Debug {
		log.Printf("API | %s | %d retries | %s timeout", cfg.API.BaseURL, c.MaxRetries(), cfg.API.Timeout)
	}

	responses := cache.New[[]byte](cache.Options{
		TTL:             cfg.Cache.TTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
		SingleFlight:    cfg.Cache.SingleFlight,
	})
	go responses.Start(ctx)

	return api.New(c, responses, api.WithDefaultTTL(cfg.Cache.TTL))
}

// openLedger opens the configured blob store and loads the ledger from it.
// The returned func releases the store.
func openLedger(ctx context.Context, cfg *config.Config) (*ledger.Ledger, func() error, error) {
	var store storage.BlobStore
	release := func() error { return nil }

	switch cfg.Ledger.Backend {
	case config.BackendSQLite:
		dbCfg := storage.DefaultConfig()
		dbCfg.Path = cfg.Ledger.Path
		db, err := storage.Open(dbCfg)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Ledger | sqlite store at %s", db.Path())
		store, release = db, db.Close
	case config.BackendFile:
		store = storage.NewFileStore(cfg.Ledger.Path)
	default:
		log.Println("WARNING | Ledger: memory backend, changes are lost on exit")
		store = storage.NewMemoryStore()
	}

	l, err := ledger.Open(ctx, store, ledger.WithStorageKey(cfg.Ledger.StorageKey))
	if err != nil {
		release()
		return nil, nil, err
	}
	return l, release, nil
}

// printJSON writes v to stdout, indented
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// uptime describes how long a connection made at since stayed up, or nothing
// when no connection was made
func uptime(since time.Time) string {
	if since.IsZero() {
		return ""
	}
	return " after " + utils.FormatDuration(time.Since(since))
}

// FetchCmd reads an endpoint through the façade and prints the envelope
type FetchCmd struct {
	Endpoint string            `arg:"" help:"API path, for example /api/predictions."`
	Param    map[string]string `help:"Query parameter as key=value (repeatable)." short:"p"`
	NoCache  bool              `help:"Bypass the response cache."`
	Repeat   int               `help:"Number of reads; later reads are served from the cache." default:"1"`
}

// Run executes the fetch command
func (f *FetchCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	a := newAPI(ctx, cfg)

	params := make(map[string]any, len(f.Param))
	for k, v := range f.Param {
		params[k] = v
	}
	var opts []api.ReadOption
	if f.NoCache {
		opts = append(opts, api.WithoutCache())
	}

	var env api.Envelope[json.RawMessage]
	for i := 0; i < max(f.Repeat, 1); i++ {
		env = api.Get[json.RawMessage](ctx, a, f.Endpoint, params, opts...)
		if err := printJSON(env); err != nil {
			return err
		}
	}

	if cfg.Debug {
		st := a.CacheStats()
		log.Printf("Cache | %d entries | %d hits | %d misses", st.Size, st.Hits, st.Misses)
	}
	if !env.Success {
		return fmt.Errorf("fetch %s: %s", f.Endpoint, env.Error)
	}
	return nil
}

// HealthCmd checks the API health endpoint
type HealthCmd struct{}

// Run executes the health command
func (h *HealthCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	if !newAPI(ctx, cfg).HealthCheck(ctx) {
		return fmt.Errorf("health: %s is not healthy", cfg.API.BaseURL)
	}
	fmt.Printf("%s is healthy\n", cfg.API.BaseURL)
	return nil
}

// WatchCmd connects to the push channel and prints events
type WatchCmd struct {
	URL  string   `arg:"" optional:"" help:"WebSocket URL (defaults to channel.url)."`
	Type []string `help:"Event type to print (repeatable)." short:"t"`
}

// Run executes the watch command
func (w *WatchCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	url := w.URL
	if url == "" {
		url = cfg.Channel.URL
	}
	if url == "" {
		return errors.New("watch: no URL given and channel.url is not set")
	}

	m := channel.New(channel.Config{
		ReconnectBase:        cfg.Channel.ReconnectBase,
		MaxReconnectAttempts: cfg.Channel.MaxReconnectAttempts,
		Dialer:               channel.WSDialer{Timeout: cfg.API.Timeout},
	})
	defer m.Close()

	failed := make(chan struct{})
	var once sync.Once
	connectedAt := atomic.NewTime(time.Time{})
	m.Subscribe(channel.EventFailed, func(json.RawMessage) {
		once.Do(func() { close(failed) })
	})
	m.Subscribe(channel.EventConnected, func(json.RawMessage) {
		connectedAt.Store(time.Now())
		log.Printf("Watch | connected to %s", url)
	})
	m.Subscribe(channel.EventDisconnected, func(payload json.RawMessage) {
		log.Printf("Watch | disconnected%s %s", uptime(connectedAt.Load()), payload)
	})
	m.Subscribe(channel.EventError, func(payload json.RawMessage) {
		log.Printf("WARNING | Watch: %s", payload)
	})
	for _, eventType := range w.Type {
		m.Subscribe(eventType, func(payload json.RawMessage) {
			fmt.Printf("%s %s\n", eventType, payload)
		})
	}

	ctx, stop := signalContext()
	defer stop()

	m.Connect(url)

	select {
	case <-ctx.Done():
		log.Println("Shutdown signal received | Stopping...")
		return nil
	case <-failed:
		st := m.Stats()
		return fmt.Errorf("watch: gave up on %s after %d reconnect attempts", url, st.MaxReconnectAttempts)
	}
}
