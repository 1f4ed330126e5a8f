// Package api is the cached façade over the product HTTP API. Reads are
// served from the TTL cache when possible, writes invalidate the mutated
// resource, and every call returns an Envelope instead of an error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/betsync/internal/cache"
	"github.com/betsync/internal/client"
)

// DefaultCacheTTL is the freshness window for cached reads
const DefaultCacheTTL = 5 * time.Minute

// Envelope is the uniform result of every façade call
type Envelope[T any] struct {
	Success    bool      `json:"success"`
	Data       T         `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
	StatusCode int       `json:"status,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Cached     bool      `json:"cached,omitempty"`
}

// API composes the resilient client with a response cache
type API struct {
	client *client.Client
	cache  *cache.Cache[[]byte]
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

// Option configures an API
type Option func(*API)

// WithDefaultTTL overrides DefaultCacheTTL
func WithDefaultTTL(ttl time.Duration) Option {
	return func(a *API) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for failed calls
func WithLogger(l *log.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithNow overrides the envelope timestamp source
func WithNow(now func() time.Time) Option {
	return func(a *API) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates the façade
func New(c *client.Client, responses *cache.Cache[[]byte], opts ...Option) *API {
	a := &API{
		client: c,
		cache:  responses,
		ttl:    DefaultCacheTTL,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ReadOption tunes a single read
type ReadOption func(*readOptions)

type readOptions struct {
	cache bool
	ttl   time.Duration
}

// WithoutCache bypasses the cache for both lookup and write-through
func WithoutCache() ReadOption {
	return func(o *readOptions) { o.cache = false }
}

// WithCacheTTL sets the TTL used when the response is cached
func WithCacheTTL(ttl time.Duration) ReadOption {
	return func(o *readOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// Get reads endpoint with params. A fresh cached response is returned without
// touching the network and is marked Cached. Otherwise the response is
// fetched, decoded into T and, if caching is enabled, written to the cache.
func Get[T any](ctx context.Context, a *API, endpoint string, params map[string]any, opts ...ReadOption) Envelope[T] {
	ro := readOptions{cache: true, ttl: a.ttl}
	for _, opt := range opts {
		opt(&ro)
	}

	path := endpoint + encodeQuery(params)

	if !ro.cache {
		raw, err := a.client.Get(ctx, path)
		if err != nil {
			return fail[T](a, "GET", endpoint, err)
		}
		return decoded[T](a, endpoint, raw, false)
	}

	key := CacheKey(endpoint, params)
	raw, hit, err := a.cache.Fetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		raw, err := a.client.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		// Never cache a body that cannot be decoded.
		var sample T
		if err := json.Unmarshal(raw, &sample); err != nil {
			return nil, fmt.Errorf("decode %s: %w", endpoint, err)
		}
		return raw, nil
	}, ro.ttl)
	if err != nil {
		return fail[T](a, "GET", endpoint, err)
	}
	return decoded[T](a, endpoint, raw, hit)
}

// Post sends body to endpoint and invalidates the endpoint's resource
func Post[T any](ctx context.Context, a *API, endpoint string, body any) Envelope[T] {
	raw, err := a.client.Post(ctx, endpoint, body)
	return written[T](a, "POST", endpoint, raw, err)
}

// Put sends body to endpoint and invalidates the endpoint's resource
func Put[T any](ctx context.Context, a *API, endpoint string, body any) Envelope[T] {
	raw, err := a.client.Put(ctx, endpoint, body)
	return written[T](a, "PUT", endpoint, raw, err)
}

// Delete removes endpoint and invalidates the endpoint's resource
func Delete[T any](ctx context.Context, a *API, endpoint string) Envelope[T] {
	raw, err := a.client.Delete(ctx, endpoint)
	return written[T](a, "DELETE", endpoint, raw, err)
}

// written invalidates the mutated resource whatever the outcome: a failed or
// timed-out write may still have reached the server.
func written[T any](a *API, method, endpoint string, raw []byte, err error) Envelope[T] {
	a.InvalidateResource(endpoint)
	if err != nil {
		return fail[T](a, method, endpoint, err)
	}
	return decoded[T](a, endpoint, raw, false)
}

func decoded[T any](a *API, endpoint string, raw []byte, cached bool) Envelope[T] {
	var data T
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return fail[T](a, "DECODE", endpoint, fmt.Errorf("decode %s: %w", endpoint, err))
		}
	}
	return Envelope[T]{
		Success:   true,
		Data:      data,
		Timestamp: a.now(),
		Cached:    cached,
	}
}

func fail[T any](a *API, method, endpoint string, err error) Envelope[T] {
	a.logger.Printf("WARNING | API: %s %s failed: %v", method, endpoint, err)
	return Envelope[T]{
		Success:    false,
		Error:      err.Error(),
		StatusCode: client.StatusCode(err),
		Timestamp:  a.now(),
	}
}

// AbortAll cancels every request in flight
func (a *API) AbortAll() {
	a.client.AbortAll()
}

// ClearCache drops every cached response
func (a *API) ClearCache() {
	a.cache.Clear()
}

// CacheStats reports cache size, counters and keys
func (a *API) CacheStats() cache.Stats {
	return a.cache.Stats()
}

// InvalidateResource drops every cached read under endpoint's resource root
// and returns how many entries were removed
func (a *API) InvalidateResource(endpoint string) int {
	root := resourceRoot(endpoint)
	return a.cache.InvalidateFunc(func(key string) bool {
		ep := keyEndpoint(key)
		return ep == root || strings.HasPrefix(ep, root+"/")
	})
}

// resourceRoot returns the first path segment of endpoint, or the first two
// for endpoints namespaced under /api
func resourceRoot(endpoint string) string {
	path, _, _ := strings.Cut(endpoint, "?")
	segs := strings.SplitN(strings.Trim(path, "/"), "/", 3)
	n := 1
	if segs[0] == "api" && len(segs) > 1 {
		n = 2
	}
	return "/" + strings.Join(segs[:n], "/")
}

func encodeQuery(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	v := url.Values{}
	for k, val := range params {
		if val == nil {
			continue
		}
		rv := reflect.ValueOf(val)
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			for i := 0; i < rv.Len(); i++ {
				v.Add(k, fmt.Sprint(rv.Index(i).Interface()))
			}
			continue
		}
		v.Set(k, fmt.Sprint(val))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}
