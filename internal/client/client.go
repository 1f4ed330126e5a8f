// Package client is a JSON/HTTP client that bounds every attempt with a
// timeout and retries transient failures with exponential backoff.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Config configures a Client. Zero values fall back to the defaults.
type Config struct {
	// BaseURL is prepended to relative request paths
	BaseURL string

	// Timeout bounds each individual attempt
	Timeout time.Duration

	// MaxRetries is the retry budget used by Get/Post/Put/Delete.
	// Use NoRetries to disable retries entirely.
	MaxRetries int

	// BaseDelay is the wait before the first retry; it doubles per retry
	BaseDelay time.Duration

	// HTTPClient performs the requests (a pooled client when nil)
	HTTPClient *http.Client

	// Observer receives every attempt (logs via the standard logger when nil)
	Observer Observer

	// Clock drives backoff waits (mclock.System when nil)
	Clock mclock.Clock
}

// NoRetries disables retries when used as Config.MaxRetries
const NoRetries = -1

// Client performs JSON requests with per-attempt timeouts and retries
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	observer   Observer
	clock      mclock.Clock

	mu       sync.Mutex
	inflight map[uint64]context.CancelCauseFunc
	nextID   uint64
}

// New creates a Client from cfg
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch {
	case cfg.MaxRetries == NoRetries:
		cfg.MaxRetries = 0
	case cfg.MaxRetries <= 0:
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.HTTPClient == nil {
		// Attempt deadlines come from the request context, not Client.Timeout.
		cfg.HTTPClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		}
	}
	if cfg.Observer == nil {
		cfg.Observer = LogObserver{Logger: log.Default()}
	}
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		observer:   cfg.Observer,
		clock:      cfg.Clock,
		inflight:   make(map[uint64]context.CancelCauseFunc),
	}
}

// MaxRetries returns the default retry budget
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// Get performs a GET request with the default retry budget
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, nil, c.maxRetries)
}

// Post performs a POST request with a JSON body
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, path, body, c.maxRetries)
}

// Put performs a PUT request with a JSON body
func (c *Client) Put(ctx context.Context, path string, body any) ([]byte, error) {
	return c.Do(ctx, http.MethodPut, path, body, c.maxRetries)
}

// Delete performs a DELETE request
func (c *Client) Delete(ctx context.Context, path string) ([]byte, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, c.maxRetries)
}

// Do sends the request and retries transport failures and 5xx responses up to
// maxRetries times, waiting Backoff(base, n) before retry n. 4xx responses,
// caller cancellation and AbortAll end the call immediately. On exhaustion the
// last attempt's error is returned.
func (c *Client) Do(ctx context.Context, method, path string, body any, maxRetries int) ([]byte, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	url := c.resolve(path)

	callCtx, abort := context.WithCancelCause(ctx)
	id := c.track(abort)
	defer func() {
		c.untrack(id)
		abort(nil)
	}()

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if attempt > 1 {
			if err := c.wait(callCtx, Backoff(c.baseDelay, attempt-1)); err != nil {
				return nil, err
			}
		}

		data, err := c.attempt(callCtx, method, url, payload, attempt)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

// AbortAll cancels every call currently in flight. Calls that have already
// returned are unaffected.
func (c *Client) AbortAll() {
	c.mu.Lock()
	aborts := make([]context.CancelCauseFunc, 0, len(c.inflight))
	for id, abort := range c.inflight {
		aborts = append(aborts, abort)
		delete(c.inflight, id)
	}
	c.mu.Unlock()

	for _, abort := range aborts {
		abort(ErrAborted)
	}
}

// InFlight returns the number of calls currently outstanding
func (c *Client) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Backoff returns base × 2^(retry-1) for retry ≥ 1
func Backoff(base time.Duration, retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return base << (retry - 1)
}

func (c *Client) attempt(ctx context.Context, method, url string, payload []byte, n int) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	report := Attempt{Method: method, URL: url, Attempt: n}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = c.classify(ctx, attemptCtx, method, url, err)
		report.Duration = time.Since(start)
		report.Err = err
		c.observe(report)
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("WARNING | Client: close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	report.StatusCode = resp.StatusCode
	report.Duration = time.Since(start)
	if err != nil {
		err = c.classify(ctx, attemptCtx, method, url, err)
		report.Err = err
		c.observe(report)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = &StatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
		report.Err = err
		c.observe(report)
		return nil, err
	}

	c.observe(report)
	return data, nil
}

// classify maps a failed round trip to an abort, a caller cancellation or a
// retryable transport error
func (c *Client) classify(callCtx, attemptCtx context.Context, method, url string, err error) error {
	if callCtx.Err() != nil {
		return interrupted(callCtx)
	}
	return &TransportError{
		Method:  method,
		URL:     url,
		Timeout: errors.Is(attemptCtx.Err(), context.DeadlineExceeded),
		Err:     err,
	}
}

func interrupted(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), ErrAborted) {
		return ErrAborted
	}
	return ctx.Err()
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return interrupted(ctx)
	case <-c.clock.After(d):
		return nil
	}
}

func (c *Client) observe(a Attempt) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARNING | Client: observer panicked: %v", r)
		}
	}()
	c.observer.ObserveAttempt(a)
}

func (c *Client) track(abort context.CancelCauseFunc) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.inflight[c.nextID] = abort
	return c.nextID
}

func (c *Client) untrack(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}
