// Package cache stores extraction results keyed by document and schema
// content. Every failure of the backing store degrades to a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/doc-extract/internal/model"
	"github.com/sells-group/doc-extract/internal/resilience"
)

// KeyPrefix namespaces every entry written by this package.
const KeyPrefix = "extract"

// Key builds the cache key for a label and the content hashes of the PDF and
// the extraction schema.
func Key(label, pdfHash, schemaHash string) string {
	return fmt.Sprintf("%s:%s:%s:%s", KeyPrefix, label, pdfHash, schemaHash)
}

// UnavailableError reports that the backing store could not serve an
// operation. Client never returns it from Get or Set; it is logged and the
// operation is treated as a miss or a no-op.
type UnavailableError struct {
	Op  string
	Key string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache unavailable: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache unavailable: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Client reads and writes ExtractionResults through a Store.
type Client struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.Breaker
}

// New creates a Client. ttl is the default entry lifetime; zero disables
// expiry. breaker may be nil.
func New(store Store, ttl time.Duration, breaker *resilience.Breaker) *Client {
	if ttl < 0 {
		ttl = 0
	}
	return &Client{store: store, ttl: ttl, breaker: breaker}
}

// TTL returns the default entry lifetime.
func (c *Client) TTL() time.Duration { return c.ttl }

// Get returns the cached result for key. Any failure, including an entry
// that does not decode, is reported as a miss.
func (c *Client) Get(ctx context.Context, key string) (*model.ExtractionResult, bool) {
	raw, err := c.get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.warn(&UnavailableError{Op: "get", Key: key, Err: err})
		}
		return nil, false
	}

	var result model.ExtractionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		zap.L().Warn("cache: discarding undecodable entry",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, false
	}
	return &result, true
}

// Set stores result under key with the default TTL.
func (c *Client) Set(ctx context.Context, key string, result *model.ExtractionResult) {
	c.SetWithTTL(ctx, key, result, c.ttl)
}

// SetWithTTL stores result under key. A zero ttl stores without expiry.
// Failures are logged and otherwise ignored.
func (c *Client) SetWithTTL(ctx context.Context, key string, result *model.ExtractionResult, ttl time.Duration) {
	if result == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		zap.L().Warn("cache: encode result", zap.String("key", key), zap.Error(err))
		return
	}
	if ttl < 0 {
		ttl = 0
	}

	err = c.do(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, key, raw, ttl)
	})
	if err != nil {
		c.warn(&UnavailableError{Op: "set", Key: key, Err: err})
	}
}

// Ping checks the backing store. Unlike Get and Set it returns the failure,
// wrapped in an UnavailableError, for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return &UnavailableError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the backing store.
func (c *Client) Close() error {
	return c.store.Close()
}

func (c *Client) get(ctx context.Context, key string) ([]byte, error) {
	if c.breaker == nil {
		return c.store.Get(ctx, key)
	}

	// A miss is a healthy answer and must not count against the breaker.
	miss := false
	raw, err := resilience.DoVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		raw, err := c.store.Get(ctx, key)
		if errors.Is(err, ErrMiss) {
			miss = true
			return nil, nil
		}
		return raw, err
	})
	if miss {
		return nil, ErrMiss
	}
	return raw, err
}

func (c *Client) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Do(ctx, fn)
}

func (c *Client) warn(err *UnavailableError) {
	zap.L().Warn("cache: store unavailable, continuing without cache",
		zap.String("op", err.Op),
		zap.String("key", err.Key),
		zap.Bool("transient", resilience.IsTransient(err.Err)),
		zap.Error(err.Err),
	)
}
