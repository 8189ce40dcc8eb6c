package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/CloudNativeWorks/sak-client/internal/config"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const defaultBreakerFailures = 5

// Writer is the "write raw data" collaborator timed sends go through
type Writer interface {
	WriteRawData(text string, format TextFormat) error
}

// DialFunc opens a new connection
type DialFunc func(ctx context.Context) (Conn, error)

// Option customizes a Client
type Option func(*Client)

// WithDialer replaces the URL based dialer
func WithDialer(dial DialFunc) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

// Stats counts traffic written through a Client
type Stats struct {
	Packets uint64
	Bytes   uint64
	Errors  uint64
}

// Client encodes text and writes it to a lazily dialed connection.
// Writes pass a rate limiter and a circuit breaker; a failed write drops
// the connection so the next one redials.
type Client struct {
	cfg     config.TransportConfig
	log     *logger.Logger
	dial    DialFunc
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	mu   sync.Mutex
	conn Conn

	packets atomic.Uint64
	bytes   atomic.Uint64
	errors  atomic.Uint64
}

// NewClient creates a transport client for cfg.URL
func NewClient(cfg config.TransportConfig, log *logger.Logger, opts ...Option) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}

	c := &Client{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(limit, burst),
	}
	c.dial = func(ctx context.Context) (Conn, error) {
		return Dial(ctx, cfg.URL, cfg.DialTimeout)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "transport-breaker",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logger.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WriteRawData encodes text with format and writes it to the connection
func (c *Client) WriteRawData(text string, format TextFormat) error {
	data, err := Encode(text, format)
	if err != nil {
		c.errors.Add(1)
		return fmt.Errorf("failed to encode %s data: %w", format, err)
	}
	if len(data) == 0 {
		return nil
	}

	ctx := context.Background()
	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.errors.Add(1)
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	_, err = c.breaker.Execute(func() (any, error) {
		return nil, c.write(ctx, data)
	})
	if err != nil {
		c.errors.Add(1)
		return fmt.Errorf("write to %s failed: %w", c.cfg.URL, err)
	}

	c.packets.Add(1)
	c.bytes.Add(uint64(len(data)))
	c.log.WithFields(logger.Fields{
		"bytes":  len(data),
		"format": format.String(),
	}).Debug("Raw data written")
	return nil
}

func (c *Client) write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			return err
		}
		c.log.WithFields(logger.Fields{"url": c.cfg.URL}).Info("Transport connected")
		c.conn = conn
	}

	if err := c.conn.Write(ctx, data); err != nil {
		c.log.WithError(err).Warn("Write failed, dropping connection")
		_ = c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Stats returns the traffic counters
func (c *Client) Stats() Stats {
	return Stats{
		Packets: c.packets.Load(),
		Bytes:   c.bytes.Load(),
		Errors:  c.errors.Load(),
	}
}

// BreakerState exposes the circuit breaker state for status output
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Close closes the current connection, if any
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
