// Package retry wraps broker.Broker operations with exponential backoff and
// a circuit breaker so a jammed terminal connection degrades gracefully
// instead of stalling every cycle that shares it.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cycletrader/orchestrator/internal/boterr"
	"github.com/cycletrader/orchestrator/internal/broker"
)

// Config contains retry configuration parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration

	// BreakerMaxFailures is the number of consecutive failures that trip the
	// circuit breaker open. Zero is replaced by the default of 5.
	BreakerMaxFailures uint32
	// BreakerOpenTimeout is how long the breaker stays open before probing
	// with a single half-open request.
	BreakerOpenTimeout time.Duration
}

// DefaultConfig provides sensible defaults for retry operations.
var DefaultConfig = Config{
	MaxRetries:         3,
	InitialBackoff:     1 * time.Second,
	MaxBackoff:         30 * time.Second,
	Timeout:            2 * time.Minute,
	BreakerMaxFailures: 5,
	BreakerOpenTimeout: 30 * time.Second,
}

// Client wraps a broker with retry logic and a circuit breaker.
type Client struct {
	broker  broker.Broker
	logger  *log.Logger
	config  Config
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a new retry client with the given broker and optional config.
func NewClient(b broker.Broker, logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if logger == nil {
		logger = log.Default()
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = DefaultConfig.BreakerMaxFailures
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = DefaultConfig.BreakerOpenTimeout
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "broker",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Client{
		broker:  b,
		logger:  logger,
		config:  cfg,
		breaker: breaker,
	}
}

// Market places a market order with retry + circuit-breaker protection.
func (c *Client) Market(ctx context.Context, req broker.OrderRequest) ([]broker.Position, error) {
	out, err := c.withRetry(ctx, "Market", func() (any, error) {
		return c.broker.Market(req)
	})
	if err != nil {
		return nil, err
	}
	positions, _ := out.([]broker.Position)
	return positions, nil
}

// Pending places a pending order with retry + circuit-breaker protection.
func (c *Client) Pending(ctx context.Context, req broker.OrderRequest) ([]broker.Position, error) {
	out, err := c.withRetry(ctx, "Pending", func() (any, error) {
		return c.broker.Pending(req)
	})
	if err != nil {
		return nil, err
	}
	positions, _ := out.([]broker.Position)
	return positions, nil
}

// ClosePosition closes an open position with retry + circuit-breaker protection.
func (c *Client) ClosePosition(ctx context.Context, pos broker.Position, slippagePoints float64) (*broker.Result, error) {
	out, err := c.withRetry(ctx, fmt.Sprintf("ClosePosition(%d)", pos.Ticket), func() (any, error) {
		return c.broker.ClosePosition(pos, slippagePoints)
	})
	if err != nil {
		return nil, err
	}
	res, _ := out.(*broker.Result)
	return res, nil
}

// CloseOrder cancels a pending order with retry + circuit-breaker protection.
func (c *Client) CloseOrder(ctx context.Context, ticket int64) (*broker.Result, error) {
	out, err := c.withRetry(ctx, fmt.Sprintf("CloseOrder(%d)", ticket), func() (any, error) {
		return c.broker.CloseOrder(ticket)
	})
	if err != nil {
		return nil, err
	}
	res, _ := out.(*broker.Result)
	return res, nil
}

// withRetry runs op through the circuit breaker, retrying transient
// failures with exponential backoff and jitter until maxRetries is
// exhausted or the operation times out.
func (c *Client) withRetry(ctx context.Context, opName string, op func() (any, error)) (any, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-opCtx.Done():
			return nil, fmt.Errorf("%s timed out after %v: %w", opName, c.config.Timeout, opCtx.Err())
		default:
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s canceled: %w", opName, ctx.Err())
		}

		c.logger.Printf("%s attempt %d/%d", opName, attempt+1, c.config.MaxRetries+1)

		result, err := c.breaker.Execute(func() (any, error) {
			return op()
		})
		if err == nil {
			c.logger.Printf("%s succeeded on attempt %d", opName, attempt+1)
			return result, nil
		}

		lastErr = err
		c.logger.Printf("%s attempt %d failed: %v", opName, attempt+1, err)

		if isBreakerOpen(err) {
			break
		}

		if boterr.IsTransient(err) && attempt < c.config.MaxRetries {
			c.logger.Printf("transient error detected, retrying %s in %v", opName, backoff)
			select {
			case <-time.After(backoff):
				backoff = c.calculateNextBackoff(backoff)
			case <-opCtx.Done():
				return nil, fmt.Errorf("%s timed out during backoff: %w", opName, opCtx.Err())
			case <-ctx.Done():
				return nil, fmt.Errorf("%s canceled during backoff: %w", opName, ctx.Err())
			}
		} else {
			break
		}
	}

	return nil, fmt.Errorf("%s failed after %d attempts: %w", opName, c.config.MaxRetries+1, lastErr)
}

func isBreakerOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.Printf("failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}
