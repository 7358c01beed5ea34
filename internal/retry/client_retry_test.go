package retry

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/broker/brokertest"
	"github.com/cycletrader/orchestrator/internal/models"
)

// scriptedBroker wraps brokertest.Fake and injects errors for the first N
// calls to Market before delegating to the fake.
type scriptedBroker struct {
	*brokertest.Fake
	callCount     int32
	failN         int
	errToReturn   error
}

func (s *scriptedBroker) Market(req broker.OrderRequest) ([]broker.Position, error) {
	n := atomic.AddInt32(&s.callCount, 1)
	if int(n) <= s.failN {
		return nil, s.errToReturn
	}
	return s.Fake.Market(req)
}

func makeClient(t *testing.T, br broker.Broker, cfg Config) (*Client, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := log.New(&buf, "", 0)
	return NewClient(br, l, cfg), &buf
}

func TestNewClient_ConfigSanitizationAndDefaults(t *testing.T) {
	fake := brokertest.New()
	var buf bytes.Buffer

	cfg := Config{MaxRetries: -1, InitialBackoff: 0, MaxBackoff: 0, Timeout: 0}
	c := NewClient(fake, nil, cfg)

	if c.broker == nil {
		t.Fatalf("expected broker to be set")
	}
	if c.logger == nil {
		t.Fatalf("expected logger to be non-nil (defaulted)")
	}
	if c.config.MaxRetries != DefaultConfig.MaxRetries {
		t.Fatalf("MaxRetries sanitized: got %d want %d", c.config.MaxRetries, DefaultConfig.MaxRetries)
	}
	if c.config.InitialBackoff != DefaultConfig.InitialBackoff {
		t.Fatalf("InitialBackoff sanitized: got %v want %v", c.config.InitialBackoff, DefaultConfig.InitialBackoff)
	}
	if c.config.BreakerMaxFailures != DefaultConfig.BreakerMaxFailures {
		t.Fatalf("BreakerMaxFailures sanitized: got %d want %d", c.config.BreakerMaxFailures, DefaultConfig.BreakerMaxFailures)
	}

	l := log.New(&buf, "", 0)
	c2 := NewClient(fake, l)
	if c2.logger != l {
		t.Fatalf("expected provided logger to be used")
	}
}

func TestCalculateNextBackoff_GeneralBehavior(t *testing.T) {
	cfg := Config{
		MaxRetries:     2,
		InitialBackoff: 4 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Timeout:        1 * time.Second,
	}
	c, _ := makeClient(t, brokertest.New(), cfg)

	next := c.calculateNextBackoff(4 * time.Millisecond)
	if next < 6*time.Millisecond || next >= 7500*time.Microsecond {
		t.Fatalf("unexpected next backoff: got %v, expected [6ms,7.5ms)", next)
	}

	next2 := c.calculateNextBackoff(8 * time.Millisecond)
	if next2 < 10*time.Millisecond || next2 >= 12500*time.Microsecond {
		t.Fatalf("unexpected capped next backoff: got %v, expected [10ms,12.5ms)", next2)
	}

	if got := c.calculateNextBackoff(0); got != 0 {
		t.Fatalf("zero backoff expected to remain zero, got %v", got)
	}
}

func TestMarket_SucceedsFirstAttempt(t *testing.T) {
	fake := brokertest.New()
	fake.SetSymbol("EURUSD", broker.SymbolInfo{Point: 0.00001, Bid: 1.1, Ask: 1.1002})
	sb := &scriptedBroker{Fake: fake}

	cfg := Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: 250 * time.Millisecond}
	c, buf := makeClient(t, sb, cfg)

	positions, err := c.Market(context.Background(), broker.OrderRequest{Side: models.Buy, Symbol: "EURUSD", Volume: 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if atomic.LoadInt32(&sb.callCount) != 1 {
		t.Fatalf("expected 1 broker call, got %d", sb.callCount)
	}
	if !strings.Contains(buf.String(), "Market attempt 1/") {
		t.Fatalf("expected log to contain attempt log, got: %s", buf.String())
	}
}

func TestMarket_RetriesOnTransientThenSucceeds(t *testing.T) {
	fake := brokertest.New()
	fake.SetSymbol("EURUSD", broker.SymbolInfo{Point: 0.00001, Bid: 1.1, Ask: 1.1002})
	sb := &scriptedBroker{Fake: fake, failN: 2, errToReturn: errors.New("timeout while placing order")}

	cfg := Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 3 * time.Millisecond, Timeout: 250 * time.Millisecond}
	c, _ := makeClient(t, sb, cfg)

	positions, err := c.Market(context.Background(), broker.OrderRequest{Side: models.Buy, Symbol: "EURUSD", Volume: 0.01})
	if err != nil {
		t.Fatalf("expected success after retries, got err: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position after retries, got %d", len(positions))
	}
	if atomic.LoadInt32(&sb.callCount) != 3 {
		t.Fatalf("expected 3 attempts, got %d", sb.callCount)
	}
}

func TestMarket_FailFastOnNonTransient(t *testing.T) {
	fake := brokertest.New()
	fake.SetSymbol("EURUSD", broker.SymbolInfo{Point: 0.00001})
	sb := &scriptedBroker{Fake: fake, failN: 100, errToReturn: errors.New("validation failed: unknown magic number")}

	cfg := Config{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Timeout: 200 * time.Millisecond}
	c, _ := makeClient(t, sb, cfg)

	_, err := c.Market(context.Background(), broker.OrderRequest{Side: models.Buy, Symbol: "EURUSD", Volume: 0.01})
	if err == nil {
		t.Fatalf("expected error on non-transient failure")
	}
	if atomic.LoadInt32(&sb.callCount) != 1 {
		t.Fatalf("expected only 1 attempt on non-transient error, got %d", sb.callCount)
	}
	if !strings.Contains(err.Error(), "failed after") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarket_ContextCanceled(t *testing.T) {
	fake := brokertest.New()
	sb := &scriptedBroker{Fake: fake}

	cfg := Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Timeout: time.Second}
	c, _ := makeClient(t, sb, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Market(ctx, broker.OrderRequest{Side: models.Buy, Symbol: "EURUSD", Volume: 0.01})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if !strings.Contains(err.Error(), "canceled") {
		t.Fatalf("expected 'canceled' in error, got: %v", err)
	}
	if atomic.LoadInt32(&sb.callCount) != 0 {
		t.Fatalf("expected 0 broker calls, got %d", sb.callCount)
	}
}

func TestMarket_TimeoutDuringBackoff(t *testing.T) {
	fake := brokertest.New()
	sb := &scriptedBroker{Fake: fake, failN: 100, errToReturn: errors.New("connection reset")}

	cfg := Config{MaxRetries: 10, InitialBackoff: 5 * time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: 2 * time.Millisecond}
	c, _ := makeClient(t, sb, cfg)

	_, err := c.Market(context.Background(), broker.OrderRequest{Side: models.Buy, Symbol: "EURUSD", Volume: 0.01})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout-related error, got: %v", err)
	}
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	fake := brokertest.New()
	sb := &scriptedBroker{Fake: fake, failN: 100, errToReturn: errors.New("validation failed: bad request")}

	cfg := Config{
		MaxRetries:         0,
		InitialBackoff:     time.Millisecond,
		MaxBackoff:         time.Millisecond,
		Timeout:            200 * time.Millisecond,
		BreakerMaxFailures: 2,
		BreakerOpenTimeout: time.Minute,
	}
	c, _ := makeClient(t, sb, cfg)

	for i := 0; i < 2; i++ {
		if _, err := c.Market(context.Background(), broker.OrderRequest{Side: models.Buy, Symbol: "EURUSD", Volume: 0.01}); err == nil {
			t.Fatalf("expected error on attempt %d", i)
		}
	}

	callsBeforeOpen := atomic.LoadInt32(&sb.callCount)
	if _, err := c.Market(context.Background(), broker.OrderRequest{Side: models.Buy, Symbol: "EURUSD", Volume: 0.01}); err == nil {
		t.Fatalf("expected breaker-open error")
	}
	if atomic.LoadInt32(&sb.callCount) != callsBeforeOpen {
		t.Fatalf("expected breaker to short-circuit without calling broker again, calls went from %d to %d", callsBeforeOpen, sb.callCount)
	}
}
