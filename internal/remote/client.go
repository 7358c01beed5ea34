// Package remote is the Remote Store Client (spec §4.3): an authenticated
// CRUD + event-subscription client against the remote document store that
// mirrors the Local Store's cycles, orders, bots, and accounts.
package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Collection names the remote store actually exposes (spec §4.3 + §3's
// per-strategy-family cycle tables).
const (
	CollectionUsers                  = "users"
	CollectionAccounts                = "accounts"
	CollectionBots                    = "bots"
	CollectionStrategies               = "strategies"
	CollectionSymbols                  = "symbols"
	CollectionEvents                   = "events"
	CollectionAdaptiveHedgeCycles       = "adaptive_hedge_cycles"
	CollectionCyclesTraderCycles        = "cycles_trader_cycles"
	CollectionAdvancedCyclesTraderCycles = "advanced_cycles_trader_cycles"
	CollectionMoveGuardCycles           = "moveguard_cycles"
	CollectionGlobalLossTracker         = "global_loss_tracker"
	CollectionTerminalLogs              = "terminal_logs"
)

// Record is the generic shape of a remote-store document: whatever fields
// the collection defines, plus the id PocketBase-style stores assign.
type Record map[string]any

// Client is an authenticated CRUD client against the remote document
// store, modeled as a PocketBase-compatible REST API (collections of
// records under /api/collections/{name}/records).
type Client struct {
	http           *resty.Client
	authCollection string

	mu             sync.RWMutex
	token          string
	tokenExpiresAt time.Time
}

// NewClient builds a Client against baseURL. authCollection names the
// collection used for password authentication (spec §4.3 default "users").
func NewClient(baseURL, authCollection string, timeout time.Duration) *Client {
	if authCollection == "" {
		authCollection = CollectionUsers
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		authCollection: authCollection,
	}
}

// APIError is returned for any non-2xx remote-store response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote store: status %d: %s", e.Status, e.Body)
}

// Authenticate obtains a session token via password auth and marks it due
// for refresh a fixed seven days later (spec §4.3: "refresh the session
// token once per long interval, ≈7 days, or on demand"); the configured
// remote token_refresh value is not used.
func (c *Client) Authenticate(ctx context.Context, identity, password string) error {
	var result struct {
		Token  string `json:"token"`
		Record Record `json:"record"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"identity": identity, "password": password}).
		SetResult(&result).
		Post(fmt.Sprintf("/api/collections/%s/auth-with-password", c.authCollection))
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}

	c.mu.Lock()
	c.token = result.Token
	c.tokenExpiresAt = time.Now().Add(7 * 24 * time.Hour)
	c.mu.Unlock()
	return nil
}

// RefreshToken re-authenticates the current session without re-sending
// credentials, used by the Account Supervisor's token-refresh task.
func (c *Client) RefreshToken(ctx context.Context) error {
	var result struct {
		Token string `json:"token"`
	}
	resp, err := c.authenticatedRequest(ctx).
		SetResult(&result).
		Post(fmt.Sprintf("/api/collections/%s/auth-refresh", c.authCollection))
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}

	c.mu.Lock()
	c.token = result.Token
	c.tokenExpiresAt = time.Now().Add(7 * 24 * time.Hour)
	c.mu.Unlock()
	return nil
}

// TokenExpiresAt reports when the current token should be refreshed.
func (c *Client) TokenExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokenExpiresAt
}

// Token returns the current session token, for callers (the events
// Subscriber) that must authenticate a separate connection with it.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) authenticatedRequest(ctx context.Context) *resty.Request {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetHeader("Authorization", token)
	}
	return req
}

// Create inserts record into collection and returns the stored record
// (including its assigned id).
func (c *Client) Create(ctx context.Context, collection string, record Record) (Record, error) {
	var result Record
	resp, err := c.authenticatedRequest(ctx).
		SetBody(Serialize(record)).
		SetResult(&result).
		Post(fmt.Sprintf("/api/collections/%s/records", collection))
	if err != nil {
		return nil, fmt.Errorf("creating %s record: %w", collection, err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return result, nil
}

// Update applies patch to the record identified by id in collection.
func (c *Client) Update(ctx context.Context, collection, id string, patch Record) (Record, error) {
	var result Record
	resp, err := c.authenticatedRequest(ctx).
		SetBody(Serialize(patch)).
		SetResult(&result).
		Patch(fmt.Sprintf("/api/collections/%s/records/%s", collection, id))
	if err != nil {
		return nil, fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return result, nil
}

// Get fetches one record by id.
func (c *Client) Get(ctx context.Context, collection, id string) (Record, error) {
	var result Record
	resp, err := c.authenticatedRequest(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/api/collections/%s/records/%s", collection, id))
	if err != nil {
		return nil, fmt.Errorf("fetching %s/%s: %w", collection, id, err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return result, nil
}

// List returns every record in collection matching filter (spec §4.3's
// simple predicate string, e.g. `bot_id = 'abc' && is_closed = false`).
// The filter syntax is passed through verbatim; callers see exactly what
// the remote store exposes.
func (c *Client) List(ctx context.Context, collection, filter string) ([]Record, error) {
	var result struct {
		Items []Record `json:"items"`
	}
	req := c.authenticatedRequest(ctx).SetResult(&result)
	if filter != "" {
		req.SetQueryParam("filter", filter)
	}
	resp, err := req.Get(fmt.Sprintf("/api/collections/%s/records", collection))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return result.Items, nil
}

// Delete removes the record identified by id from collection.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	resp, err := c.authenticatedRequest(ctx).
		Delete(fmt.Sprintf("/api/collections/%s/records/%s", collection, id))
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// UpsertSymbolPrice creates or updates the symbols collection record for
// (botID, symbol), returning its remote id — called once per second by the
// Account Supervisor's symbol price publisher task (spec §4.8 item 4:
// "read the bid and update the remote symbol record"; spec §3: "Created if
// missing on account init; mutated on each price poll").
//
// remoteID, if non-empty, is the id returned from a prior call and is
// updated directly. Otherwise the existing record is looked up by
// (bot_id, symbol) first, so a process restart doesn't spawn a duplicate
// row; only the first poll for a given bot ever creates one.
func (c *Client) UpsertSymbolPrice(ctx context.Context, remoteID, botID, symbol string, bid float64) (string, error) {
	if remoteID != "" {
		if _, err := c.Update(ctx, CollectionSymbols, remoteID, Record{"bid": bid}); err != nil {
			return "", err
		}
		return remoteID, nil
	}

	recs, err := c.List(ctx, CollectionSymbols, fmt.Sprintf("bot_id = '%s' && symbol = '%s'", botID, symbol))
	if err != nil {
		return "", err
	}
	if len(recs) > 0 {
		id, _ := recs[0]["id"].(string)
		if _, err := c.Update(ctx, CollectionSymbols, id, Record{"bid": bid}); err != nil {
			return "", err
		}
		return id, nil
	}

	rec, err := c.Create(ctx, CollectionSymbols, Record{
		"bot_id": botID,
		"symbol": symbol,
		"bid":    bid,
	})
	if err != nil {
		return "", err
	}
	id, _ := rec["id"].(string)
	return id, nil
}

// PushLog best-effort mirrors one log line to the terminal_logs
// collection. Failures are the caller's to drop silently (spec §7's
// transient-external handling; SPEC_FULL.md §5's log-mirroring feature).
func (c *Client) PushLog(ctx context.Context, botID, level, message string) error {
	_, err := c.Create(ctx, CollectionTerminalLogs, Record{
		"bot_id":  botID,
		"level":   level,
		"message": message,
	})
	return err
}

// UpdateBotStatus patches a bot's stopped flag and/or magic number.
func (c *Client) UpdateBotStatus(ctx context.Context, botID string, stopped bool, magic int64) (Record, error) {
	return c.Update(ctx, CollectionBots, botID, Record{
		"stopped": stopped,
		"magic":   magic,
	})
}
