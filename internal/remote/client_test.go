package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/collections/users/auth-with-password", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok-1", "record": map[string]any{"id": "u1"}})
	})
	mux.HandleFunc("/api/collections/users/auth-refresh", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok-2"})
	})
	mux.HandleFunc("/api/collections/cycles_trader_cycles/records", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			body["id"] = "cyc-1"
			_ = json.NewEncoder(w).Encode(body)
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{"id": "cyc-1", "bot_id": "bot-1"}},
			})
		}
	})
	mux.HandleFunc("/api/collections/cycles_trader_cycles/records/cyc-1", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			body["id"] = "cyc-1"
			_ = json.NewEncoder(w).Encode(body)
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "cyc-1", "bot_id": "bot-1"})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", 5*time.Second)
	return srv, c
}

func TestClient_AuthenticateAndRefresh(t *testing.T) {
	_, c := newTestServer(t)

	require.NoError(t, c.Authenticate(context.Background(), "bot@example.com", "secret"))
	require.WithinDuration(t, time.Now().Add(7*24*time.Hour), c.TokenExpiresAt(), time.Minute)

	require.NoError(t, c.RefreshToken(context.Background()))
}

func TestClient_CreateGetUpdateListDelete(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()

	created, err := c.Create(ctx, CollectionCyclesTraderCycles, Record{"bot_id": "bot-1", "open_price": 1.1})
	require.NoError(t, err)
	require.Equal(t, "cyc-1", created["id"])

	got, err := c.Get(ctx, CollectionCyclesTraderCycles, "cyc-1")
	require.NoError(t, err)
	require.Equal(t, "bot-1", got["bot_id"])

	updated, err := c.Update(ctx, CollectionCyclesTraderCycles, "cyc-1", Record{"total_profit": 12.5})
	require.NoError(t, err)
	require.Equal(t, "cyc-1", updated["id"])

	list, err := c.List(ctx, CollectionCyclesTraderCycles, "bot_id = 'bot-1'")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.Delete(ctx, CollectionCyclesTraderCycles, "cyc-1"))
}

func TestClient_ErrorResponseBecomesAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/collections/bots/records/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.Get(context.Background(), CollectionBots, "missing")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}
