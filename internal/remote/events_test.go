package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestEventsURL_DerivesWebsocketScheme(t *testing.T) {
	u, err := EventsURL("https://store.example.com/api")
	require.NoError(t, err)
	require.Equal(t, "wss://store.example.com/api/api/realtime/events", u)
}

func TestEventsURL_RejectsUnsupportedScheme(t *testing.T) {
	_, err := EventsURL("ftp://store.example.com")
	require.Error(t, err)
}

func TestSubscriber_DeliversDecodedEvents(t *testing.T) {
	var upgrader websocket.Upgrader

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		evt := Event{ID: "evt-1", BotID: "bot-1", Action: "open_order", Data: Record{"symbol": "EURUSD"}}
		b, _ := json.Marshal(evt)
		_ = conn.WriteMessage(websocket.TextMessage, b)

		// Keep the connection open briefly so the client can read before we close.
		time.Sleep(100 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	sub := NewSubscriber(wsURL, "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() { _ = sub.Run(ctx) }()

	select {
	case evt := <-sub.Events():
		require.Equal(t, "evt-1", evt.ID)
		require.Equal(t, "open_order", evt.Action)
		require.Equal(t, "EURUSD", evt.Data["symbol"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
