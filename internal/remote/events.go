package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventReadTimeout  = 90 * time.Second
	eventPingInterval = 50 * time.Second
	maxReconnectWait  = 30 * time.Second
)

// Event is one message delivered over the events feed: a user-initiated
// action (open_order, close_cycle, stop_bot, ...) or a remote mutation the
// Strategy Loop must react to.
type Event struct {
	ID     string `json:"id"`
	BotID  string `json:"bot_id"`
	Action string `json:"action"`
	Data   Record `json:"data"`
}

// Subscriber maintains a long-lived websocket connection to the remote
// store's events feed, auto-reconnecting with exponential backoff and
// delivering decoded Events on a channel.
type Subscriber struct {
	url    string
	token  string
	logger *log.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	events chan Event
}

// NewSubscriber builds a Subscriber against wsURL (e.g. the remote store's
// base URL with scheme swapped to ws/wss and path set to the events feed).
func NewSubscriber(wsURL, token string, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = log.Default()
	}
	return &Subscriber{
		url:    wsURL,
		token:  token,
		logger: logger,
		events: make(chan Event, 64),
	}
}

// Events returns the channel Subscriber delivers decoded events on. Closed
// when Run returns.
func (s *Subscriber) Events() <-chan Event { return s.events }

// EventsURL derives the websocket URL for the events feed from a remote
// store base URL (http(s) -> ws(s), appending the realtime path).
func EventsURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing remote store base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported remote store scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/realtime/events"
	return u.String(), nil
}

// Run connects and maintains the connection until ctx is canceled,
// reconnecting with exponential backoff (1s -> 30s) on any disconnect.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.events)

	backoff := time.Second
	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Printf("events feed disconnected: %v, reconnecting in %v", err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (s *Subscriber) connectAndRead(ctx context.Context) error {
	header := map[string][]string{}
	if s.token != "" {
		header["Authorization"] = []string{s.token}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dialing events feed: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(eventReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventReadTimeout))
	})

	stopPing := make(chan struct{})
	go s.pingLoop(conn, stopPing)
	defer close(stopPing)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading events feed: %w", err)
		}

		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			s.logger.Printf("discarding malformed event: %v", err)
			continue
		}

		select {
		case s.events <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Subscriber) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
