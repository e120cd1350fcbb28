package viewer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/OCAP2/bouncelog/pkg/streaming"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultMaxReconnect = 10
	defaultBackoff      = time.Second
	defaultMaxBackoff   = 30 * time.Second
	closeWait           = time.Second
)

// ErrSubscriptionClosed is returned when connecting a closed subscription.
var ErrSubscriptionClosed = errors.New("subscription closed")

// SubscriptionOption configures a Subscription.
type SubscriptionOption func(*Subscription)

// WithBackoff sets the first reconnect delay and its cap.
func WithBackoff(initial, maxDelay time.Duration) SubscriptionOption {
	return func(s *Subscription) {
		s.backoff = initial
		s.maxBackoff = maxDelay
	}
}

// WithMaxReconnect sets how many reconnect attempts follow a lost connection.
func WithMaxReconnect(n int) SubscriptionOption {
	return func(s *Subscription) {
		s.maxReconnect = n
	}
}

// Subscription listens for change notifications on the server's WebSocket
// endpoint and reconnects with exponential backoff when the connection drops.
// Only the connection is retried; nothing is replayed.
type Subscription struct {
	url          string
	logger       zerolog.Logger
	dialer       *ws.Dialer
	backoff      time.Duration
	maxBackoff   time.Duration
	maxReconnect int

	mu        sync.Mutex
	conn      *ws.Conn
	closed    bool
	done      chan struct{}
	lost      chan struct{}
	lostOnce  sync.Once
	onConnect func()
	onEvent   func(streaming.Envelope)
}

// NewSubscription creates a subscription for a ws:// or wss:// URL.
func NewSubscription(rawURL string, logger zerolog.Logger, opts ...SubscriptionOption) *Subscription {
	s := &Subscription{
		url:          rawURL,
		logger:       logger,
		dialer:       ws.DefaultDialer,
		backoff:      defaultBackoff,
		maxBackoff:   defaultMaxBackoff,
		maxReconnect: defaultMaxReconnect,
		done:         make(chan struct{}),
		lost:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WebSocketURL derives the notification endpoint from an HTTP server root.
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// OnConnect sets the callback run after every successful (re)connect.
func (s *Subscription) OnConnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = fn
}

// OnEvent sets the callback run for every decoded envelope.
func (s *Subscription) OnEvent(fn func(streaming.Envelope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

// Lost is closed when reconnecting gave up after the maximum attempts. A lost
// subscription stays lost; Follow replaces it with a new one.
func (s *Subscription) Lost() <-chan struct{} {
	return s.lost
}

// Connect dials once and starts the read loop. When that dial fails the
// error is returned and the subscription keeps retrying in the background
// with the same backoff it uses after a dropped connection.
func (s *Subscription) Connect() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSubscriptionClosed
	}

	conn, err := s.dialOnce()
	if err != nil {
		go s.reconnect(nil)
		return err
	}
	s.attach(conn)
	return nil
}

// Close sends a close frame and stops reconnecting.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(closeWait),
		)
		return conn.Close()
	}
	return nil
}

func (s *Subscription) dialOnce() (*ws.Conn, error) {
	conn, _, err := s.dialer.Dial(s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// attach installs conn, runs the connect callback and starts reading. The
// callback runs after the connection is live so no notification sent after
// the refresh can be missed.
func (s *Subscription) attach(conn *ws.Conn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	onConnect := s.onConnect
	s.mu.Unlock()

	go s.readLoop(conn)
	if onConnect != nil {
		onConnect()
	}
}

func (s *Subscription) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn().Err(err).Msg("WebSocket read error")
			go s.reconnect(conn)
			return
		}

		env, err := streaming.Decode(message)
		if err != nil {
			s.logger.Debug().Str("raw", string(message)).Msg("Undecodable message received")
			continue
		}

		s.mu.Lock()
		onEvent := s.onEvent
		s.mu.Unlock()
		if onEvent != nil {
			onEvent(env)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (s *Subscription) reconnect(old *ws.Conn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if old != nil && s.conn == old {
		_ = old.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	backoff := s.backoff
	for attempt := 1; attempt <= s.maxReconnect; attempt++ {
		s.logger.Info().Int("attempt", attempt).Dur("backoff", backoff).Msg("Reconnecting to WebSocket")

		timer := time.NewTimer(backoff)
		select {
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		conn, err := s.dialOnce()
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect dial failed")
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
			continue
		}

		s.logger.Info().Int("attempt", attempt).Msg("WebSocket reconnected")
		s.attach(conn)
		return
	}

	s.logger.Error().Int("maxAttempts", s.maxReconnect).Msg("WebSocket reconnect failed after max attempts")
	s.lostOnce.Do(func() { close(s.lost) })
}

// Follow keeps p subscribed to rawURL until ctx is done. A subscription that
// gives up is replaced by a fresh one, so live updates resume whenever the
// server comes back. While no connection is live the view is refreshed once
// so this session's own data is still shown.
func (p *Projector) Follow(ctx context.Context, rawURL string, opts ...SubscriptionOption) {
	for {
		sub := NewSubscription(rawURL, p.logger, opts...)
		p.Bind(sub)
		if err := sub.Connect(); err != nil {
			p.logger.Warn().Err(err).Str("url", rawURL).Msg("Live updates unavailable, retrying")
			refreshCtx, cancel := context.WithTimeout(ctx, eventRefreshTimeout)
			_ = p.Refresh(refreshCtx)
			cancel()
		}

		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case <-sub.Lost():
			p.logger.Warn().Str("url", rawURL).Msg("Live updates lost, subscribing again")
			_ = sub.Close()
		}

		timer := time.NewTimer(sub.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
