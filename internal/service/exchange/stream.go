package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	xlogger "MarketPulse/pkg/logger"
)

// Stream implements a MarketStream backed by the exchange trade WebSocket.
type Stream struct {
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *xlogger.Logger

	// mu guards conn and connected and serializes all writes to the
	// connection, per the single-writer rule.
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewStream creates a live tick stream for the given symbols.
func NewStream(websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, logger *xlogger.Logger) drepo.MarketStream {
	return &Stream{
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		logger:         logger,
	}
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("exchange connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.logger.Info("exchange stream connected")
	return nil
}

// Subscribe subscribes to the trade channel for configured symbols.
func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return fmt.Errorf("exchange stream not connected")
	}
	params := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		params = append(params, strings.ToLower(sym)+"usdt@trade")
	}
	msg := map[string]interface{}{"method": "SUBSCRIBE", "params": params, "id": 1}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.logger.Info("exchange stream subscribed", xlogger.Strings("symbols", s.symbols))
	return nil
}

// trade frame: {"e":"trade","s":"BTCUSDT","p":"67000.1","q":"0.02","T":1700000000000}
type wsTrade struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Qty    string `json:"q"`
	TimeMs int64  `json:"T"`
}

// Read streams Tick events and errors until ctx is done. Read failures are
// reported on the error channel and followed by an internal reconnect, so
// the tick channel stays live across connection drops. Both channels close
// only when ctx ends.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ping()
			}
		}
	}()

	// read loop
	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			if ctx.Err() != nil {
				return
			}
			conn := s.current()
			if conn == nil {
				if err := s.Reconnect(ctx); err != nil && ctx.Err() == nil {
					reportErr(errs, err)
				}
				continue
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				reportErr(errs, fmt.Errorf("exchange read: %w", err))
				if rerr := s.Reconnect(ctx); rerr != nil && ctx.Err() == nil {
					reportErr(errs, rerr)
				}
				continue
			}
			var m wsTrade
			if err := json.Unmarshal(b, &m); err != nil || m.Event != "trade" {
				// ignore acks and non-trade frames
				continue
			}
			t := parseTick(&m)
			if t == nil {
				continue
			}
			select {
			case ticks <- t:
			default:
				// drop on backpressure
			}
		}
	}()

	return ticks, errs
}

func (s *Stream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Stream) ping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.PingMessage, nil)
	}
}

// reportErr never blocks; a stalled consumer drops older errors.
func reportErr(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

func parseTick(m *wsTrade) *models.Tick {
	price, err := strconv.ParseFloat(m.Price, 64)
	if err != nil {
		return nil
	}
	qty, err := strconv.ParseFloat(m.Qty, 64)
	if err != nil {
		return nil
	}
	sym := strings.TrimSuffix(m.Symbol, "USDT")
	return &models.Tick{Symbol: sym, Timestamp: m.TimeMs / 1000, Price: price, Volume: qty}
}

// Reconnect closes the connection, waits out the reconnect delay, then
// dials and resubscribes.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	t := time.NewTimer(s.reconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
