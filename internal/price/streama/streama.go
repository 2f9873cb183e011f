// Package streama supervises the STREAM_A live USDT/BRL feed (§4.5):
// a long-lived WebSocket connection with automatic reconnect,
// generalized from the teacher's WSReconnectManager
// (internal/exchange/ws_reconnect.go) — same state machine and
// ping/pong liveness check, retargeted from an exchange order-book
// feed to a single price tick decoder.
package streama

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"otcbot/internal/models"
	"otcbot/pkg/utils"
)

// Recorder accepts decoded samples; internal/price.Aggregator satisfies it.
type Recorder interface {
	RecordSample(sample models.PriceSample) error
}

// Decoder turns one raw WebSocket frame into a price sample. Returning
// ok=false skips the frame without treating it as an error (e.g. a
// heartbeat frame carrying no price).
type Decoder func(frame []byte) (sample models.PriceSample, ok bool, err error)

// Config controls connection, reconnect, and liveness parameters.
type Config struct {
	URL            string
	InitialDelay   time.Duration // §4.5: start at 2s
	MaxDelay       time.Duration // §4.5: cap at 30s
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	SubscribeMsg   interface{} // sent once on connect, if non-nil
}

func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		InitialDelay:   2 * time.Second,
		MaxDelay:       30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// State mirrors the teacher's WSConnectionState enum.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Supervisor owns one reconnecting WebSocket connection feeding
// decoded samples into a Recorder.
type Supervisor struct {
	cfg      Config
	decode   Decoder
	recorder Recorder

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32
	retryCount int32

	closeChan chan struct{}
	closeOnce sync.Once
}

// New creates a Supervisor. It does not connect until Start is called.
func New(cfg Config, decode Decoder, recorder Recorder) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		decode:    decode,
		recorder:  recorder,
		closeChan: make(chan struct{}),
	}
}

func (s *Supervisor) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// Start connects and begins the read/ping loops, retrying with
// exponential backoff (2s→30s) on any disconnect until Close is called.
func (s *Supervisor) Start() {
	go s.connectLoop(0)
}

func (s *Supervisor) connectLoop(delay time.Duration) {
	select {
	case <-s.closeChan:
		return
	case <-time.After(delay):
	}

	if err := s.connect(); err != nil {
		utils.L().Warn("streama: connect failed", utils.Source(models.SourceStreamA), utils.Err(err))
		next := s.nextDelay(delay)
		go s.connectLoop(next)
		return
	}

	atomic.StoreInt32(&s.retryCount, 0)
	go s.readPump()
	go s.pingPump()
}

func (s *Supervisor) nextDelay(prev time.Duration) time.Duration {
	if prev <= 0 {
		return s.cfg.InitialDelay
	}
	next := prev * 2
	if next > s.cfg.MaxDelay {
		next = s.cfg.MaxDelay
	}
	return next
}

func (s *Supervisor) connect() error {
	atomic.StoreInt32(&s.state, int32(StateConnecting))

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		atomic.StoreInt32(&s.state, int32(StateDisconnected))
		return fmt.Errorf("streama: dial: %w", err)
	}

	if s.cfg.SubscribeMsg != nil {
		if err := conn.WriteJSON(s.cfg.SubscribeMsg); err != nil {
			conn.Close()
			atomic.StoreInt32(&s.state, int32(StateDisconnected))
			return fmt.Errorf("streama: subscribe: %w", err)
		}
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	atomic.StoreInt32(&s.state, int32(StateConnected))
	utils.L().Info("streama: connected", utils.Source(models.SourceStreamA))
	return nil
}

func (s *Supervisor) readPump() {
	defer s.handleDisconnect()

	for {
		select {
		case <-s.closeChan:
			return
		default:
		}

		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		sample, ok, err := s.decode(frame)
		if err != nil {
			utils.L().Warn("streama: decode error", utils.Source(models.SourceStreamA), utils.Err(err))
			continue
		}
		if !ok {
			continue
		}
		if sample.Source == "" {
			sample.Source = models.SourceStreamA
		}
		if err := s.recorder.RecordSample(sample); err != nil {
			utils.L().Warn("streama: sample rejected", utils.Source(models.SourceStreamA), utils.Err(err))
		}
	}
}

func (s *Supervisor) pingPump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeChan:
			return
		case <-ticker.C:
			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()
			if conn == nil || s.State() != StateConnected {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(s.cfg.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Supervisor) handleDisconnect() {
	select {
	case <-s.closeChan:
		return
	default:
	}
	if s.State() == StateReconnecting || s.State() == StateClosed {
		return
	}
	atomic.StoreInt32(&s.state, int32(StateReconnecting))

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	utils.L().Warn("streama: disconnected, reconnecting", utils.Source(models.SourceStreamA))
	go s.connectLoop(s.cfg.InitialDelay)
}

// Close stops the supervisor and releases its connection.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		atomic.StoreInt32(&s.state, int32(StateClosed))
		close(s.closeChan)
		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.connMu.Unlock()
	})
}
