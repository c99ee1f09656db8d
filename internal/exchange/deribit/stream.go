package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/market-feed/internal/exchange"
	"github.com/rickgao/market-feed/internal/model"
	"github.com/rickgao/market-feed/internal/registry"
)

const (
	handshakeTimeout  = 10 * time.Second
	writeTimeout      = 5 * time.Second
	authReadTimeout   = 10 * time.Second
	heartbeatInterval = 30 // seconds, server-side test_request cadence
	frameBufferSize   = 1000
)

// rpcRequest is a JSON-RPC 2.0 request frame.
type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcEnvelope covers both notifications and command responses.
type rpcEnvelope struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// stream is one open Deribit WebSocket subscription stream.
type stream struct {
	conn     *websocket.Conn
	logger   *slog.Logger
	channels []string

	writeMu sync.Mutex
	cmdID   atomic.Int64

	frames chan []byte
	errs   chan error
	done   chan struct{}

	closeOnce sync.Once
}

// openStream dials, authenticates (private access only), and enables
// protocol heartbeats. Subscriptions are sent separately via Subscribe.
func openStream(ctx context.Context, cfg Config, instruments []model.Instrument, logger *slog.Logger) (*stream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, cfg.WSURL, nil)
	if err != nil {
		return nil, &exchange.ConnectError{Source: SourceName, Err: err}
	}

	s := &stream{
		conn:     conn,
		logger:   logger,
		channels: subscriptionChannels(instruments),
		frames:   make(chan []byte, frameBufferSize),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}

	if cfg.ClientID != "" {
		if err := s.authenticate(cfg); err != nil {
			conn.Close()
			return nil, err
		}
	}

	// Ask the server to probe the connection; we answer test_requests in
	// the decode path.
	if err := s.send("public/set_heartbeat", map[string]any{"interval": heartbeatInterval}); err != nil {
		conn.Close()
		return nil, &exchange.ConnectError{Source: SourceName, Err: err}
	}

	go s.readPump()

	logger.Debug("websocket connected", "url", cfg.WSURL, "channels", len(s.channels))
	return s, nil
}

// subscriptionChannels builds the ticker channel list for the reference
// keys of every instrument group, deduped.
func subscriptionChannels(instruments []model.Instrument) []string {
	seen := make(map[string]struct{})
	var channels []string
	for _, inst := range instruments {
		for _, key := range registry.ReferenceKeys(inst) {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			channels = append(channels, "ticker."+key+".100ms")
		}
	}
	return channels
}

// authenticate performs the client_credentials grant synchronously,
// before the read pump starts.
func (s *stream) authenticate(cfg Config) error {
	req := rpcRequest{
		Jsonrpc: "2.0",
		ID:      s.cmdID.Add(1),
		Method:  "public/auth",
		Params: map[string]any{
			"grant_type":    "client_credentials",
			"client_id":     cfg.ClientID,
			"client_secret": cfg.ClientSecret,
		},
	}
	if err := s.writeJSON(req); err != nil {
		return &exchange.ConnectError{Source: SourceName, Err: err}
	}

	s.conn.SetReadDeadline(time.Now().Add(authReadTimeout))
	defer s.conn.SetReadDeadline(time.Time{})

	// The auth response is the first frame; nothing else is in flight yet.
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return &exchange.ConnectError{Source: SourceName, Err: err}
	}

	var env rpcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &exchange.ConnectError{Source: SourceName, Err: err}
	}
	if env.Error != nil {
		return &exchange.AuthError{Source: SourceName, Err: env.Error}
	}

	s.logger.Debug("authenticated")
	return nil
}

// Subscribe sends the subscription request for the stream's channels.
func (s *stream) Subscribe(ctx context.Context) error {
	if err := s.send("public/subscribe", map[string]any{"channels": s.channels}); err != nil {
		return &exchange.ConnectError{Source: SourceName, Err: err}
	}
	return nil
}

// Extend subscribes ticker channels for additional instrument keys,
// typically option contracts picked after bootstrap.
func (s *stream) Extend(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	channels := make([]string, 0, len(keys))
	for _, key := range keys {
		channels = append(channels, "ticker."+key+".100ms")
	}
	if err := s.send("public/subscribe", map[string]any{"channels": channels}); err != nil {
		return &exchange.ConnectError{Source: SourceName, Err: err}
	}
	return nil
}

// ReadNext yields the next decoded ticker event. Command responses and
// heartbeat frames are handled internally and skipped.
func (s *stream) ReadNext(ctx context.Context) (model.UpdateEvent, error) {
	for {
		select {
		case <-ctx.Done():
			return model.UpdateEvent{}, ctx.Err()
		case err := <-s.errs:
			return model.UpdateEvent{}, fmt.Errorf("%w: %s", exchange.ErrStreamClosed, err)
		case data := <-s.frames:
			ev, ok, err := s.decode(data)
			if err != nil {
				return model.UpdateEvent{}, err
			}
			if !ok {
				continue
			}
			return ev, nil
		}
	}
}

// decode parses one frame. ok=false means the frame was a control or
// response message with nothing to surface.
func (s *stream) decode(data []byte) (model.UpdateEvent, bool, error) {
	var env rpcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.UpdateEvent{}, false, &exchange.DecodeError{Source: SourceName, Err: err}
	}

	switch env.Method {
	case "subscription":
		var p struct {
			Channel string          `json:"channel"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return model.UpdateEvent{}, false, &exchange.DecodeError{Source: SourceName, Err: err}
		}
		if !isTickerChannel(p.Channel) {
			return model.UpdateEvent{}, false, nil
		}

		var td tickerData
		if err := json.Unmarshal(p.Data, &td); err != nil {
			return model.UpdateEvent{}, false, &exchange.DecodeError{Source: SourceName, Err: err}
		}
		if td.InstrumentName == "" {
			return model.UpdateEvent{}, false, &exchange.DecodeError{
				Source: SourceName,
				Err:    fmt.Errorf("ticker payload missing instrument_name"),
			}
		}
		return tickerEvent(td, time.Now()), true, nil

	case "heartbeat":
		var p struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(env.Params, &p); err == nil && p.Type == "test_request" {
			if err := s.send("public/test", nil); err != nil {
				s.logger.Debug("test_request reply failed", "error", err)
			}
		}
		return model.UpdateEvent{}, false, nil

	default:
		// Command response (subscribe confirmations etc.); surface only
		// server-side errors into the log.
		if env.Error != nil {
			s.logger.Warn("command rejected", "id", env.ID, "error", env.Error)
		}
		return model.UpdateEvent{}, false, nil
	}
}

func isTickerChannel(channel string) bool {
	return len(channel) > len("ticker.") && channel[:len("ticker.")] == "ticker."
}

// SendHeartbeat issues a proactive keepalive probe.
func (s *stream) SendHeartbeat(ctx context.Context) error {
	return s.send("public/test", nil)
}

// Close tears down the connection and unblocks pending reads.
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *stream) send(method string, params any) error {
	return s.writeJSON(rpcRequest{
		Jsonrpc: "2.0",
		ID:      s.cmdID.Add(1),
		Method:  method,
		Params:  params,
	})
}

func (s *stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

// readPump reads frames off the socket until it fails or Close is called.
func (s *stream) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				select {
				case s.errs <- err:
				default:
				}
			}
			return
		}

		select {
		case s.frames <- data:
		case <-s.done:
			return
		default:
			s.logger.Warn("frame buffer full, dropping message")
		}
	}
}
