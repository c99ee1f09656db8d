package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/market-feed/internal/exchange"
	"github.com/rickgao/market-feed/internal/model"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	frameBufferSize  = 1000
)

// wsCommand is an op frame sent to the server (subscribe, ping).
type wsCommand struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

// wsEnvelope covers both pushed topics and op acknowledgements.
type wsEnvelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"` // "snapshot" or "delta"
	TS      int64           `json:"ts"`   // ms since epoch
	Data    json.RawMessage `json:"data"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
}

// stream is one open Bybit public WebSocket stream.
type stream struct {
	conn   *websocket.Conn
	logger *slog.Logger
	topics []string

	// symbol → accumulated ticker state; read loop only, no lock needed.
	states map[string]*tickerState

	writeMu sync.Mutex

	frames chan []byte
	errs   chan error
	done   chan struct{}

	closeOnce sync.Once
}

func openStream(ctx context.Context, cfg Config, instruments []model.Instrument, logger *slog.Logger) (*stream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, cfg.WSURL, nil)
	if err != nil {
		return nil, &exchange.ConnectError{Source: SourceName, Err: err}
	}

	s := &stream{
		conn:   conn,
		logger: logger,
		states: make(map[string]*tickerState),
		frames: make(chan []byte, frameBufferSize),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	for _, inst := range instruments {
		symbol := symbolFor(inst)
		if _, dup := s.states[symbol]; dup {
			continue
		}
		s.states[symbol] = &tickerState{
			key:    keyFor(inst),
			ticker: model.Ticker{InstrumentName: keyFor(inst)},
		}
		s.topics = append(s.topics,
			"tickers."+symbol,
			"orderbook.1."+symbol,
		)
	}

	go s.readPump()

	logger.Debug("websocket connected", "url", cfg.WSURL, "topics", len(s.topics))
	return s, nil
}

// Subscribe sends the subscription request for the stream's topics.
func (s *stream) Subscribe(ctx context.Context) error {
	if err := s.writeJSON(wsCommand{Op: "subscribe", Args: s.topics}); err != nil {
		return &exchange.ConnectError{Source: SourceName, Err: err}
	}
	return nil
}

// Extend is a no-op: the spot stream's topic set is fixed at open time
// (the states map belongs to the read loop and must not grow under it).
func (s *stream) Extend(ctx context.Context, keys []string) error {
	if len(keys) > 0 {
		s.logger.Debug("ignoring extend request on fixed spot topic set", "keys", len(keys))
	}
	return nil
}

// ReadNext yields the next normalized ticker event. Acknowledgement and
// pong frames are skipped.
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

func (s *stream) decode(data []byte) (model.UpdateEvent, bool, error) {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.UpdateEvent{}, false, &exchange.DecodeError{Source: SourceName, Err: err}
	}

	if env.Op != "" {
		if env.Success != nil && !*env.Success {
			s.logger.Warn("command rejected", "op", env.Op, "ret_msg", env.RetMsg)
		}
		return model.UpdateEvent{}, false, nil
	}

	switch {
	case strings.HasPrefix(env.Topic, "tickers."):
		var w wsTickerWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return model.UpdateEvent{}, false, &exchange.DecodeError{Source: SourceName, Err: err}
		}
		st, ok := s.states[w.Symbol]
		if !ok {
			return model.UpdateEvent{}, false, nil
		}
		st.applyTicker(w)
		return st.event(env.TS, time.Now()), true, nil

	case strings.HasPrefix(env.Topic, "orderbook.1."):
		var w wsOrderbookWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return model.UpdateEvent{}, false, &exchange.DecodeError{Source: SourceName, Err: err}
		}
		st, ok := s.states[w.Symbol]
		if !ok {
			return model.UpdateEvent{}, false, nil
		}
		st.applyOrderbook(w)
		return st.event(env.TS, time.Now()), true, nil

	default:
		return model.UpdateEvent{}, false, nil
	}
}

// SendHeartbeat issues the protocol-level ping.
func (s *stream) SendHeartbeat(ctx context.Context) error {
	return s.writeJSON(wsCommand{Op: "ping"})
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

func (s *stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

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
