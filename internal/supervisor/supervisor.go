package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/market-feed/internal/exchange"
	"github.com/rickgao/market-feed/internal/metrics"
	"github.com/rickgao/market-feed/internal/model"
	"github.com/rickgao/market-feed/internal/snapshot"
)

// State is the supervisor's position in the connection lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateBootstrapping State = "bootstrapping"
	StateConnecting    State = "connecting"
	StateSubscribing   State = "subscribing"
	StateLive          State = "live"
	StateReconnecting  State = "reconnecting"
	StateStopped       State = "stopped"
)

// Config holds supervisor timing and failure thresholds.
type Config struct {
	BootstrapAttempts   int
	BootstrapRetryDelay time.Duration
	ReconnectBaseDelay  time.Duration
	ReconnectMaxDelay   time.Duration
	DegradedThreshold   int // consecutive connect failures before degraded
	HeartbeatInterval   time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BootstrapAttempts:   3,
		BootstrapRetryDelay: 2 * time.Second,
		ReconnectBaseDelay:  1 * time.Second,
		ReconnectMaxDelay:   60 * time.Second,
		DegradedThreshold:   5,
		HeartbeatInterval:   15 * time.Second,
	}
}

// Supervisor owns the connection lifecycle for one source.
type Supervisor struct {
	cfg         Config
	source      string
	adapter     exchange.Adapter
	instruments []model.Instrument
	store       *snapshot.Store
	logger      *slog.Logger

	mu     sync.Mutex
	state  State
	stream exchange.Stream // current live stream, nil between connections

	// Keys subscribed after open (option contracts picked post-bootstrap);
	// re-sent on every reconnect.
	extras   []string
	extraSet map[string]struct{}
}

// New creates a supervisor for one adapter. All instruments must belong
// to the adapter's source.
func New(cfg Config, adapter exchange.Adapter, instruments []model.Instrument, store *snapshot.Store, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:         cfg,
		source:      adapter.Name(),
		adapter:     adapter,
		instruments: instruments,
		store:       store,
		logger:      logger.With("source", adapter.Name()),
		state:       StateIdle,
		extraSet:    make(map[string]struct{}),
	}
}

// Source returns the source name this supervisor manages.
func (s *Supervisor) Source() string { return s.source }

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Bootstrap fetches initial state with bounded attempts and merges it
// into the store. Exhausted attempts mark the source degraded and log a
// degraded-start warning, but never return an error: the stream may
// still succeed.
func (s *Supervisor) Bootstrap(ctx context.Context) {
	s.setState(StateBootstrapping)
	s.store.SetConnectionStatus(s.source, model.StatusConnecting)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.BootstrapAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.BootstrapRetryDelay):
			}
		}

		frag, err := s.adapter.Bootstrap(ctx, s.instruments)
		if err == nil {
			s.applyBootstrap(frag)
			return
		}
		lastErr = err
		metrics.RecordBootstrapFailure(s.source)
		s.logger.Warn("bootstrap attempt failed",
			"attempt", attempt,
			"max_attempts", s.cfg.BootstrapAttempts,
			"error", err,
		)
		if ctx.Err() != nil {
			return
		}
	}

	s.store.SetConnectionStatus(s.source, model.StatusDegraded)
	s.logger.Warn("bootstrap exhausted, starting degraded; stream may still recover",
		"error", lastErr,
	)
}

func (s *Supervisor) applyBootstrap(frag *exchange.Bootstrap) {
	contracts := 0
	for tab, metas := range frag.Instruments {
		s.store.AddInstruments(tab, metas)
		contracts += len(metas)
	}
	for key, px := range frag.IndexPrices {
		s.store.SeedIndexPrice(key, px)
	}
	s.logger.Info("bootstrap complete",
		"contracts", contracts,
		"index_prices", len(frag.IndexPrices),
	)
}

// Run drives the connect/subscribe/read/reconnect loop until the context
// is cancelled. Previously merged state is never cleared; outages only
// change the source's connection status.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.setState(StateStopped)

	backoff := NewBackoff(s.cfg.ReconnectBaseDelay, s.cfg.ReconnectMaxDelay)
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		session := uuid.NewString()
		logger := s.logger.With("session", session)

		stream, err := s.open(ctx, logger)
		if err != nil {
			var authErr *exchange.AuthError
			if errors.As(err, &authErr) {
				// Credentials rejected: retrying cannot help.
				s.store.SetConnectionStatus(s.source, model.StatusDegraded)
				logger.Error("authentication rejected, source permanently degraded", "error", err)
				return
			}
			if ctx.Err() != nil {
				return
			}

			failures++
			if failures >= s.cfg.DegradedThreshold {
				s.store.SetConnectionStatus(s.source, model.StatusDegraded)
			} else {
				s.store.SetConnectionStatus(s.source, model.StatusReconnecting)
			}
			metrics.RecordReconnect(s.source)

			wait := backoff.Next()
			s.setState(StateReconnecting)
			logger.Warn("connect failed, backing off",
				"failures", failures,
				"wait", wait,
				"error", err,
			)

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		failures = 0
		backoff.Reset()
		s.mu.Lock()
		s.state = StateLive
		s.stream = stream
		s.mu.Unlock()
		s.store.SetConnectionStatus(s.source, model.StatusLive)
		metrics.SetConnected(s.source, true)
		logger.Info("stream live", "instruments", len(s.instruments))

		err = s.readLoop(ctx, stream, logger)
		s.mu.Lock()
		s.stream = nil
		s.mu.Unlock()
		stream.Close()
		metrics.SetConnected(s.source, false)

		if ctx.Err() != nil {
			return
		}

		s.setState(StateReconnecting)
		s.store.SetConnectionStatus(s.source, model.StatusReconnecting)
		metrics.RecordReconnect(s.source)
		logger.Warn("stream ended, reconnecting", "error", err)
	}
}

// open connects and subscribes. Subscription failure closes the stream
// and counts as a connect failure.
func (s *Supervisor) open(ctx context.Context, logger *slog.Logger) (exchange.Stream, error) {
	s.setState(StateConnecting)
	stream, err := s.adapter.OpenStream(ctx, s.instruments)
	if err != nil {
		return nil, err
	}

	s.setState(StateSubscribing)
	if err := stream.Subscribe(ctx); err != nil {
		stream.Close()
		return nil, err
	}

	// Re-establish any subscriptions added while a previous stream was up.
	s.mu.Lock()
	extras := append([]string(nil), s.extras...)
	s.mu.Unlock()
	if len(extras) > 0 {
		if err := stream.Extend(ctx, extras); err != nil {
			stream.Close()
			return nil, err
		}
		logger.Debug("restored extended subscriptions", "keys", len(extras))
	}

	return stream, nil
}

// Extend subscribes additional instrument keys on the live stream and
// records them for automatic re-subscription after reconnect. Keys added
// while disconnected are sent once the stream is next open.
func (s *Supervisor) Extend(ctx context.Context, keys []string) error {
	s.mu.Lock()
	var added []string
	for _, key := range keys {
		if _, dup := s.extraSet[key]; dup {
			continue
		}
		s.extraSet[key] = struct{}{}
		s.extras = append(s.extras, key)
		added = append(added, key)
	}
	stream := s.stream
	s.mu.Unlock()

	if len(added) == 0 || stream == nil {
		return nil
	}
	return stream.Extend(ctx, added)
}

// readLoop merges each decoded update until the stream fails or the
// context is cancelled. Runs the heartbeat timer alongside.
func (s *Supervisor) readLoop(ctx context.Context, stream exchange.Stream, logger *slog.Logger) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.heartbeatLoop(hbCtx, stream, logger)
	}()
	defer wg.Wait()

	for {
		ev, err := stream.ReadNext(ctx)
		if err != nil {
			var decodeErr *exchange.DecodeError
			if errors.As(err, &decodeErr) {
				// Malformed message: drop it, the stream stays up.
				metrics.RecordDecodeError(s.source)
				logger.Warn("dropping malformed message", "error", err)
				continue
			}
			return err
		}

		if s.store.Merge(ev) {
			metrics.RecordMerge(s.source)
		}
	}
}

// heartbeatLoop sends keepalives on a fixed interval, independent of
// read-loop timing. Send failures are left to the read loop to surface.
func (s *Supervisor) heartbeatLoop(ctx context.Context, stream exchange.Stream, logger *slog.Logger) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := stream.SendHeartbeat(ctx); err != nil {
				logger.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}
