package exchange

import (
	"context"
	"time"

	"github.com/rickgao/market-feed/internal/model"
)

// Bootstrap is the state fragment returned by a one-shot synchronous fetch.
type Bootstrap struct {
	Source string

	// Instruments maps tab name to the contracts listed for it.
	Instruments map[string][]model.InstrumentMeta

	// IndexPrices maps unified instrument key to the fetched reference price.
	IndexPrices map[string]float64

	FetchedAt time.Time
}

// Adapter is the capability contract every exchange source implements.
// One adapter instance serves all instruments configured for its source.
type Adapter interface {
	// Name returns the source name this adapter serves (e.g., "deribit").
	Name() string

	// Bootstrap synchronously fetches current state for the given
	// instruments over request/response. Returns a *FetchError on
	// network/HTTP failure or a malformed response.
	Bootstrap(ctx context.Context, instruments []model.Instrument) (*Bootstrap, error)

	// OpenStream establishes a persistent connection and authenticates if
	// the source is private. Returns a *ConnectError on failure, or a
	// *AuthError if credentials are rejected.
	OpenStream(ctx context.Context, instruments []model.Instrument) (Stream, error)
}

// Stream is one open subscription stream produced by OpenStream.
type Stream interface {
	// Subscribe sends the subscription requests for the instruments the
	// stream was opened with. Safe to call again after reconnect.
	Subscribe(ctx context.Context) error

	// Extend subscribes additional instrument keys on the open stream.
	// Sources with a fixed subscription set treat this as a no-op.
	Extend(ctx context.Context, keys []string) error

	// ReadNext blocks until the next decoded update event. A single
	// malformed message yields a *DecodeError; the caller drops it and
	// reads on. A closed or failed stream yields ErrStreamClosed
	// (possibly wrapped).
	ReadNext(ctx context.Context) (model.UpdateEvent, error)

	// SendHeartbeat keeps the connection alive per exchange protocol.
	// Invoked on a fixed interval by the supervisor.
	SendHeartbeat(ctx context.Context) error

	// Close tears down the connection. Unblocks pending reads.
	Close() error
}
