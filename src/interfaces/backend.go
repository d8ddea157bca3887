package interfaces

import (
	"context"
	"iter"

	"gapper-terminal/src/models"
)

// -----------------------------------------------------------------------------
// IBackend is the typed client for the card/chat backend.
// -----------------------------------------------------------------------------

type IBackend interface {

	// GetCard performs a conditional card fetch, sending etag as If-None-Match
	// when non-empty. 304 and 404 are not errors.
	GetCard(ctx context.Context, ticker, etag string) (CardResponse, error)

	// -----------------------------------------------------------------------------

	PostAnalyze(ctx context.Context, ticker string) (models.MActionAck, error)
	PostPin(ctx context.Context, ticker string) (models.MActionAck, error)

	// -----------------------------------------------------------------------------

	// GetTopGappers returns ranked movers, best first.
	GetTopGappers(ctx context.Context, limit int) ([]models.MTopGapper, error)

	// -----------------------------------------------------------------------------

	// OpenStream performs the SSE handshake. Failures are *helpers.StreamError.
	// The returned sequence ends when the connection drops or ctx ends.
	OpenStream(ctx context.Context) (iter.Seq2[models.MStreamEvent, error], error)
}

// CardResponse is the raw outcome of a conditional card request.
type CardResponse struct {
	Card        *models.MCard
	ETag        string
	NotModified bool
	Missing     bool
}
