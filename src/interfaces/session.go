package interfaces

import (
	"context"

	"gapper-terminal/src/models"
	"gapper-terminal/src/router"
)

// -----------------------------------------------------------------------------
// ISession is what outer surfaces (HTTP bridge, control service, terminal)
// need from a running session.
// -----------------------------------------------------------------------------

type ISession interface {
	Submit(ctx context.Context, raw string) models.MChatReply
	Snapshot() models.MSessionSnapshot
	GroupedFeed() []router.FeedGroup
	Channels() []string
	ChannelEvents(ticker string) []models.MStreamEvent
	Complete(prefix string) []string
}
