package service

// Notification types pushed to a user's websocket connections
const (
	MsgRankingBuilt       = "ranking_built"
	MsgRankingReplenished = "ranking_replenished"
	MsgVisionProcessed    = "vision_processed"
)

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToUser(userID string, msgType string, payload interface{})
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastToUser(string, string, interface{}) {}

func orNoop(b Broadcaster) Broadcaster {
	if b == nil {
		return noopBroadcaster{}
	}
	return b
}
