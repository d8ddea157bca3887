package models

// Message types sent to renderers over the websocket.
const (
	BridgeSnapshot   = "snapshot"
	BridgeUpdate     = "update"
	BridgeSubscribed = "subscribed"
	BridgeError      = "error"
)

// MBridgeMessage is the websocket envelope.
type MBridgeMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// MClientCommand is sent by renderers. "subscribe" narrows per-ticker events
// to Channels (empty means all); "submit" runs Text as a chat submission.
type MClientCommand struct {
	Command  string   `json:"command"`
	Channels []string `json:"channels,omitempty"`
	Text     string   `json:"text,omitempty"`
}

// MSubmitRequest is the body of POST /api/submit.
type MSubmitRequest struct {
	Text string `json:"text"`
}
