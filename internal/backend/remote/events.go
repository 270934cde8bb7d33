package remote

import "encoding/json"

// Event types - client → gateway
const (
	eventSubscribe   = "subscribe"
	eventUnsubscribe = "unsubscribe"
	eventWrite       = "write"
	eventUpdate      = "update"
	eventPush        = "push"
)

// Event types - gateway → client
const (
	eventAck      = "ack"
	eventSnapshot = "snapshot"
)

// event is the envelope for all gateway websocket traffic. Requests carry an
// ID the gateway echoes back on the matching ack; snapshots carry only the
// path and the full replacement value.
type event struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Path  string          `json:"path,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Key   string          `json:"key,omitempty"`
	Error string          `json:"error,omitempty"`
}
