// Package broadcast fans out dialog and message lifecycle events to
// observers: in-process subscribers (the websocket transport) and, when
// configured, other processes sharing the same Redis instance.
package broadcast

import "encoding/json"

// Envelope is the wire shape published both to local subscriber channels
// and to the cross-process Redis channel, so a websocket client and a
// Redis subscriber see identical bytes.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`

	// Origin identifies the hub instance that produced this envelope.
	// A hub ignores envelopes it receives back from Redis that carry its
	// own origin, since it already delivered them to its local clients
	// directly.
	Origin string `json:"origin,omitempty"`
}

func newEnvelope(origin, event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw, Origin: origin}, nil
}
