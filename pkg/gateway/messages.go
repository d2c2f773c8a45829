package gateway

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Jsep carries a session description through the gateway.
type Jsep struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// request is the envelope of every message sent to the gateway.
type request struct {
	Janus       string `json:"janus"`
	Transaction string `json:"transaction"`
	SessionId   uint64 `json:"session_id,omitempty"`
	HandleId    uint64 `json:"handle_id,omitempty"`
	Plugin      string `json:"plugin,omitempty"`
	Body        any    `json:"body,omitempty"`
	Jsep        *Jsep  `json:"jsep,omitempty"`
}

// reply is the envelope of every message received from the gateway.
// Synchronous replies carry a transaction, asynchronous plugin events
// carry the originating handle id in sender.
type reply struct {
	Janus       string      `json:"janus"`
	Transaction string      `json:"transaction,omitempty"`
	SessionId   uint64      `json:"session_id,omitempty"`
	Sender      uint64      `json:"sender,omitempty"`
	Data        *replyData  `json:"data,omitempty"`
	PluginData  *pluginData `json:"plugindata,omitempty"`
	Jsep        *Jsep       `json:"jsep,omitempty"`
	Error       *Error      `json:"error,omitempty"`
}

type replyData struct {
	Id uint64 `json:"id"`
}

type pluginData struct {
	Plugin string          `json:"plugin"`
	Data   json.RawMessage `json:"data"`
}

// Error is a gateway-level failure, carrying the gateway's numeric code.
type Error struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

func (e *Error) Error() string { return fmt.Sprintf("gateway: %d %s", e.Code, e.Reason) }

// Event is one plugin notification: parsed videoroom payload plus the
// session description when the gateway attached one.
type Event struct {
	Sender uint64
	Room   VideoRoomData
	Jsep   *Jsep
}

func (r *reply) event() (Event, error) {
	ev := Event{Sender: r.Sender, Jsep: r.Jsep}
	if r.PluginData != nil && len(r.PluginData.Data) > 0 {
		if err := json.Unmarshal(r.PluginData.Data, &ev.Room); err != nil {
			return ev, err
		}
	}
	if ev.Room.ErrorCode != 0 {
		return ev, &Error{Code: ev.Room.ErrorCode, Reason: ev.Room.Error}
	}
	return ev, nil
}
