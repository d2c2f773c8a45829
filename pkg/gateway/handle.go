package gateway

import (
	"context"
	"sync"
)

// Handle is one attached plugin instance. Synchronous exchanges go
// through Message; everything the gateway pushes on its own arrives
// on Events.
type Handle struct {
	id     uint64
	client *Client
	events chan Event

	detachOnce sync.Once
}

func (h *Handle) Id() uint64 { return h.id }

// Message sends a plugin request (with an optional session description)
// and waits for the matching reply: either a synchronous success or the
// asynchronous plugin event following the ack.
func (h *Handle) Message(ctx context.Context, body any, jsep *Jsep) (Event, error) {
	res, err := h.client.request(ctx, request{
		Janus:     "message",
		SessionId: h.client.sessionId,
		HandleId:  h.id,
		Body:      body,
		Jsep:      jsep,
	}, true)
	if err != nil {
		return Event{}, err
	}
	return res.event()
}

// Events is the stream of untracked plugin notifications for this handle.
// The channel closes on Detach.
func (h *Handle) Events() <-chan Event { return h.events }

// Detach releases the plugin handle. Idempotent; always detach before
// the owning client is destroyed (Destroy does it for leftovers).
func (h *Handle) Detach(ctx context.Context) (err error) {
	h.detachOnce.Do(func() {
		h.client.forget(h)
		_, err = h.client.request(ctx, request{
			Janus:     "detach",
			SessionId: h.client.sessionId,
			HandleId:  h.id,
		}, false)
	})
	return
}
