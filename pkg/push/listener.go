// Package push consumes the server push channel: one server-sent event
// stream per session (or per room for chat) delivering named events.
package push

import (
	"context"
	"strings"
	"sync"

	"github.com/mentori/liveclass/pkg/api"
	"github.com/mentori/liveclass/pkg/logger"
	"github.com/r3labs/sse/v2"
)

// Listener holds one event stream subscription. Close is idempotent
// and releases the underlying connection.
type Listener struct {
	events chan api.PushEvent
	cancel context.CancelFunc
	once   sync.Once
	log    *logger.Logger
}

// Listen subscribes to the event stream for the given channel id
// (session id, or room id for chat) and pumps named events until Close.
// Heartbeat pings are consumed here and never reach the caller.
func Listen(baseUrl, channel string, log *logger.Logger) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		events: make(chan api.PushEvent, 16),
		cancel: cancel,
		log:    log,
	}
	client := sse.NewClient(strings.TrimRight(baseUrl, "/") + "/events/" + channel)
	go func() {
		defer close(l.events)
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			name := string(msg.Event)
			if name == "" || name == api.EventPing {
				return
			}
			ev := api.PushEvent{Name: name, Data: append([]byte(nil), msg.Data...)}
			select {
			case l.events <- ev:
			case <-ctx.Done():
			default:
				log.Warn().Msgf("push: slow consumer, dropped %s", name)
			}
		})
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("push: stream closed")
		}
	}()
	return l
}

// Events returns the stream of named events. The channel is closed
// once the subscription ends.
func (l *Listener) Events() <-chan api.PushEvent { return l.events }

func (l *Listener) Close() { l.once.Do(l.cancel) }
