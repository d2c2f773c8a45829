// Package chat is the room-scoped text channel companion of a lecture:
// outbound messages go through the backend REST endpoint, inbound ones
// arrive on the room's server push stream.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/mentori/liveclass/pkg/api"
	"github.com/mentori/liveclass/pkg/logger"
)

// Poster is the backend slice the channel publishes through.
type Poster interface {
	PostChat(ctx context.Context, msg api.ChatMessage) error
}

// Stream is an open push subscription carrying chat events.
type Stream interface {
	Events() <-chan api.PushEvent
	Close()
}

type Channel struct {
	log    *logger.Logger
	room   uint64
	from   string
	poster Poster
	stream Stream

	messages chan api.ChatMessage
	done     chan struct{}
	once     sync.Once
}

// Open binds a chat channel to a room. The stream should be subscribed
// to the room id, not the session id; chat outlives individual viewers.
func Open(room uint64, from string, poster Poster, stream Stream, log *logger.Logger) *Channel {
	c := &Channel{
		log:      log,
		room:     room,
		from:     from,
		poster:   poster,
		stream:   stream,
		messages: make(chan api.ChatMessage, 16),
		done:     make(chan struct{}),
	}
	go c.pump()
	return c
}

// Messages is the inbound message feed, closed when the channel closes.
func (c *Channel) Messages() <-chan api.ChatMessage { return c.messages }

// Send publishes a message to the room.
func (c *Channel) Send(ctx context.Context, text string) error {
	return c.poster.PostChat(ctx, api.ChatMessage{
		RoomId: c.room,
		From:   c.from,
		Text:   text,
		SentAt: time.Now().UnixMilli(),
	})
}

func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
		c.stream.Close()
	})
}

func (c *Channel) pump() {
	defer close(c.messages)
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.stream.Events():
			if !ok {
				return
			}
			if ev.Name != api.EventChat {
				continue
			}
			var msg api.ChatMessage
			if err := json.Unmarshal(ev.Data, &msg); err != nil {
				c.log.Warn().Err(err).Msg("bad chat payload")
				continue
			}
			select {
			case c.messages <- msg:
			default:
				c.log.Warn().Msg("chat consumer too slow, message dropped")
			}
		}
	}
}
