// Package gateway is a thin async wrapper around the signaling gateway:
// a JSON-message, plugin-oriented service reached over a persistent
// websocket. Its callback surface is normalized into awaitable calls
// correlated by transaction ids, plus one event stream per attached
// plugin handle.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mentori/liveclass/pkg/config"
	"github.com/mentori/liveclass/pkg/logger"
	"github.com/rs/xid"
)

var (
	ErrClosed  = errors.New("gateway: connection closed")
	ErrTimeout = errors.New("gateway: call timeout")
)

// Client owns one gateway connection and its server-side session.
// Exactly one Destroy happens per Connect; Destroy detaches handles
// that are still attached, in reverse attach order.
type Client struct {
	sock        *socket
	log         *logger.Logger
	callTimeout time.Duration

	mu        sync.Mutex
	pending   map[string]*call
	handles   map[uint64]*Handle
	stack     []*Handle
	sessionId uint64
	closed    bool

	destroyOnce sync.Once
	done        chan struct{}
}

type call struct {
	done      chan struct{}
	resp      reply
	err       error
	wantEvent bool
}

// Connect dials the gateway, starts the message pumps, creates the
// server-side session and begins sending keepalives for it.
func Connect(ctx context.Context, address string, conf config.Gateway, log *logger.Logger) (*Client, error) {
	sock, err := dial(ctx, address)
	if err != nil {
		return nil, err
	}
	c := &Client{
		sock:        sock,
		log:         log,
		callTimeout: conf.CallTimeout(),
		pending:     make(map[string]*call),
		handles:     make(map[uint64]*Handle),
		done:        make(chan struct{}),
	}
	sock.onMessage = c.handleMessage
	sock.listen()

	resp, err := c.request(ctx, request{Janus: "create"}, false)
	if err != nil {
		sock.close()
		return nil, err
	}
	if resp.Data == nil {
		sock.close()
		return nil, errors.New("gateway: create reply without session id")
	}
	c.sessionId = resp.Data.Id
	go c.keepalive(conf.Keepalive())
	return c, nil
}

// Attach binds a new plugin handle to the session.
func (c *Client) Attach(ctx context.Context, plugin string) (*Handle, error) {
	resp, err := c.request(ctx, request{Janus: "attach", Plugin: plugin, SessionId: c.sessionId}, false)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errors.New("gateway: attach reply without handle id")
	}
	h := &Handle{id: resp.Data.Id, client: c, events: make(chan Event, 16)}
	c.mu.Lock()
	c.handles[h.id] = h
	c.stack = append(c.stack, h)
	c.mu.Unlock()
	return h, nil
}

// Destroy tears the connection down: detaches leftover handles LIFO,
// destroys the server-side session, closes the socket and fails every
// pending call. Safe to call more than once.
func (c *Client) Destroy() {
	c.destroyOnce.Do(func() {
		c.mu.Lock()
		stack := make([]*Handle, len(c.stack))
		copy(stack, c.stack)
		c.closed = true
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
		defer cancel()
		for i := len(stack) - 1; i >= 0; i-- {
			if err := stack[i].Detach(ctx); err != nil && !errors.Is(err, ErrClosed) {
				c.log.Warn().Err(err).Msg("handle detach on destroy")
			}
		}
		if _, err := c.request(ctx, request{Janus: "destroy", SessionId: c.sessionId}, false); err != nil {
			c.log.Debug().Err(err).Msg("session destroy")
		}
		close(c.done)
		c.sock.close()
		c.drain(ErrClosed)
	})
}

// Done is closed once the connection is gone, locally or remotely.
func (c *Client) Done() <-chan struct{} { return c.sock.done }

func (c *Client) keepalive(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			msg := request{Janus: "keepalive", SessionId: c.sessionId, Transaction: xid.New().String()}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := c.sock.write(data); err != nil {
				return
			}
		case <-c.done:
			return
		case <-c.sock.done:
			return
		}
	}
}

// request sends one envelope and blocks until its transaction resolves.
// With wantEvent set, a bare ack keeps the call pending until the
// matching asynchronous plugin event arrives.
func (c *Client) request(ctx context.Context, req request, wantEvent bool) (reply, error) {
	req.Transaction = xid.New().String()
	data, err := json.Marshal(req)
	if err != nil {
		return reply{}, err
	}

	task := &call{done: make(chan struct{}), wantEvent: wantEvent}
	c.mu.Lock()
	if c.closed && req.Janus != "destroy" && req.Janus != "detach" {
		c.mu.Unlock()
		return reply{}, ErrClosed
	}
	c.pending[req.Transaction] = task
	c.mu.Unlock()

	if err := c.sock.write(data); err != nil {
		c.pop(req.Transaction)
		return reply{}, err
	}

	select {
	case <-task.done:
		return task.resp, task.err
	case <-ctx.Done():
		c.pop(req.Transaction)
		return reply{}, ctx.Err()
	case <-time.After(c.callTimeout):
		c.pop(req.Transaction)
		return reply{}, ErrTimeout
	case <-c.sock.done:
		c.pop(req.Transaction)
		return reply{}, ErrClosed
	}
}

func (c *Client) handleMessage(raw []byte) {
	var res reply
	if err := json.Unmarshal(raw, &res); err != nil {
		c.log.Warn().Err(err).Msg("malformed gateway message")
		return
	}

	switch res.Janus {
	case "ack":
		if task := c.peek(res.Transaction); task != nil && task.wantEvent {
			return // synchronous ack, the plugin event is still coming
		}
		c.resolve(res.Transaction, res, nil)
	case "success":
		c.resolve(res.Transaction, res, nil)
	case "error":
		var err error = res.Error
		if res.Error == nil {
			err = errors.New("gateway: unspecified error")
		}
		c.resolve(res.Transaction, res, err)
	case "event":
		if res.Transaction != "" {
			if task := c.pop(res.Transaction); task != nil {
				task.resp = res
				close(task.done)
				return
			}
		}
		c.route(res)
	case "hangup", "detached", "webrtcup", "media", "slowlink":
		c.log.Debug().Msgf("gateway notice: %s for %d", res.Janus, res.Sender)
	case "timeout":
		c.log.Warn().Msg("gateway session timed out")
		c.sock.close()
	}
}

// route forwards an untracked plugin event to its handle's stream. The
// send stays under the mutex so a concurrent Detach cannot close the
// channel mid-send; the send itself never blocks.
func (c *Client) route(res reply) {
	ev, err := res.event()
	if err != nil {
		c.log.Warn().Err(err).Msgf("dropping bad event from %d", res.Sender)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.handles[res.Sender]
	if h == nil {
		return
	}
	select {
	case h.events <- ev:
	default:
		c.log.Warn().Msgf("handle %d event queue full, event dropped", h.id)
	}
}

func (c *Client) peek(id string) *call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[id]
}

func (c *Client) pop(id string) *call {
	c.mu.Lock()
	task := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	return task
}

func (c *Client) resolve(id string, res reply, err error) {
	if task := c.pop(id); task != nil {
		task.resp = res
		task.err = err
		close(task.done)
	}
}

// drain fails all calls still waiting for a reply.
func (c *Client) drain(err error) {
	c.mu.Lock()
	for id, task := range c.pending {
		task.err = err
		close(task.done)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// forget unregisters the handle and closes its event stream, both under
// the mutex that route sends under.
func (c *Client) forget(h *Handle) {
	c.mu.Lock()
	delete(c.handles, h.id)
	for i, s := range c.stack {
		if s == h {
			c.stack = append(c.stack[:i], c.stack[i+1:]...)
			break
		}
	}
	close(h.events)
	c.mu.Unlock()
}
