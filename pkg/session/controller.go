package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mentori/liveclass/pkg/api"
	"github.com/mentori/liveclass/pkg/gateway"
	"github.com/mentori/liveclass/pkg/logger"
	"github.com/mentori/liveclass/pkg/media"
	"github.com/mentori/liveclass/pkg/roster"
)

// Deps are the controller's collaborators, production-wired in cmd and
// replaced by fakes in tests.
type Deps struct {
	Backend Backend
	Dial    Dialer
	Peers   PeerFactory
	Push    PushFunc
	Capture media.Capturer
	Preview media.LocalSurface
	View    media.RemoteSurface
}

// Controller owns the lifecycle of one lecture attendance: bootstrap,
// gateway connect, role session, roster synchronization, and the
// ordered teardown. Start and Leave may race freely; a generation
// counter makes every async completion check whether it is stale.
type Controller struct {
	log  *logger.Logger
	deps Deps
	role api.Role // role the client expects before bootstrap confirms it

	pollInterval time.Duration
	callTimeout  time.Duration

	mu       sync.Mutex
	gen      uint64
	starting bool
	sess     *Session
	conn     GatewayConn
	pub      *Publisher
	sub      *Subscriber
	lobby    Plugin
	room     *roster.Roster
	poller   *roster.Poller
	teardown []func()
	onEnded  func(rec *api.Recording)
}

func NewController(role api.Role, deps Deps, pollInterval, callTimeout time.Duration, log *logger.Logger) *Controller {
	return &Controller{
		log:          log,
		deps:         deps,
		role:         role,
		pollInterval: pollInterval,
		callTimeout:  callTimeout,
	}
}

// OnSessionEnded registers the callback invoked after a remote
// SESSION_ENDED, with the recording info when one could be fetched.
func (c *Controller) OnSessionEnded(fn func(rec *api.Recording)) {
	c.mu.Lock()
	c.onEnded = fn
	c.mu.Unlock()
}

// Session is the current session identity, nil when not started.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Publisher is the mentor-side session, nil for mentees or before Start.
func (c *Controller) Publisher() *Publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pub
}

// Participants is the last reconciled roster snapshot.
func (c *Controller) Participants() []roster.Participant {
	c.mu.Lock()
	r := c.room
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Snapshot()
}

// Start brings the session up: capture (mentor), bootstrap, push
// subscription, gateway connect with the role-specific room join, and
// the roster poller. On any failure everything acquired so far is
// released and nothing is retained. A Leave issued while Start is in
// flight wins: Start unwinds and returns ErrStartCanceled.
func (c *Controller) Start(ctx context.Context, lectureRef string) error {
	c.mu.Lock()
	if c.sess != nil || c.starting {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.starting = true
	myGen := c.gen
	c.mu.Unlock()

	var stack []func()
	unwind := func() {
		for i := len(stack) - 1; i >= 0; i-- {
			stack[i]()
		}
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}
	fail := func(err error) error {
		unwind()
		return err
	}

	// the camera is taken before bootstrap so a mentor fails fast on a
	// refused device instead of holding a half-created session
	var camera *media.Stream
	var err error
	if c.role == api.RoleMentor {
		if camera, err = c.deps.Capture.Camera(ctx); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrPermissionDenied, err))
		}
		stack = append(stack, camera.Stop)
	}

	info, err := c.deps.Backend.Bootstrap(ctx, lectureRef)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrBootstrap, err))
	}
	sess := newSession(info)
	if !sess.IsMentor() && camera != nil {
		// bootstrap demoted us; the device goes back immediately
		camera.Stop()
		camera, stack = nil, stack[:0]
	}
	if sess.IsMentor() && camera == nil {
		if camera, err = c.deps.Capture.Camera(ctx); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrPermissionDenied, err))
		}
		stack = append(stack, camera.Stop)
	}

	pushStream := c.deps.Push(sess.Id)
	stack = append(stack, pushStream.Close)

	conn, err := c.deps.Dial(ctx, sess.GatewayUrl)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrGatewayConnect, err))
	}
	stack = append(stack, conn.Destroy)

	var (
		pub        *Publisher
		sub        *Subscriber
		lobby      Plugin
		roomHandle Plugin
	)
	if sess.IsMentor() {
		handle, err := conn.Attach(ctx, gateway.PluginVideoRoom)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrGatewayConnect, err))
		}
		peer, err := c.deps.Peers.NewPeer()
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrNegotiation, err))
		}
		pub = NewPublisher(sess, handle, peer, c.deps.Capture, c.deps.Preview, c.log)
		stack = append(stack, func() {
			pub.Unpublish(context.Background())
			pub.Close(context.Background())
		})
		if err = pub.Join(ctx, camera); err != nil {
			return fail(err)
		}
		roomHandle = handle
	} else {
		if lobby, err = conn.Attach(ctx, gateway.PluginVideoRoom); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrGatewayConnect, err))
		}
		stack = append(stack, func() {
			// withdraw from the room so remote rosters converge before
			// the gateway notices the handle is gone
			leaveCtx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
			defer cancel()
			if _, err := lobby.Message(leaveCtx, gateway.NewLeave(), nil); err != nil {
				c.log.Debug().Err(err).Msg("lobby leave")
			}
			_ = lobby.Detach(leaveCtx)
		})
		ev, err := lobby.Message(ctx, gateway.NewJoinPublisher(sess.Room, sess.DisplayName), nil)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrGatewayConnect, err))
		}
		if !ev.Room.Joined() {
			return fail(fmt.Errorf("%w: unexpected join reply %q", ErrGatewayConnect, ev.Room.VideoRoom))
		}
		sub = NewSubscriber(sess, conn, c.deps.Peers, c.deps.View, c.log)
		stack = append(stack, func() { sub.Unsubscribe(context.Background()) })
		roomHandle = lobby
	}

	room := roster.New()
	watchCtx, watchCancel := context.WithCancel(context.Background())
	stack = append(stack, watchCancel)

	poller := roster.NewPoller(c.pollInterval, c.lister(roomHandle, sess.Room), func(parts []roster.Participant) {
		c.reconcile(watchCtx, myGen, parts)
	}, c.log)
	stack = append(stack, poller.Stop)

	c.mu.Lock()
	if c.gen != myGen {
		c.mu.Unlock()
		unwind()
		return ErrStartCanceled
	}
	c.sess = sess
	c.conn = conn
	c.pub = pub
	c.sub = sub
	c.lobby = lobby
	c.room = room
	c.poller = poller
	c.teardown = stack
	c.starting = false
	// started inside the commit: a Leave can then only run before the
	// generation check or after the poller is on the teardown stack
	poller.Start()
	c.mu.Unlock()

	go c.watchEvents(watchCtx, myGen, roomHandle)
	go c.watchPush(watchCtx, myGen, pushStream)
	go c.watchConn(myGen, conn)

	metricStarts.WithLabelValues(string(sess.Role)).Inc()
	c.log.Info().Msgf("session %v started, room %d, role %v", sess.Id, sess.Room, sess.Role)
	return nil
}

// Leave tears the session down in reverse acquisition order and clears
// the bound surfaces last. Idempotent; callable at any time, including
// while Start is still in flight.
func (c *Controller) Leave() {
	c.mu.Lock()
	c.gen++
	stack := c.teardown
	sess := c.sess
	c.sess = nil
	c.conn = nil
	c.pub = nil
	c.sub = nil
	c.lobby = nil
	c.room = nil
	c.poller = nil
	c.teardown = nil
	c.mu.Unlock()
	if sess == nil {
		return
	}

	for i := len(stack) - 1; i >= 0; i-- {
		stack[i]()
	}
	c.deps.Preview.Clear()
	c.deps.View.Clear()
	metricTeardowns.Inc()
	metricRosterSize.Set(0)
	c.log.Info().Msgf("session %v left", sess.Id)
}

// End terminates the lecture for everyone. Mentor only; the local
// teardown runs even when the backend call fails.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return ErrBadState
	}
	if !sess.IsMentor() {
		return ErrMentorOnly
	}
	err := c.deps.Backend.End(ctx, sess.Id)
	c.Leave()
	return err
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Controller) lister(handle Plugin, room uint64) roster.Lister {
	return func(ctx context.Context) ([]roster.Participant, error) {
		ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		ev, err := handle.Message(ctx, gateway.NewListParticipants(room), nil)
		if err != nil {
			return nil, err
		}
		parts := make([]roster.Participant, 0, len(ev.Room.Participants))
		for _, p := range ev.Room.Participants {
			parts = append(parts, roster.Participant{Feed: p.Id, Display: p.Display})
		}
		return parts, nil
	}
}

// reconcile is the single sink for both roster producers (poll ticks
// and gateway events). For mentees it also drives feed selection: the
// resolver runs only while no subscription to a still-present feed is
// held, and a vanished feed is dropped silently for the next tick to
// retry.
func (c *Controller) reconcile(ctx context.Context, gen uint64, parts []roster.Participant) {
	c.mu.Lock()
	if c.gen != gen || c.room == nil {
		c.mu.Unlock()
		return
	}
	room, sess, sub := c.room, c.sess, c.sub
	c.mu.Unlock()

	room.Apply(parts)
	metricRosterSize.Set(float64(room.Len()))
	if sub == nil {
		return
	}

	if target := sub.Target(); target != 0 {
		if room.Has(target) {
			return
		}
		sub.Unsubscribe(ctx)
	}
	hint := ""
	if sess.MentorDisplayName != "" {
		hint = roster.MentorName(sess.MentorDisplayName)
	}
	feed, ok := roster.Resolve(room.Snapshot(), sess.DisplayName, hint)
	if !ok {
		return
	}
	if err := sub.SubscribeTo(ctx, feed); err != nil {
		// the feed may have gone away between roster tick and join;
		// never an error for the caller, the next tick retries
		c.log.Debug().Err(err).Msgf("subscribe to feed %d", feed)
	}
}

func (c *Controller) watchEvents(ctx context.Context, gen uint64, handle Plugin) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-handle.Events():
			if !ok || !c.current(gen) {
				return
			}
			c.roomEvent(ctx, gen, ev)
		}
	}
}

func (c *Controller) roomEvent(ctx context.Context, gen uint64, ev gateway.Event) {
	if len(ev.Room.Publishers) > 0 {
		parts := make([]roster.Participant, 0, len(ev.Room.Publishers))
		for _, p := range ev.Room.Publishers {
			parts = append(parts, roster.Participant{Feed: p.Id, Display: p.Display})
		}
		c.reconcile(ctx, gen, parts)
	}
	c.dropFeed(ctx, gen, ev.Room.Leaving)
	c.dropFeed(ctx, gen, ev.Room.Unpublished)
}

func (c *Controller) dropFeed(ctx context.Context, gen uint64, ref *gateway.FeedRef) {
	if ref == nil || ref.Own {
		return
	}
	c.mu.Lock()
	if c.gen != gen || c.room == nil {
		c.mu.Unlock()
		return
	}
	room, sub, poller := c.room, c.sub, c.poller
	c.mu.Unlock()

	if room.Remove(ref.Id) {
		metricRosterSize.Set(float64(room.Len()))
	}
	if sub != nil && sub.Target() == ref.Id {
		sub.Unsubscribe(ctx)
	}
	poller.Kick()
}

func (c *Controller) watchPush(ctx context.Context, gen uint64, stream PushStream) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			if ev.Name != api.EventSessionEnded {
				continue
			}
			c.remoteEnded(gen)
			return
		}
	}
}

// remoteEnded handles the authoritative SESSION_ENDED push: one
// best-effort recording query, the registered callback, then Leave.
func (c *Controller) remoteEnded(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	sess, onEnded := c.sess, c.onEnded
	c.mu.Unlock()
	if sess == nil {
		return
	}

	var rec *api.Recording
	ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
	if r, err := c.deps.Backend.Recording(ctx, sess.Id); err == nil {
		rec = &r
	} else {
		c.log.Warn().Err(err).Msg("recording lookup after session end")
	}
	cancel()

	c.log.Info().Msgf("session %v ended remotely", sess.Id)
	if onEnded != nil {
		onEnded(rec)
	}
	c.Leave()
}

func (c *Controller) watchConn(gen uint64, conn GatewayConn) {
	<-conn.Done()
	if !c.current(gen) {
		return
	}
	c.log.Warn().Msg("gateway connection lost")
	c.Leave()
}
