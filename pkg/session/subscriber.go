package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mentori/liveclass/pkg/gateway"
	"github.com/mentori/liveclass/pkg/logger"
	"github.com/mentori/liveclass/pkg/media"
	"github.com/mentori/liveclass/pkg/rtc"
	"github.com/pion/webrtc/v4"
)

// Subscriber is the mentee role: it binds to one resolved remote feed,
// answers the gateway's offer with receive-only media, and rebinds the
// viewing surface on every inbound track change. At most one
// subscribe-join is ever in flight, and at most one subscription is
// held; switching feeds unsubscribes the previous one first.
type Subscriber struct {
	log     *logger.Logger
	sess    *Session
	conn    GatewayConn
	peers   PeerFactory
	surface media.RemoteSurface

	mu      sync.Mutex
	joining bool
	handle  Plugin
	peer    Peer
	remote  *media.RemoteStream
	target  gateway.FeedId
}

func NewSubscriber(sess *Session, conn GatewayConn, peers PeerFactory, surface media.RemoteSurface, log *logger.Logger) *Subscriber {
	return &Subscriber{log: log, sess: sess, conn: conn, peers: peers, surface: surface}
}

// Target is the feed id of the active subscription, zero when none.
func (s *Subscriber) Target() gateway.FeedId {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// SubscribeTo binds the subscriber to the given feed. A no-op when the
// feed is already bound or another subscribe-join is still in flight.
func (s *Subscriber) SubscribeTo(ctx context.Context, feed gateway.FeedId) error {
	s.mu.Lock()
	if s.joining {
		s.mu.Unlock()
		return nil
	}
	if s.target == feed && s.handle != nil {
		s.mu.Unlock()
		return nil
	}
	if s.handle != nil {
		s.unsubscribeLocked(ctx)
	}
	s.joining = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.joining = false
		s.mu.Unlock()
	}()

	handle, err := s.conn.Attach(ctx, gateway.PluginVideoRoom)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	ev, err := handle.Message(ctx, gateway.NewJoinSubscriber(s.sess.Room, feed), nil)
	if err != nil {
		_ = handle.Detach(ctx)
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	if !ev.Room.Attached() || ev.Jsep == nil {
		_ = handle.Detach(ctx)
		return fmt.Errorf("%w: no offer for feed %d", ErrNegotiation, feed)
	}

	peer, err := s.peers.NewReceivingPeer()
	if err != nil {
		_ = handle.Detach(ctx)
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	remote := media.NewRemoteStream()
	peer.OnTrack(func(track *webrtc.TrackRemote) {
		// accumulate track by track and rebind on every change so a
		// feed swap never leaves a stale stream attached
		remote.Put(track)
		s.mu.Lock()
		current := s.remote == remote
		s.mu.Unlock()
		if current {
			s.surface.Bind(remote)
		}
	})

	offer, err := rtc.FromJsep(ev.Jsep)
	if err != nil {
		_ = peer.Close()
		_ = handle.Detach(ctx)
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	answer, err := peer.Answer(ctx, offer)
	if err != nil {
		_ = peer.Close()
		_ = handle.Detach(ctx)
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	if _, err = handle.Message(ctx, gateway.NewStart(), rtc.JsepFrom(answer)); err != nil {
		_ = peer.Close()
		_ = handle.Detach(ctx)
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}

	s.mu.Lock()
	s.handle = handle
	s.peer = peer
	s.remote = remote
	s.target = feed
	s.mu.Unlock()
	s.log.Info().Msgf("subscribed to feed %d", feed)
	return nil
}

// Unsubscribe detaches the plugin handle and clears the bound surface.
// Safe to call with no active subscription.
func (s *Subscriber) Unsubscribe(ctx context.Context) {
	s.mu.Lock()
	s.unsubscribeLocked(ctx)
	s.mu.Unlock()
}

func (s *Subscriber) unsubscribeLocked(ctx context.Context) {
	if s.handle == nil {
		return
	}
	if err := s.handle.Detach(ctx); err != nil && !errors.Is(err, gateway.ErrClosed) {
		s.log.Debug().Err(err).Msg("subscriber detach")
	}
	if s.peer != nil {
		_ = s.peer.Close()
	}
	s.handle = nil
	s.peer = nil
	s.remote = nil
	s.target = 0
	s.surface.Clear()
}
