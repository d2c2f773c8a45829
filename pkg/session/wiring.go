package session

import (
	"context"

	"github.com/mentori/liveclass/pkg/api"
	"github.com/mentori/liveclass/pkg/config"
	"github.com/mentori/liveclass/pkg/gateway"
	"github.com/mentori/liveclass/pkg/logger"
	"github.com/mentori/liveclass/pkg/push"
	"github.com/mentori/liveclass/pkg/rtc"
	"github.com/pion/webrtc/v4"
)

// The controller and the role sessions consume their collaborators
// through the narrow interfaces below; production wiring adapts the
// real gateway/rtc/push/backend types, tests substitute their own.

// Plugin is one attached gateway plugin handle.
type Plugin interface {
	Message(ctx context.Context, body any, jsep *gateway.Jsep) (gateway.Event, error)
	Events() <-chan gateway.Event
	Detach(ctx context.Context) error
}

// GatewayConn is one gateway connection with its LIFO handle stack.
type GatewayConn interface {
	Attach(ctx context.Context, plugin string) (Plugin, error)
	Destroy()
	Done() <-chan struct{}
}

// Dialer opens a gateway connection.
type Dialer func(ctx context.Context, address string) (GatewayConn, error)

// GatewayDialer adapts the real gateway client to the Dialer seam.
func GatewayDialer(conf config.Gateway, log *logger.Logger) Dialer {
	return func(ctx context.Context, address string) (GatewayConn, error) {
		client, err := gateway.Connect(ctx, address, conf, log)
		if err != nil {
			return nil, err
		}
		return gatewayConn{client}, nil
	}
}

type gatewayConn struct{ client *gateway.Client }

func (g gatewayConn) Attach(ctx context.Context, plugin string) (Plugin, error) {
	h, err := g.client.Attach(ctx, plugin)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (g gatewayConn) Destroy()              { g.client.Destroy() }
func (g gatewayConn) Done() <-chan struct{} { return g.client.Done() }

// Peer is one negotiated peer connection.
type Peer interface {
	Upsert(track webrtc.TrackLocal) (replaced bool, err error)
	Negotiate(ctx context.Context, exchange func(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)) error
	Answer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	OnTrack(fn func(track *webrtc.TrackRemote))
	Close() error
}

// PeerFactory builds peers for the two roles.
type PeerFactory interface {
	NewPeer() (Peer, error)
	NewReceivingPeer() (Peer, error)
}

// Peers adapts the rtc api factory to the PeerFactory seam.
func Peers(f *rtc.ApiFactory, log *logger.Logger) PeerFactory {
	return rtcPeers{f: f, log: log}
}

type rtcPeers struct {
	f   *rtc.ApiFactory
	log *logger.Logger
}

func (r rtcPeers) NewPeer() (Peer, error)          { return r.f.NewPeer(r.log) }
func (r rtcPeers) NewReceivingPeer() (Peer, error) { return r.f.NewReceivingPeer(r.log) }

// Backend is the slice of the REST client the controller uses.
type Backend interface {
	Bootstrap(ctx context.Context, lectureId string) (api.SessionInfo, error)
	End(ctx context.Context, sessionId string) error
	Recording(ctx context.Context, sessionId string) (api.Recording, error)
}

// PushStream is one open server push subscription.
type PushStream interface {
	Events() <-chan api.PushEvent
	Close()
}

// PushFunc opens the push subscription for a channel id.
type PushFunc func(channel string) PushStream

// PushListener adapts the SSE listener to the PushFunc seam.
func PushListener(conf config.Backend, log *logger.Logger) PushFunc {
	return func(channel string) PushStream {
		return push.Listen(conf.PushUrl, channel, log)
	}
}
