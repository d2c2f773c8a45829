package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mentori/liveclass/pkg/gateway"
	"github.com/mentori/liveclass/pkg/logger"
	"github.com/mentori/liveclass/pkg/media"
	"github.com/mentori/liveclass/pkg/roster"
	"github.com/mentori/liveclass/pkg/rtc"
	"github.com/pion/webrtc/v4"
)

// PublisherState is the mentor-side lifecycle.
type PublisherState int32

const (
	Unjoined PublisherState = iota
	Joining
	Joined
	Publishing
	ScreenSharing
	PublisherEnded
)

func (s PublisherState) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Publishing:
		return "publishing"
	case ScreenSharing:
		return "screen-sharing"
	case PublisherEnded:
		return "ended"
	}
	return "unknown"
}

// Publisher is the mentor role: joins the room as a publisher, offers
// the camera stream, and renegotiates on mic/cam/screen-share changes.
// All public operations are serialized; a second renegotiation never
// starts before the previous exchange completes.
type Publisher struct {
	log     *logger.Logger
	sess    *Session
	handle  Plugin
	peer    Peer
	capture media.Capturer
	preview media.LocalSurface

	mu     sync.Mutex
	state  PublisherState
	feed   gateway.FeedId
	camera *media.Stream // owned for the whole session
	screen *media.Stream // owned while sharing; composed with the camera mic
	active *media.Stream
	camOn  bool // user's camera choice, survives a screen share
}

func NewPublisher(sess *Session, handle Plugin, peer Peer, capture media.Capturer, preview media.LocalSurface, log *logger.Logger) *Publisher {
	return &Publisher{
		log:     log,
		sess:    sess,
		handle:  handle,
		peer:    peer,
		capture: capture,
		preview: preview,
	}
}

// Feed is the gateway-issued id of the published feed, zero before join.
func (p *Publisher) Feed() gateway.FeedId {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.feed
}

func (p *Publisher) State() PublisherState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Join enters the room with the already-acquired camera stream and
// immediately publishes it. The camera stream's ownership moves to the
// publisher; it is stopped on Close.
func (p *Publisher) Join(ctx context.Context, camera *media.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Unjoined {
		return fmt.Errorf("%w: join in %s", ErrBadState, p.state)
	}
	p.state = Joining
	p.camera = camera
	p.camOn = true

	join := gateway.NewJoinPublisher(p.sess.Room, roster.MentorName(p.sess.DisplayName))
	ev, err := p.handle.Message(ctx, join, nil)
	if err != nil {
		p.state = Unjoined
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	if !ev.Room.Joined() {
		p.state = Unjoined
		return fmt.Errorf("%w: unexpected join reply %q", ErrNegotiation, ev.Room.VideoRoom)
	}
	p.feed = ev.Room.Id
	p.state = Joined

	// joined flows straight into publishing the camera
	if err := p.offerLocked(ctx, camera); err != nil {
		p.state = Joined
		return err
	}
	p.active = camera
	p.preview.Bind(camera)
	p.state = Publishing
	return nil
}

// ToggleMic flips the microphone without releasing the device: the track
// is only disabled locally and a lightweight configure update goes out.
func (p *Publisher) ToggleMic(ctx context.Context, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Publishing && p.state != ScreenSharing {
		return fmt.Errorf("%w: toggle in %s", ErrBadState, p.state)
	}
	if track := p.active.Audio(); track != nil {
		track.SetEnabled(on)
	}
	if _, err := p.handle.Message(ctx, &gateway.Configure{Request: "configure", Audio: &on}, nil); err != nil {
		p.log.Warn().Err(err).Msg("configure update")
	}
	return nil
}

// ToggleCam flips the camera the same way. During a screen share the
// camera is not the outbound video, so only the choice is recorded,
// to be applied when the share stops.
func (p *Publisher) ToggleCam(ctx context.Context, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Publishing && p.state != ScreenSharing {
		return fmt.Errorf("%w: toggle in %s", ErrBadState, p.state)
	}
	p.camOn = on
	if p.state != Publishing {
		return nil
	}
	if track := p.camera.Video(); track != nil {
		track.SetEnabled(on)
	}
	if _, err := p.handle.Message(ctx, &gateway.Configure{Request: "configure", Video: &on}, nil); err != nil {
		p.log.Warn().Err(err).Msg("configure update")
	}
	return nil
}

// StartScreenShare swaps the outbound video to a screen capture track
// composed with the original microphone. The camera video is disabled,
// not stopped, so it stays resumable. A capture refusal aborts the
// transition and leaves the publisher publishing the camera.
func (p *Publisher) StartScreenShare(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Publishing {
		return fmt.Errorf("%w: screen share in %s", ErrBadState, p.state)
	}

	screen, err := p.capture.Screen(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	composed := media.Compose(screen.Video(), p.camera.Audio())
	p.camera.Video().SetEnabled(false)

	if err := p.offerLocked(ctx, composed); err != nil {
		screen.Stop()
		p.camera.Video().SetEnabled(p.camOn)
		return err
	}
	metricRenegotiations.Inc()

	// the OS-level stop-sharing control ends the track externally and
	// must drive the same transition as an explicit stop
	screen.Video().OnEnded(func() {
		if err := p.StopScreenShare(context.Background()); err != nil && !errors.Is(err, ErrBadState) {
			p.log.Warn().Err(err).Msg("screen share external stop")
		}
	})

	p.screen = screen
	p.active = composed
	p.preview.Bind(composed)
	p.state = ScreenSharing
	return nil
}

// StopScreenShare stops the screen track, restores the camera video to
// the user's last choice, renegotiates back to the camera stream and
// rebinds the preview.
func (p *Publisher) StopScreenShare(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != ScreenSharing {
		return fmt.Errorf("%w: stop screen share in %s", ErrBadState, p.state)
	}
	p.screen.Stop()
	p.screen = nil
	p.camera.Video().SetEnabled(p.camOn)

	if err := p.offerLocked(ctx, p.camera); err != nil {
		// screen track is gone either way; fall back to the camera locally
		p.log.Error().Err(err).Msg("renegotiation back to camera")
	}
	metricRenegotiations.Inc()
	p.active = p.camera
	p.preview.Bind(p.camera)
	p.state = Publishing
	return nil
}

// Unpublish withdraws the feed so remote rosters converge before the
// gateway notices the connection is gone. Best effort.
func (p *Publisher) Unpublish(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Publishing && p.state != ScreenSharing {
		return
	}
	if _, err := p.handle.Message(ctx, gateway.NewUnpublish(), nil); err != nil {
		p.log.Debug().Err(err).Msg("unpublish")
	}
}

// Close releases everything the publisher holds: screen first, then
// camera, plugin handle, peer connection. Idempotent.
func (p *Publisher) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PublisherEnded {
		return
	}
	p.state = PublisherEnded
	if p.screen != nil {
		p.screen.Stop()
		p.screen = nil
	}
	if p.camera != nil {
		p.camera.Stop()
		p.camera = nil
	}
	p.active = nil
	if err := p.handle.Detach(ctx); err != nil && !errors.Is(err, gateway.ErrClosed) {
		p.log.Debug().Err(err).Msg("publisher detach")
	}
	if err := p.peer.Close(); err != nil {
		p.log.Debug().Err(err).Msg("publisher peer close")
	}
}

// offerLocked pushes the stream's tracks into the peer connection and,
// unless every track was replaced on an existing sender, runs a full
// offer/answer exchange carrying a configure request.
func (p *Publisher) offerLocked(ctx context.Context, stream *media.Stream) error {
	allReplaced := true
	for _, track := range stream.Tracks() {
		replaced, err := p.peer.Upsert(track.Local())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNegotiation, err)
		}
		allReplaced = allReplaced && replaced
	}

	audio := stream.Audio() != nil && stream.Audio().Enabled()
	video := stream.Video() != nil && stream.Video().Enabled()
	body := gateway.NewConfigure(&audio, &video)

	if allReplaced {
		// senders reused, no new transceivers: a configure message
		// without a new offer is enough
		if _, err := p.handle.Message(ctx, body, nil); err != nil {
			return fmt.Errorf("%w: %v", ErrNegotiation, err)
		}
		return nil
	}

	err := p.peer.Negotiate(ctx, func(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
		ev, err := p.handle.Message(ctx, body, rtc.JsepFrom(offer))
		if err != nil {
			return webrtc.SessionDescription{}, err
		}
		return rtc.FromJsep(ev.Jsep)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	return nil
}
