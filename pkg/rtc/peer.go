package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mentori/liveclass/pkg/gateway"
	"github.com/mentori/liveclass/pkg/logger"
	"github.com/pion/webrtc/v4"
)

var errNoLocalDescription = errors.New("rtc: no local description after gathering")

// Peer wraps one peer connection. All offer/answer work for a peer runs
// under one lock: a second negotiation never starts before the previous
// exchange completes.
type Peer struct {
	log *logger.Logger
	pc  *webrtc.PeerConnection

	negotiation sync.Mutex

	mu      sync.Mutex
	senders map[webrtc.RTPCodecType]*webrtc.RTPSender

	closeOnce sync.Once
}

// NewPeer creates a sending-side peer.
func (f *ApiFactory) NewPeer(log *logger.Logger) (*Peer, error) {
	pc, err := f.api.NewPeerConnection(f.conf)
	if err != nil {
		return nil, err
	}
	return &Peer{log: log, pc: pc, senders: make(map[webrtc.RTPCodecType]*webrtc.RTPSender)}, nil
}

// NewReceivingPeer creates a peer with receive-only audio and video
// transceivers, for answering a subscriber-side offer.
func (f *ApiFactory) NewReceivingPeer(log *logger.Logger) (*Peer, error) {
	p, err := f.NewPeer(log)
	if err != nil {
		return nil, err
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err = p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	return p, nil
}

// Upsert attaches the track to the connection. The provider attaches
// transceivers on the first offer and reuses them afterwards, so an
// existing sender of the same kind gets a track replacement instead of
// a new transceiver; the caller can skip a full renegotiation when every
// track was replaced in place.
func (p *Peer) Upsert(track webrtc.TrackLocal) (replaced bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sender, ok := p.senders[track.Kind()]; ok {
		return true, sender.ReplaceTrack(track)
	}
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return false, err
	}
	p.senders[track.Kind()] = sender
	return false, nil
}

// Negotiate runs one full offer/answer exchange: the exchange callback
// delivers the local offer to the remote side and returns its answer.
func (p *Peer) Negotiate(ctx context.Context, exchange func(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)) error {
	p.negotiation.Lock()
	defer p.negotiation.Unlock()

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("rtc: create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err = p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("rtc: set local offer: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}
	local := p.pc.LocalDescription()
	if local == nil {
		return errNoLocalDescription
	}
	answer, err := exchange(*local)
	if err != nil {
		return err
	}
	if err = p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("rtc: set remote answer: %w", err)
	}
	return nil
}

// Answer accepts a remote offer and produces the local answer.
func (p *Peer) Answer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	p.negotiation.Lock()
	defer p.negotiation.Unlock()

	var none webrtc.SessionDescription
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return none, fmt.Errorf("rtc: set remote offer: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return none, fmt.Errorf("rtc: create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err = p.pc.SetLocalDescription(answer); err != nil {
		return none, fmt.Errorf("rtc: set local answer: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return none, ctx.Err()
	}
	local := p.pc.LocalDescription()
	if local == nil {
		return none, errNoLocalDescription
	}
	return *local, nil
}

// OnTrack fires for every inbound track.
func (p *Peer) OnTrack(fn func(track *webrtc.TrackRemote)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) { fn(track) })
}

func (p *Peer) Close() (err error) {
	p.closeOnce.Do(func() { err = p.pc.Close() })
	return
}

// JsepFrom converts a local description into its gateway form.
func JsepFrom(sd webrtc.SessionDescription) *gateway.Jsep {
	return &gateway.Jsep{Type: sd.Type.String(), SDP: sd.SDP}
}

// FromJsep converts a gateway session description into its pion form.
func FromJsep(j *gateway.Jsep) (webrtc.SessionDescription, error) {
	if j == nil {
		return webrtc.SessionDescription{}, errors.New("rtc: missing session description")
	}
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(j.Type), SDP: j.SDP}, nil
}
