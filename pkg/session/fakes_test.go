package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mentori/liveclass/pkg/api"
	"github.com/mentori/liveclass/pkg/gateway"
	"github.com/mentori/liveclass/pkg/media"
	"github.com/pion/webrtc/v4"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// --- media fakes -----------------------------------------------------

func newLocalTrack(t *testing.T, id string, kind webrtc.RTPCodecType) *media.Track {
	t.Helper()
	mime := webrtc.MimeTypeVP8
	if kind == webrtc.RTPCodecTypeAudio {
		mime = webrtc.MimeTypeOpus
	}
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, "fake")
	if err != nil {
		t.Fatalf("local track %s: %v", id, err)
	}
	return media.NewTrack(local, id, kind, func() error { return nil })
}

type fakeCapture struct {
	t         *testing.T
	mu        sync.Mutex
	cameraErr error
	screenErr error
	streams   []*media.Stream
	cameras   int
	screens   int
}

func (f *fakeCapture) Camera(context.Context) (*media.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cameraErr != nil {
		return nil, f.cameraErr
	}
	f.cameras++
	s := media.NewStream(
		newLocalTrack(f.t, "cam", webrtc.RTPCodecTypeVideo),
		newLocalTrack(f.t, "mic", webrtc.RTPCodecTypeAudio))
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeCapture) Screen(context.Context) (*media.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.screenErr != nil {
		return nil, f.screenErr
	}
	f.screens++
	s := media.NewStream(newLocalTrack(f.t, "screen", webrtc.RTPCodecTypeVideo), nil)
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeCapture) liveTracks() (n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.streams {
		for _, tr := range s.Tracks() {
			if tr.Live() {
				n++
			}
		}
	}
	return
}

type recordingPreview struct {
	mu     sync.Mutex
	bound  []*media.Stream
	clears int
}

func (p *recordingPreview) Bind(s *media.Stream) {
	p.mu.Lock()
	p.bound = append(p.bound, s)
	p.mu.Unlock()
}

func (p *recordingPreview) Clear() {
	p.mu.Lock()
	p.clears++
	p.mu.Unlock()
}

func (p *recordingPreview) last() *media.Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.bound) == 0 {
		return nil
	}
	return p.bound[len(p.bound)-1]
}

type recordingView struct {
	mu     sync.Mutex
	bound  []*media.RemoteStream
	clears int
}

func (v *recordingView) Bind(r *media.RemoteStream) {
	v.mu.Lock()
	v.bound = append(v.bound, r)
	v.mu.Unlock()
}

func (v *recordingView) Clear() {
	v.mu.Lock()
	v.clears++
	v.mu.Unlock()
}

// --- gateway fakes ---------------------------------------------------

// fakePlugin answers plugin requests by body type and records them.
type fakePlugin struct {
	mu       sync.Mutex
	bodies   []any
	events   chan gateway.Event
	detached bool

	feed         gateway.FeedId
	participants []gateway.ParticipantInfo
	messageErr   error
}

func newFakePlugin(feed gateway.FeedId) *fakePlugin {
	return &fakePlugin{feed: feed, events: make(chan gateway.Event, 16)}
}

func (p *fakePlugin) Message(_ context.Context, body any, _ *gateway.Jsep) (gateway.Event, error) {
	p.mu.Lock()
	p.bodies = append(p.bodies, body)
	err := p.messageErr
	feed := p.feed
	parts := p.participants
	p.mu.Unlock()
	if err != nil {
		return gateway.Event{}, err
	}

	answer := &gateway.Jsep{Type: "answer", SDP: "v=0 answer"}
	offer := &gateway.Jsep{Type: "offer", SDP: "v=0 offer"}
	switch body.(type) {
	case gateway.JoinPublisher:
		return gateway.Event{Room: gateway.VideoRoomData{VideoRoom: "joined", Id: feed}}, nil
	case gateway.JoinSubscriber:
		return gateway.Event{Room: gateway.VideoRoomData{VideoRoom: "attached"}, Jsep: offer}, nil
	case gateway.Configure, *gateway.Configure:
		return gateway.Event{Room: gateway.VideoRoomData{VideoRoom: "event", Configured: "ok"}, Jsep: answer}, nil
	case gateway.Start:
		return gateway.Event{Room: gateway.VideoRoomData{VideoRoom: "event", Started: "ok"}}, nil
	case gateway.ListParticipants:
		return gateway.Event{Room: gateway.VideoRoomData{VideoRoom: "participants", Participants: parts}}, nil
	default:
		return gateway.Event{Room: gateway.VideoRoomData{VideoRoom: "event"}}, nil
	}
}

func (p *fakePlugin) Events() <-chan gateway.Event { return p.events }

func (p *fakePlugin) Detach(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.detached {
		p.detached = true
		close(p.events)
	}
	return nil
}

func (p *fakePlugin) sent() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.bodies...)
}

func (p *fakePlugin) setParticipants(parts []gateway.ParticipantInfo) {
	p.mu.Lock()
	p.participants = parts
	p.mu.Unlock()
}

type fakeConn struct {
	mu        sync.Mutex
	plugins   []*fakePlugin
	destroyed int
	done      chan struct{}

	feed gateway.FeedId // feed id handed to publisher joins
}

func newFakeConn(feed gateway.FeedId) *fakeConn {
	return &fakeConn{feed: feed, done: make(chan struct{})}
}

func (c *fakeConn) Attach(context.Context, string) (Plugin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := newFakePlugin(c.feed)
	c.plugins = append(c.plugins, p)
	return p, nil
}

func (c *fakeConn) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed++
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) attached() []*fakePlugin {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakePlugin(nil), c.plugins...)
}

// --- rtc fakes -------------------------------------------------------

type fakePeer struct {
	mu      sync.Mutex
	kinds   map[string]bool // mime type -> sender exists
	offers  int
	answers int
	closed  int
	onTrack func(*webrtc.TrackRemote)
}

func newFakePeer() *fakePeer { return &fakePeer{kinds: make(map[string]bool)} }

func (p *fakePeer) Upsert(track webrtc.TrackLocal) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kind := track.Kind().String()
	replaced := p.kinds[kind]
	p.kinds[kind] = true
	return replaced, nil
}

func (p *fakePeer) Negotiate(_ context.Context, exchange func(webrtc.SessionDescription) (webrtc.SessionDescription, error)) error {
	p.mu.Lock()
	p.offers++
	p.mu.Unlock()
	answer, err := exchange(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 local"})
	if err != nil {
		return err
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		return errors.New("fake peer: expected an answer")
	}
	return nil
}

func (p *fakePeer) Answer(context.Context, webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	p.answers++
	p.mu.Unlock()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 local answer"}, nil
}

func (p *fakePeer) OnTrack(fn func(*webrtc.TrackRemote)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return nil
}

type fakePeers struct {
	mu    sync.Mutex
	peers []*fakePeer
}

func (f *fakePeers) NewPeer() (Peer, error)          { return f.add(), nil }
func (f *fakePeers) NewReceivingPeer() (Peer, error) { return f.add(), nil }

func (f *fakePeers) add() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := newFakePeer()
	f.peers = append(f.peers, p)
	return p
}

// --- backend and push fakes ------------------------------------------

type fakeBackend struct {
	mu         sync.Mutex
	info       api.SessionInfo
	bootErr    error
	bootBlock  chan struct{} // when set, Bootstrap waits on it
	boots      int
	ends       int
	recordings int
	recording  api.Recording
	recErr     error
}

func (b *fakeBackend) Bootstrap(context.Context, string) (api.SessionInfo, error) {
	b.mu.Lock()
	block := b.bootBlock
	b.mu.Unlock()
	if block != nil {
		<-block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.boots++
	if b.bootErr != nil {
		return api.SessionInfo{}, b.bootErr
	}
	return b.info, nil
}

func (b *fakeBackend) End(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ends++
	return nil
}

func (b *fakeBackend) Recording(context.Context, string) (api.Recording, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recordings++
	return b.recording, b.recErr
}

func (b *fakeBackend) counts() (boots, ends, recs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.boots, b.ends, b.recordings
}

type fakePush struct {
	events chan api.PushEvent
	once   sync.Once
	closes chan struct{}
}

func newFakePush() *fakePush {
	return &fakePush{events: make(chan api.PushEvent, 4), closes: make(chan struct{})}
}

func (p *fakePush) Events() <-chan api.PushEvent { return p.events }
func (p *fakePush) Close()                       { p.once.Do(func() { close(p.closes) }) }

func (p *fakePush) closed() bool {
	select {
	case <-p.closes:
		return true
	default:
		return false
	}
}
