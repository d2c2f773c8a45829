package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Track owns one local capture track. Enabled is a cheap mute flag that
// never releases the device; Stop releases the device handle for good.
type Track struct {
	local webrtc.TrackLocal
	id    string
	kind  webrtc.RTPCodecType

	enabled atomic.Bool
	live    atomic.Bool

	stopOnce sync.Once
	stop     func() error

	mu      sync.Mutex
	onEnded func()
}

// NewTrack wraps a local track. The stop func releases the underlying
// device handle and is called at most once.
func NewTrack(local webrtc.TrackLocal, id string, kind webrtc.RTPCodecType, stop func() error) *Track {
	t := &Track{local: local, id: id, kind: kind, stop: stop}
	t.enabled.Store(true)
	t.live.Store(true)
	return t
}

func (t *Track) Id() string                { return t.id }
func (t *Track) Kind() webrtc.RTPCodecType { return t.kind }
func (t *Track) Local() webrtc.TrackLocal  { return t.local }
func (t *Track) Enabled() bool             { return t.enabled.Load() }
func (t *Track) SetEnabled(on bool)        { t.enabled.Store(on) }
func (t *Track) Live() bool                { return t.live.Load() }

// OnEnded registers a callback fired when the track ends outside of Stop,
// e.g. the OS-level stop-sharing control cutting a screen capture.
func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

// Ended marks an external termination and fires the OnEnded callback.
// A track already stopped by its owner stays silent.
func (t *Track) Ended() {
	if !t.live.CompareAndSwap(true, false) {
		return
	}
	t.mu.Lock()
	fn := t.onEnded
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Stop releases the device handle. Idempotent.
func (t *Track) Stop() (err error) {
	t.stopOnce.Do(func() {
		t.live.Store(false)
		if t.stop != nil {
			err = t.stop()
		}
	})
	return
}
