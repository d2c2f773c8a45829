package media

import (
	"sync"
	"sync/atomic"

	"github.com/mentori/liveclass/pkg/logger"
	"github.com/pion/webrtc/v4"
)

// TrackStats is the per-track counter snapshot of an RTPSink.
type TrackStats struct {
	Kind    webrtc.RTPCodecType
	Packets uint64
	Bytes   uint64
}

// RTPSink is a RemoteSurface that drains bound tracks and counts what
// flowed through. The recording pipeline itself lives server-side; the
// sink only observes, so a headless viewer still consumes inbound media
// instead of letting the receive buffers back up.
type RTPSink struct {
	Log *logger.Logger

	mu      sync.Mutex
	readers map[string]*trackReader
}

type trackReader struct {
	kind    webrtc.RTPCodecType
	packets atomic.Uint64
	bytes   atomic.Uint64
	stop    chan struct{}
}

func NewRTPSink(log *logger.Logger) *RTPSink {
	return &RTPSink{Log: log, readers: make(map[string]*trackReader)}
}

func (s *RTPSink) Bind(r *RemoteStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, t := range r.Tracks() {
		seen[t.ID()] = struct{}{}
		if _, ok := s.readers[t.ID()]; ok {
			continue
		}
		tr := &trackReader{kind: t.Kind(), stop: make(chan struct{})}
		s.readers[t.ID()] = tr
		go tr.drain(t)
	}
	for id, tr := range s.readers {
		if _, ok := seen[id]; !ok {
			close(tr.stop)
			delete(s.readers, id)
		}
	}
}

func (s *RTPSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, tr := range s.readers {
		close(tr.stop)
		delete(s.readers, id)
	}
	if s.Log != nil {
		s.Log.Debug().Msg("rtp sink cleared")
	}
}

// Stats snapshots the counters of the currently bound tracks, keyed by
// track id.
func (s *RTPSink) Stats() map[string]TrackStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TrackStats, len(s.readers))
	for id, tr := range s.readers {
		out[id] = TrackStats{
			Kind:    tr.kind,
			Packets: tr.packets.Load(),
			Bytes:   tr.bytes.Load(),
		}
	}
	return out
}

func (tr *trackReader) drain(t *webrtc.TrackRemote) {
	for {
		select {
		case <-tr.stop:
			return
		default:
		}
		pkt, _, err := t.ReadRTP()
		if err != nil {
			return
		}
		tr.packets.Add(1)
		tr.bytes.Add(uint64(pkt.MarshalSize()))
	}
}
