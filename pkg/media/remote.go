package media

import (
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"
)

// RemoteStream accumulates inbound tracks one by one into a single
// stream object, whichever way the gateway delivers them.
type RemoteStream struct {
	mu     sync.Mutex
	tracks map[string]*webrtc.TrackRemote
}

func NewRemoteStream() *RemoteStream {
	return &RemoteStream{tracks: make(map[string]*webrtc.TrackRemote)}
}

func (r *RemoteStream) Put(t *webrtc.TrackRemote) {
	r.mu.Lock()
	r.tracks[t.ID()] = t
	r.mu.Unlock()
}

func (r *RemoteStream) Remove(id string) {
	r.mu.Lock()
	delete(r.tracks, id)
	r.mu.Unlock()
}

func (r *RemoteStream) Tracks() []*webrtc.TrackRemote {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*webrtc.TrackRemote, 0, len(r.tracks))
	for _, t := range r.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *RemoteStream) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracks)
}
