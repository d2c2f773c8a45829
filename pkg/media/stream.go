package media

import (
	"github.com/pion/webrtc/v4"
)

// Stream groups at most one video and one audio track. Exactly one
// active published stream exists per publisher at a time; replacing it
// must stop the replaced stream's owned tracks (device handles leak
// otherwise). A composed stream borrows its audio track and leaves it
// untouched on Stop.
type Stream struct {
	video     *Track
	audio     *Track
	ownsAudio bool
}

func NewStream(video, audio *Track) *Stream {
	return &Stream{video: video, audio: audio, ownsAudio: audio != nil}
}

// Compose pairs a fresh video track with an audio track owned by another
// stream (screen share keeps the original microphone).
func Compose(video *Track, borrowedAudio *Track) *Stream {
	return &Stream{video: video, audio: borrowedAudio}
}

func (s *Stream) Video() *Track { return s.video }
func (s *Stream) Audio() *Track { return s.audio }

func (s *Stream) Tracks() (out []*Track) {
	if s.audio != nil {
		out = append(out, s.audio)
	}
	if s.video != nil {
		out = append(out, s.video)
	}
	return
}

// Locals returns the pion-facing tracks for negotiation.
func (s *Stream) Locals() (out []webrtc.TrackLocal) {
	for _, t := range s.Tracks() {
		out = append(out, t.Local())
	}
	return
}

// Stop releases every owned track. Borrowed tracks stay live.
func (s *Stream) Stop() {
	if s.video != nil {
		_ = s.video.Stop()
	}
	if s.audio != nil && s.ownsAudio {
		_ = s.audio.Stop()
	}
}

// Live reports whether any owned track still holds its device.
func (s *Stream) Live() bool {
	if s.video != nil && s.video.Live() {
		return true
	}
	return s.audio != nil && s.ownsAudio && s.audio.Live()
}
