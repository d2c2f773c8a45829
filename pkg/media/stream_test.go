package media

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

func videoTrack(t *testing.T, id string, stopped *int) *Track {
	t.Helper()
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, "test")
	if err != nil {
		t.Fatalf("track %s: %v", id, err)
	}
	return NewTrack(local, id, webrtc.RTPCodecTypeVideo, func() error {
		if stopped != nil {
			*stopped++
		}
		return nil
	})
}

func audioTrack(t *testing.T, id string, stopped *int) *Track {
	t.Helper()
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, id, "test")
	if err != nil {
		t.Fatalf("track %s: %v", id, err)
	}
	return NewTrack(local, id, webrtc.RTPCodecTypeAudio, func() error {
		if stopped != nil {
			*stopped++
		}
		return nil
	})
}

func TestTrackStopIsIdempotent(t *testing.T) {
	var stopped int
	tr := videoTrack(t, "cam", &stopped)
	if !tr.Live() {
		t.Fatal("fresh track should be live")
	}
	_ = tr.Stop()
	_ = tr.Stop()
	if stopped != 1 {
		t.Fatalf("stop func ran %d times, want 1", stopped)
	}
	if tr.Live() {
		t.Fatal("stopped track should not be live")
	}
}

func TestTrackDisableDoesNotStop(t *testing.T) {
	var stopped int
	tr := videoTrack(t, "cam", &stopped)
	tr.SetEnabled(false)
	if stopped != 0 || !tr.Live() {
		t.Fatal("disabling must never release the device")
	}
	tr.SetEnabled(true)
	if !tr.Enabled() {
		t.Fatal("track should be enabled again")
	}
}

func TestTrackEndedFiresOnceAndNotAfterStop(t *testing.T) {
	var fired int
	tr := videoTrack(t, "screen", nil)
	tr.OnEnded(func() { fired++ })
	tr.Ended()
	tr.Ended()
	if fired != 1 {
		t.Fatalf("OnEnded fired %d times, want 1", fired)
	}

	var fired2 int
	tr2 := videoTrack(t, "screen2", nil)
	tr2.OnEnded(func() { fired2++ })
	_ = tr2.Stop()
	tr2.Ended()
	if fired2 != 0 {
		t.Fatal("a track stopped by its owner must stay silent")
	}
}

func TestComposedStreamBorrowsAudio(t *testing.T) {
	var camStops, micStops, screenStops int
	cam := videoTrack(t, "cam", &camStops)
	mic := audioTrack(t, "mic", &micStops)
	camera := NewStream(cam, mic)

	screen := videoTrack(t, "screen", &screenStops)
	composed := Compose(screen, camera.Audio())

	composed.Stop()
	if screenStops != 1 {
		t.Fatal("composed stream must stop its own video")
	}
	if micStops != 0 {
		t.Fatal("composed stream must not stop the borrowed microphone")
	}
	if !camera.Live() {
		t.Fatal("camera stream should still be live")
	}

	camera.Stop()
	if camStops != 1 || micStops != 1 {
		t.Fatalf("camera stream owns both tracks, got cam=%d mic=%d", camStops, micStops)
	}
	if camera.Live() {
		t.Fatal("camera should not be live after stop")
	}
}

func TestStreamTracksOrder(t *testing.T) {
	cam := videoTrack(t, "cam", nil)
	mic := audioTrack(t, "mic", nil)
	s := NewStream(cam, mic)
	tracks := s.Tracks()
	if len(tracks) != 2 || tracks[0].Kind() != webrtc.RTPCodecTypeAudio {
		t.Fatalf("unexpected track order: %v", tracks)
	}
	if len(s.Locals()) != 2 {
		t.Fatal("locals should mirror tracks")
	}
}

func TestVideoOnlyStream(t *testing.T) {
	cam := videoTrack(t, "cam", nil)
	s := NewStream(cam, nil)
	if s.Audio() != nil {
		t.Fatal("no audio expected")
	}
	s.Stop()
	if s.Live() {
		t.Fatal("stream should be fully stopped")
	}
}

func TestRemoteStreamAccumulates(t *testing.T) {
	r := NewRemoteStream()
	if r.Len() != 0 {
		t.Fatal("fresh remote stream should be empty")
	}
	// TrackRemote cannot be constructed directly; Put/Remove bookkeeping
	// is covered through the id map.
	r.Remove("nope")
	if r.Len() != 0 {
		t.Fatal("removing an unknown id should be a no-op")
	}
}
