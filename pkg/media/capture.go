package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/mentori/liveclass/pkg/config"
	"github.com/mentori/liveclass/pkg/logger"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // camera adapter registration
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // microphone adapter registration
	_ "github.com/pion/mediadevices/pkg/driver/screen"     // screen adapter registration
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

var ErrNoVideo = errors.New("media: capture produced no video track")

// Capturer acquires local media. The device capture implementation talks
// to real drivers; tests substitute their own.
type Capturer interface {
	// Camera opens the camera and, unless disabled, the microphone.
	Camera(ctx context.Context) (*Stream, error)
	// Screen opens a screen capture video track (no audio).
	Screen(ctx context.Context) (*Stream, error)
}

// DeviceCapture acquires camera/microphone/screen streams from the
// local devices. The camera/microphone pair is a singleton resource:
// release the previous stream fully before acquiring again.
type DeviceCapture struct {
	conf     config.Media
	log      *logger.Logger
	selector *mediadevices.CodecSelector
}

func NewDeviceCapture(conf config.Media, log *logger.Logger) (*DeviceCapture, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("media: vp8 encoder: %w", err)
	}
	vpxParams.BitRate = 1_000_000
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("media: opus encoder: %w", err)
	}
	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return &DeviceCapture{conf: conf, log: log, selector: selector}, nil
}

func (d *DeviceCapture) Camera(_ context.Context) (*Stream, error) {
	constraints := mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			d.applyVideoProps(c)
		},
		Codec: d.selector,
	}
	if !d.conf.DisableAudio {
		constraints.Audio = func(c *mediadevices.MediaTrackConstraints) {}
	}
	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("media: user media: %w", err)
	}
	return d.wrap(ms)
}

func (d *DeviceCapture) Screen(_ context.Context) (*Stream, error) {
	ms, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			d.applyVideoProps(c)
		},
		Codec: d.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("media: display media: %w", err)
	}
	return d.wrap(ms)
}

func (d *DeviceCapture) applyVideoProps(c *mediadevices.MediaTrackConstraints) {
	if d.conf.Width > 0 {
		c.Width = prop.Int(d.conf.Width)
	}
	if d.conf.Height > 0 {
		c.Height = prop.Int(d.conf.Height)
	}
	if d.conf.FrameRate > 0 {
		c.FrameRate = prop.Float(float32(d.conf.FrameRate))
	}
}

func (d *DeviceCapture) wrap(ms mediadevices.MediaStream) (*Stream, error) {
	var video, audio *Track
	for _, mt := range ms.GetTracks() {
		mt := mt
		t := NewTrack(mt, mt.ID(), mt.Kind(), mt.Close)
		mt.OnEnded(func(err error) {
			if err != nil {
				d.log.Debug().Err(err).Msgf("track %s ended", mt.ID())
			}
			t.Ended()
		})
		switch t.Kind() {
		case webrtc.RTPCodecTypeVideo:
			video = t
		case webrtc.RTPCodecTypeAudio:
			audio = t
		}
	}
	if video == nil {
		for _, mt := range ms.GetTracks() {
			_ = mt.Close()
		}
		return nil, ErrNoVideo
	}
	return NewStream(video, audio), nil
}
