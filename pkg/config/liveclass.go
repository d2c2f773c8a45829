package config

import (
	"time"

	"github.com/spf13/pflag"
)

type (
	// Liveclass is the root configuration of the lecture client.
	Liveclass struct {
		Backend    Backend
		Gateway    Gateway
		Media      Media
		Monitoring Monitoring
		Roster     Roster
		Session    Session
		Webrtc     Webrtc
		Debug      bool
	}
	Backend struct {
		// Url is the base address of the lecture REST backend.
		Url string
		// PushUrl is the base address of the server push (SSE) endpoint.
		PushUrl string
		// RequestTimeoutSec bounds every REST call.
		RequestTimeoutSec int
	}
	Gateway struct {
		// Url overrides the gateway address from the bootstrap response
		// (useful for local setups behind a proxy).
		Url string
		// CallTimeoutSec bounds every request/reply exchange with the gateway.
		CallTimeoutSec int
		// KeepaliveSec is the session keepalive period.
		KeepaliveSec int
	}
	Media struct {
		Width     int
		Height    int
		FrameRate int
		// DisableAudio skips microphone acquisition (video-only capture).
		DisableAudio bool
	}
	Monitoring struct {
		Port             int
		URLPrefix        string
		MetricEnabled    bool `fig:"metric_enabled"`
		ProfilingEnabled bool `fig:"profiling_enabled"`
	}
	Roster struct {
		PollIntervalMs int
	}
	Session struct {
		// Role the client expects to play: mentor or mentee.
		// The bootstrap response stays authoritative.
		Role        string
		DisplayName string
	}
	Webrtc struct {
		DisableDefaultInterceptors bool
		IceServers                 []IceServer
		IcePorts                   struct {
			Min uint16
			Max uint16
		}
		LogLevel int
	}
	IceServer struct {
		Urls       string `json:"urls,omitempty"`
		Username   string `json:"username,omitempty"`
		Credential string `json:"credential,omitempty"`
	}
)

func (w *Webrtc) HasPortRange() bool { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }

func (m *Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

func (b *Backend) RequestTimeout() time.Duration {
	if b.RequestTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(b.RequestTimeoutSec) * time.Second
}

func (g *Gateway) CallTimeout() time.Duration {
	if g.CallTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(g.CallTimeoutSec) * time.Second
}

func (g *Gateway) Keepalive() time.Duration {
	if g.KeepaliveSec <= 0 {
		return 25 * time.Second
	}
	return time.Duration(g.KeepaliveSec) * time.Second
}

func (r *Roster) PollInterval() time.Duration {
	if r.PollIntervalMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(r.PollIntervalMs) * time.Millisecond
}

// allows custom config path
var configPath string

func NewLiveclassConfig() (conf Liveclass) {
	_ = LoadConfig(&conf, configPath)
	return
}

func (c *Liveclass) ParseFlags() {
	c.WithFlags(pflag.CommandLine)
	pflag.Parse()
}

func (c *Liveclass) WithFlags(fs *pflag.FlagSet) *Liveclass {
	fs.StringVar(&c.Backend.Url, "backend", c.Backend.Url, "Lecture backend address")
	fs.StringVar(&c.Session.Role, "role", c.Session.Role, "Expected session role: [mentor, mentee]")
	fs.StringVar(&c.Session.DisplayName, "name", c.Session.DisplayName, "Display name override")
	fs.IntVar(&c.Monitoring.Port, "monitoring.port", c.Monitoring.Port, "Monitoring server port")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Verbose logs")
	fs.StringVarP(&configPath, "conf", "c", configPath, "Set custom configuration file path")
	return c
}
