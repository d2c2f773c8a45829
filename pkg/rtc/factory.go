// Package rtc wraps pion: one shared API factory per process and a
// peer-connection wrapper with serialized negotiation.
package rtc

import (
	"github.com/mentori/liveclass/pkg/config"
	"github.com/mentori/liveclass/pkg/logger"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

type ApiFactory struct {
	api  *webrtc.API
	conf webrtc.Configuration
	log  *logger.Logger
}

func NewApiFactory(conf config.Webrtc, log *logger.Logger) (*ApiFactory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if !conf.DisableDefaultInterceptors {
		if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
			return nil, err
		}
	}
	customLogger := logger.NewPionLogger(log, conf.LogLevel)
	s := webrtc.SettingEngine{LoggerFactory: customLogger}
	if conf.HasPortRange() {
		if err := s.SetEphemeralUDPPortRange(conf.IcePorts.Min, conf.IcePorts.Max); err != nil {
			return nil, err
		}
	}

	peerConf := webrtc.Configuration{}
	for _, server := range conf.IceServers {
		peerConf.ICEServers = append(peerConf.ICEServers, webrtc.ICEServer{
			URLs:       []string{server.Urls},
			Username:   server.Username,
			Credential: server.Credential,
		})
	}

	return &ApiFactory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(i),
			webrtc.WithSettingEngine(s),
		),
		conf: peerConf,
		log:  log,
	}, nil
}
