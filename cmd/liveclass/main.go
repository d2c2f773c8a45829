package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mentori/liveclass/pkg/api"
	"github.com/mentori/liveclass/pkg/backend"
	"github.com/mentori/liveclass/pkg/chat"
	"github.com/mentori/liveclass/pkg/config"
	"github.com/mentori/liveclass/pkg/logger"
	"github.com/mentori/liveclass/pkg/media"
	"github.com/mentori/liveclass/pkg/monitoring"
	"github.com/mentori/liveclass/pkg/push"
	"github.com/mentori/liveclass/pkg/rtc"
	"github.com/mentori/liveclass/pkg/service"
	"github.com/mentori/liveclass/pkg/session"
	flag "github.com/spf13/pflag"
)

var Version = "dev"

const shutdownTimeout = 10 * time.Second

func run() error {
	conf := config.NewLiveclassConfig()
	conf.ParseFlags()
	if flag.NArg() < 1 {
		return fmt.Errorf("usage: liveclass [flags] <lecture-id>")
	}
	lecture := flag.Arg(0)

	log := logger.NewConsole(conf.Debug, "lc", false)
	log.Info().Msgf("version: %v", Version)

	role := api.Role(strings.ToUpper(conf.Session.Role))
	if !role.Valid() {
		return fmt.Errorf("unknown role %q, want mentor or mentee", conf.Session.Role)
	}

	services := service.Group{}
	if conf.Monitoring.IsEnabled() {
		services.Add(monitoring.New(conf.Monitoring, "lc", log))
	}
	services.Start()
	shutdown := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return services.Shutdown(ctx)
	}

	capture, err := media.NewDeviceCapture(conf.Media, log)
	if err != nil {
		return fmt.Errorf("media init: %w", err)
	}
	factory, err := rtc.NewApiFactory(conf.Webrtc, log)
	if err != nil {
		return fmt.Errorf("webrtc init: %w", err)
	}

	dial := session.GatewayDialer(conf.Gateway, log)
	if conf.Gateway.Url != "" {
		// local setups route all sessions through one gateway address
		direct := dial
		dial = func(ctx context.Context, _ string) (session.GatewayConn, error) {
			return direct(ctx, conf.Gateway.Url)
		}
	}

	rest := backend.NewClient(conf.Backend, log)
	view := media.NewRTPSink(log)
	ctl := session.NewController(role, session.Deps{
		Backend: rest,
		Dial:    dial,
		Peers:   session.Peers(factory, log),
		Push:    session.PushListener(conf.Backend, log),
		Capture: capture,
		Preview: media.NopLocalSurface{},
		View:    view,
	}, conf.Roster.PollInterval(), conf.Gateway.CallTimeout(), log)

	ended := make(chan struct{}, 1)
	ctl.OnSessionEnded(func(rec *api.Recording) {
		if rec != nil && rec.Status == api.RecordingReady {
			log.Info().Msgf("lecture recording: %v", rec.Url)
		}
		ended <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startErr := ctl.Start(ctx, lecture)
	for attempt, wait := 1, time.Second; attempt < 3 && errors.Is(startErr, session.ErrGatewayConnect); attempt++ {
		// the engine never retries on its own; an unreachable gateway
		// is worth a couple of attempts before giving up
		log.Warn().Err(startErr).Msgf("retrying in %v", wait)
		time.Sleep(wait)
		startErr = ctl.Start(ctx, lecture)
		wait *= 2
	}
	if startErr != nil {
		_ = shutdown()
		return fmt.Errorf("start: %w", startErr)
	}

	sess := ctl.Session()
	room := chat.Open(sess.Room, sess.DisplayName, rest,
		push.Listen(conf.Backend.PushUrl, fmt.Sprintf("room-%d", sess.Room), log),
		log)
	defer room.Close()
	go func() {
		for msg := range room.Messages() {
			log.Info().Msgf("[chat] %s: %s", msg.From, msg.Text)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-signals:
		log.Info().Msgf("shutting down [os:%v]", sig)
	case <-ended:
		log.Info().Msg("lecture ended by the mentor")
	}
	for id, st := range view.Stats() {
		log.Info().Msgf("track %v: %d packets, %d bytes", id, st.Packets, st.Bytes)
	}
	ctl.Leave()

	return shutdown()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
