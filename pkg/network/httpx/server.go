package httpx

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/mentori/liveclass/pkg/logger"
)

// Server is a thin wrapper over the stdlib HTTP server with
// an explicit Run/Shutdown lifecycle.
type Server struct {
	http.Server

	listener net.Listener
	log      *logger.Logger
}

func NewServer(address string, handler func(*Server) http.Handler, log *logger.Logger) (*Server, error) {
	server := &Server{
		Server: http.Server{
			Addr:         address,
			IdleTimeout:  120 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		log: log,
	}
	server.Handler = handler(server)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	server.listener = listener
	server.Addr = listener.Addr().String()
	return server, nil
}

func (s *Server) Run() { go s.run() }

func (s *Server) run() {
	s.log.Debug().Msgf("Starting http server on %s", s.Addr)
	if err := s.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		s.log.Error().Err(err).Msg("http server close")
	}
}

func (s *Server) Shutdown(ctx context.Context) error { return s.Server.Shutdown(ctx) }
