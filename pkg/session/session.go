// Package session orchestrates one live lecture: publisher and
// subscriber roles over the gateway, roster synchronization, and the
// lifecycle controller owning bootstrap and teardown.
package session

import (
	"errors"

	"github.com/mentori/liveclass/pkg/api"
)

var (
	// ErrAlreadyStarted is returned by Start on a controller that
	// already owns a running session.
	ErrAlreadyStarted = errors.New("session: already started")
	// ErrStartCanceled is returned when Leave interrupted an in-flight
	// start sequence; everything acquired so far has been released.
	ErrStartCanceled = errors.New("session: start canceled")
	// ErrBootstrap wraps a backend failure before a session exists.
	ErrBootstrap = errors.New("session: bootstrap failed")
	// ErrGatewayConnect wraps an unreachable signaling transport.
	ErrGatewayConnect = errors.New("session: gateway connect failed")
	// ErrPermissionDenied wraps a refused device or screen capture.
	ErrPermissionDenied = errors.New("session: capture permission denied")
	// ErrNegotiation wraps a rejected offer/answer exchange; the
	// session stays in its last good state.
	ErrNegotiation = errors.New("session: negotiation failed")
	// ErrMentorOnly guards the authoritative end request.
	ErrMentorOnly = errors.New("session: mentor-only operation")
	// ErrBadState is returned for an operation invalid in the current
	// publisher state.
	ErrBadState = errors.New("session: invalid state for operation")
)

// Session is the immutable identity of one lecture attendance, created
// by bootstrap and destroyed on end/leave.
type Session struct {
	Id                string
	Room              uint64
	Role              api.Role
	DisplayName       string
	MentorDisplayName string
	GatewayUrl        string
}

func newSession(info api.SessionInfo) *Session {
	return &Session{
		Id:                info.SessionId,
		Room:              info.RoomId,
		Role:              info.Role,
		DisplayName:       info.DisplayName,
		MentorDisplayName: info.MentorDisplayName,
		GatewayUrl:        info.GatewayUrl,
	}
}

func (s *Session) IsMentor() bool { return s.Role == api.RoleMentor }
