// Package api defines the wire types shared between the lecture backend,
// the server push channel, and the session engine.
package api

type Role string

const (
	RoleMentor Role = "MENTOR"
	RoleMentee Role = "MENTEE"
)

func (r Role) Valid() bool { return r == RoleMentor || r == RoleMentee }

// BootstrapRequest opens (or joins) a lecture session.
type BootstrapRequest struct {
	LectureId string `json:"lectureId"`
}

// SessionInfo is the bootstrap response: everything the engine needs
// to reach the gateway and identify itself.
type SessionInfo struct {
	SessionId         string `json:"sessionId"`
	RoomId            uint64 `json:"roomId"`
	GatewayUrl        string `json:"gatewayUrl"`
	Role              Role   `json:"role"`
	DisplayName       string `json:"displayName"`
	MentorDisplayName string `json:"mentorDisplayName,omitempty"`
}

type EndRequest struct {
	SessionId string `json:"sessionId"`
}

type RecordingStatus string

const (
	RecordingPending RecordingStatus = "PENDING"
	RecordingReady   RecordingStatus = "READY"
)

// Recording is the status/url pair of the opaque recording service.
type Recording struct {
	Status RecordingStatus `json:"status"`
	Url    string          `json:"url,omitempty"`
}

// Push event names delivered over the per-session event stream.
const (
	EventSessionEnded = "SESSION_ENDED"
	EventPing         = "ping"
	EventChat         = "CHAT"
)

// PushEvent is one named event from the server push channel.
type PushEvent struct {
	Name string
	Data []byte
}

type ChatMessage struct {
	RoomId uint64 `json:"roomId"`
	From   string `json:"from"`
	Text   string `json:"text"`
	SentAt int64  `json:"sentAt,omitempty"`
}
