package gateway

import (
	"bytes"

	"github.com/goccy/go-json"
)

// PluginVideoRoom is the selective-forwarding video room plugin id.
const PluginVideoRoom = "janus.plugin.videoroom"

// FeedId is the gateway-issued identifier of one published feed.
type FeedId uint64

const (
	ptypePublisher  = "publisher"
	ptypeSubscriber = "subscriber"
)

type JoinPublisher struct {
	Request string `json:"request"`
	Room    uint64 `json:"room"`
	PType   string `json:"ptype"`
	Display string `json:"display"`
}

func NewJoinPublisher(room uint64, display string) JoinPublisher {
	return JoinPublisher{Request: "join", Room: room, PType: ptypePublisher, Display: display}
}

type JoinSubscriber struct {
	Request string `json:"request"`
	Room    uint64 `json:"room"`
	PType   string `json:"ptype"`
	Feed    FeedId `json:"feed"`
}

func NewJoinSubscriber(room uint64, feed FeedId) JoinSubscriber {
	return JoinSubscriber{Request: "join", Room: room, PType: ptypeSubscriber, Feed: feed}
}

// Configure flips what the publisher sends; nil fields stay untouched.
// Sent alongside an offer it doubles as the publish request.
type Configure struct {
	Request string `json:"request"`
	Audio   *bool  `json:"audio,omitempty"`
	Video   *bool  `json:"video,omitempty"`
}

func NewConfigure(audio, video *bool) Configure {
	return Configure{Request: "configure", Audio: audio, Video: video}
}

type Start struct {
	Request string `json:"request"`
}

func NewStart() Start { return Start{Request: "start"} }

type ListParticipants struct {
	Request string `json:"request"`
	Room    uint64 `json:"room"`
}

func NewListParticipants(room uint64) ListParticipants {
	return ListParticipants{Request: "listparticipants", Room: room}
}

type RoomRequest struct {
	Request string `json:"request"`
}

func NewUnpublish() RoomRequest { return RoomRequest{Request: "unpublish"} }
func NewLeave() RoomRequest     { return RoomRequest{Request: "leave"} }

type PublisherInfo struct {
	Id      FeedId `json:"id"`
	Display string `json:"display"`
}

type ParticipantInfo struct {
	Id      FeedId `json:"id"`
	Display string `json:"display"`
}

// FeedRef is a feed id in leave/unpublish notices. The gateway sends the
// literal "ok" instead of an id when the notice refers to the handle itself.
type FeedRef struct {
	Id  FeedId
	Own bool
}

func (f *FeedRef) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(data, []byte(`"`)) {
		f.Own = true
		return nil
	}
	return json.Unmarshal(data, &f.Id)
}

// VideoRoomData is the parsed plugin payload of a videoroom reply or event.
type VideoRoomData struct {
	VideoRoom    string            `json:"videoroom"`
	Room         uint64            `json:"room,omitempty"`
	Id           FeedId            `json:"id,omitempty"`
	Display      string            `json:"display,omitempty"`
	Publishers   []PublisherInfo   `json:"publishers,omitempty"`
	Participants []ParticipantInfo `json:"participants,omitempty"`
	Leaving      *FeedRef          `json:"leaving,omitempty"`
	Unpublished  *FeedRef          `json:"unpublished,omitempty"`
	Configured   string            `json:"configured,omitempty"`
	Started      string            `json:"started,omitempty"`
	ErrorCode    int               `json:"error_code,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Joined reports whether the event confirms a publisher-side room join.
func (d *VideoRoomData) Joined() bool { return d.VideoRoom == "joined" }

// Attached reports whether the event confirms a subscriber-side feed attach.
func (d *VideoRoomData) Attached() bool { return d.VideoRoom == "attached" }
