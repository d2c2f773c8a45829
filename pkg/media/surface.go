package media

// LocalSurface is where the publisher's own outbound stream is previewed.
type LocalSurface interface {
	Bind(s *Stream)
	Clear()
}

// RemoteSurface is where a subscriber's inbound stream is shown.
// Bind runs on every track change so a feed swap never leaves a stale
// stream attached.
type RemoteSurface interface {
	Bind(s *RemoteStream)
	Clear()
}

type NopLocalSurface struct{}

func (NopLocalSurface) Bind(*Stream) {}
func (NopLocalSurface) Clear()       {}

type NopRemoteSurface struct{}

func (NopRemoteSurface) Bind(*RemoteStream) {}
func (NopRemoteSurface) Clear()             {}
