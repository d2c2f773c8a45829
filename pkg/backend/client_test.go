package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/mentori/liveclass/pkg/api"
	"github.com/mentori/liveclass/pkg/config"
	"github.com/mentori/liveclass/pkg/logger"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Backend{Url: srv.URL}, logger.Default())
}

func sessionInfo() api.SessionInfo {
	return api.SessionInfo{
		SessionId:   "s1",
		RoomId:      42,
		GatewayUrl:  "wss://gw.test/janus",
		Role:        api.RoleMentor,
		DisplayName: "alice",
	}
}

func TestBootstrap(t *testing.T) {
	var gotLecture string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lectures/bootstrap" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req api.BootstrapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		gotLecture = req.LectureId
		_ = json.NewEncoder(w).Encode(sessionInfo())
	}))

	info, err := c.Bootstrap(context.Background(), "lecture-9")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if gotLecture != "lecture-9" {
		t.Fatalf("lecture id sent as %q", gotLecture)
	}
	if info.SessionId != "s1" || info.RoomId != 42 || info.Role != api.RoleMentor {
		t.Fatalf("unexpected session info: %+v", info)
	}
}

func TestBootstrapFallsBackToJoin(t *testing.T) {
	var paths []string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/lectures/bootstrap" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		_ = json.NewEncoder(w).Encode(sessionInfo())
	}))

	info, err := c.Bootstrap(context.Background(), "lecture-9")
	if err != nil {
		t.Fatalf("bootstrap with fallback: %v", err)
	}
	if info.SessionId != "s1" {
		t.Fatalf("unexpected session info: %+v", info)
	}
	if len(paths) != 2 || paths[0] != "/lectures/bootstrap" || paths[1] != "/lectures/join" {
		t.Fatalf("request order %v", paths)
	}
}

func TestBootstrapNetworkFailureDoesNotFallBack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	c := NewClient(config.Backend{Url: srv.URL}, logger.Default())

	_, err := c.Bootstrap(context.Background(), "lecture-9")
	if err == nil {
		t.Fatal("expected a transport error")
	}
	if errors.Is(err, ErrBadStatus) {
		t.Fatal("a transport failure must not look like a refused bootstrap")
	}
}

func TestBootstrapFallbackFailureSurfaces(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	if _, err := c.Bootstrap(context.Background(), "x"); !errors.Is(err, ErrBadStatus) {
		t.Fatalf("err = %v, want ErrBadStatus", err)
	}
}

func TestEnd(t *testing.T) {
	var got api.EndRequest
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lectures/end" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	if err := c.End(context.Background(), "s1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if got.SessionId != "s1" {
		t.Fatalf("end sent session %q", got.SessionId)
	}
}

func TestRecording(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lectures/recording" || r.URL.Query().Get("sessionId") != "s1" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_ = json.NewEncoder(w).Encode(api.Recording{Status: api.RecordingReady, Url: "https://rec.test/s1"})
	}))
	rec, err := c.Recording(context.Background(), "s1")
	if err != nil {
		t.Fatalf("recording: %v", err)
	}
	if rec.Status != api.RecordingReady || rec.Url == "" {
		t.Fatalf("unexpected recording: %+v", rec)
	}
}

func TestPostChat(t *testing.T) {
	var got api.ChatMessage
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lectures/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	msg := api.ChatMessage{RoomId: 42, From: "alice", Text: "hello"}
	if err := c.PostChat(context.Background(), msg); err != nil {
		t.Fatalf("post chat: %v", err)
	}
	if got.RoomId != 42 || got.Text != "hello" {
		t.Fatalf("chat arrived as %+v", got)
	}
}
