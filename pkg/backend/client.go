// Package backend talks to the lecture REST service: session bootstrap,
// authoritative termination, recording lookups, and chat publishing.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mentori/liveclass/pkg/api"
	"github.com/mentori/liveclass/pkg/config"
	"github.com/mentori/liveclass/pkg/logger"
)

var ErrBadStatus = errors.New("backend: unexpected status")

type Client struct {
	base string
	http *http.Client
	log  *logger.Logger
}

func NewClient(conf config.Backend, log *logger.Logger) *Client {
	return &Client{
		base: strings.TrimRight(conf.Url, "/"),
		http: &http.Client{Timeout: conf.RequestTimeout()},
		log:  log,
	}
}

// Bootstrap opens a session for the lecture. On a non-2xx bootstrap
// response it falls back to a plain join request with the same shape
// before giving up.
func (c *Client) Bootstrap(ctx context.Context, lectureId string) (api.SessionInfo, error) {
	req := api.BootstrapRequest{LectureId: lectureId}
	var out api.SessionInfo
	err := c.post(ctx, "/lectures/bootstrap", req, &out)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, ErrBadStatus) {
		return api.SessionInfo{}, err
	}
	c.log.Warn().Err(err).Msg("bootstrap refused, falling back to join")
	if err = c.post(ctx, "/lectures/join", req, &out); err != nil {
		return api.SessionInfo{}, err
	}
	return out, nil
}

// End asks the backend to terminate the session for every participant.
func (c *Client) End(ctx context.Context, sessionId string) error {
	return c.post(ctx, "/lectures/end", api.EndRequest{SessionId: sessionId}, nil)
}

// Recording fetches the status/url pair of the session recording.
func (c *Client) Recording(ctx context.Context, sessionId string) (api.Recording, error) {
	var out api.Recording
	err := c.get(ctx, "/lectures/recording?sessionId="+sessionId, &out)
	return out, err
}

// PostChat publishes a room-scoped chat message.
func (c *Client) PostChat(ctx context.Context, msg api.ChatMessage) error {
	return c.post(ctx, "/lectures/chat", msg, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s -> %d", ErrBadStatus, req.Method, req.URL.Path, res.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
