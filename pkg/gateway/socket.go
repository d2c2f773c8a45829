package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 64 * 1024
	writeWait      = 10 * time.Second
)

var errSocketClosed = errors.New("gateway: socket closed")

// socket pumps frames between the websocket connection and the client.
// All reads and writes are serialized through the two pumps.
type socket struct {
	conn *websocket.Conn
	send chan []byte

	onMessage func(data []byte)

	closeOnce sync.Once
	done      chan struct{}
}

func dial(ctx context.Context, address string) (*socket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"janus-protocol"},
	}
	conn, _, err := dialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	return &socket{
		conn: conn,
		send: make(chan []byte, 8),
		done: make(chan struct{}),
	}, nil
}

// listen starts the pumps; onMessage must be set before the call.
func (s *socket) listen() {
	go s.reader()
	go s.writer()
}

func (s *socket) reader() {
	defer s.close()
	s.conn.SetReadLimit(maxMessageSize)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.onMessage(message)
	}
}

func (s *socket) writer() {
	for {
		select {
		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *socket) write(data []byte) error {
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return errSocketClosed
	}
}

func (s *socket) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		close(s.done)
		_ = s.conn.Close()
	})
}
