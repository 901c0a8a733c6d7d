package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"quill/internal/notifications"

	"github.com/gorilla/websocket"
)

// Notification is one frame received on the notification socket.
type Notification struct {
	Type    string                  `json:"type"`
	Payload notifications.PostEvent `json:"payload"`
}

// Subscription streams notifications until Close or until the server goes away.
type Subscription struct {
	conn      *websocket.Conn
	events    chan Notification
	closeOnce sync.Once
	err       error
}

// Events returns the notification channel. It is closed when the socket ends.
func (s *Subscription) Events() <-chan Notification {
	return s.events
}

// Err reports why the stream ended, once Events is closed.
func (s *Subscription) Err() error {
	return s.err
}

// Close ends the subscription.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}

func (s *Subscription) readLoop() {
	defer close(s.events)
	for {
		var n Notification
		if err := s.conn.ReadJSON(&n); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = err
			}
			return
		}
		s.events <- n
	}
}

// Subscribe exchanges the session token for a socket ticket and opens the notification
// stream. It returns once the server has registered the socket.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	if !c.session.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	var ticket struct {
		Ticket string `json:"ticket"`
	}
	if err := c.do(ctx, http.MethodPost, "/ws/ticket", nil, nil, &ticket); err != nil {
		return nil, err
	}

	target, err := socketURL(c.baseURL, ticket.Ticket)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial notifications: %w", err)
	}

	var hello Notification
	if err := conn.ReadJSON(&hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if hello.Type != notifications.EventConnected {
		_ = conn.Close()
		return nil, errors.New("notifications: socket refused registration")
	}

	sub := &Subscription{conn: conn, events: make(chan Notification, 16)}
	go sub.readLoop()
	return sub, nil
}

func socketURL(baseURL, ticket string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"ticket": {ticket}}.Encode()
	return u.String(), nil
}
