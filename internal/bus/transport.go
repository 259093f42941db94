package bus

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// Transport carries events out of process. A bus configured with a
// transport delivers locally only when Send fails.
type Transport interface {
	Send(e Event) error
	Close() error
}

// WebSocketTransport sends events as JSON text frames over one websocket
// connection.
type WebSocketTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// DialWebSocket connects to url.
func DialWebSocket(url string, timeout time.Duration) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &WebSocketTransport{conn: conn}, nil
}

// Send writes e as one frame.
func (t *WebSocketTransport) Send(e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return errors.New("websocket transport closed")
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteJSON(e)
}

// Close sends a close frame and drops the connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Relay is the receiving end of a WebSocketTransport: it publishes every
// frame it reads onto a local bus. JSON numbers arrive as float64.
type Relay struct {
	bus      Bus
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewRelay creates a relay into b.
func NewRelay(b Bus, log logrus.FieldLogger) *Relay {
	return &Relay{
		bus: b,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and relays frames until it closes.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.log.WithError(err).Debug("relay connection ended")
			}
			return
		}
		var e Event
		if err := json.Unmarshal(data, &e); err != nil {
			r.log.WithError(err).Warn("discarding malformed event")
			continue
		}
		if err := r.bus.Publish(e); err != nil {
			r.log.WithField("event", e.Name).WithError(err).Warn("relay publish failed")
		}
	}
}
