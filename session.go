package napcat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

const dialTimeout = 10 * time.Second

// session states. A session is Open only between a successful dial and the
// close that follows; Connecting covers the dial window.
type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnecting
	stateOpen
	stateClosing
)

// session owns one physical WebSocket. It dials, reads frames into the bus,
// and drives the reconnection policy: the attempt counter starts at 1,
// resets to 1 on every successful open, increments on each close-triggered
// retry, and once it reaches the configured maximum no further timers are
// armed. Manual Disconnect tears the socket down without scheduling a
// retry; manual Reconnect bypasses the counter entirely.
type session struct {
	name   string // channel label: "bot", "event" or "api"
	url    string
	policy Reconnection
	bus    *eventBus
	logger *zap.Logger
	debug  bool

	mu      sync.Mutex
	conn    net.Conn
	state   sessionState
	gen     int // connection generation; orphans stale read loops
	attempt int
}

func newSession(name, url string, policy Reconnection, bus *eventBus, logger *zap.Logger, debug bool) *session {
	return &session{
		name:    name,
		url:     url,
		policy:  policy,
		bus:     bus,
		logger:  logger.With(zap.String("channel", name)),
		debug:   debug,
		attempt: 1,
	}
}

// connect dials the endpoint. Calling it while a socket is already live is
// tolerated: the prior handle is replaced and its read loop orphaned.
func (s *session) connect() error {
	s.mu.Lock()
	s.state = stateConnecting
	attempt := s.attempt
	s.mu.Unlock()

	s.bus.emit(EventSocketConnecting, SocketConnecting{Channel: s.name, ReconnectCount: attempt})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, br, _, err := ws.Dial(ctx, s.url)
	cancel()
	if err != nil {
		s.bus.emit(EventSocketError, SocketError{Channel: s.name, Err: err})
		s.closed(int(ws.StatusAbnormalClosure), "dial failed")
		return fmt.Errorf("dial %s channel: %w", s.name, err)
	}

	// The dial handshake may over-read frames the server pushed right after
	// upgrading. Replay them ahead of the socket, or the connection's first
	// events are lost.
	var rw io.ReadWriter = conn
	if br != nil {
		if n := br.Buffered(); n > 0 {
			prefix, _ := br.Peek(n)
			rw = &preloadedConn{
				Conn: conn,
				r:    io.MultiReader(bytes.NewReader(append([]byte(nil), prefix...)), conn),
			}
		}
		ws.PutReader(br)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.conn = conn
	s.state = stateOpen
	s.attempt = 1
	s.mu.Unlock()

	s.logger.Info("socket open")
	s.bus.emit(EventSocketOpen, SocketOpen{Channel: s.name})

	go s.readLoop(conn, rw, gen)
	return nil
}

// preloadedConn replays bytes buffered during the handshake before reading
// from the socket itself. Writes go straight to the socket.
type preloadedConn struct {
	net.Conn
	r io.Reader
}

func (c *preloadedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

// disconnect closes the live socket with a normal-closure code and clears
// the handle. Idempotent: a second call finds no handle and emits nothing.
// No retry is scheduled for a manual close.
func (s *session) disconnect() {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.state = stateDisconnected
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.gen++ // orphan the read loop before it can report this close
	s.state = stateClosing
	s.mu.Unlock()

	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	_ = ws.WriteFrame(conn, ws.MaskFrame(ws.NewCloseFrame(body)))
	_ = conn.Close()

	s.mu.Lock()
	s.state = stateDisconnected
	s.mu.Unlock()

	s.logger.Info("socket closed by client")
	s.bus.emit(EventSocketClose, SocketClose{
		Channel: s.name,
		Code:    int(ws.StatusNormalClosure),
		Reason:  "client disconnect",
	})
}

// reconnect cycles the connection unconditionally, regardless of how many
// automatic attempts have been spent.
func (s *session) reconnect() error {
	s.disconnect()
	return s.connect()
}

// live reports whether a socket handle exists and is not closing.
func (s *session) live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.state == stateOpen
}

// send writes one text frame. The caller is responsible for handling the
// not-connected case before serializing; a write failure here still reports
// the socket as unusable.
func (s *session) send(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	st := s.state
	s.mu.Unlock()

	if conn == nil || st != stateOpen {
		return ErrNotConnected
	}
	if s.debug {
		s.logger.Debug("send", zap.ByteString("frame", data))
	}
	return wsutil.WriteClientText(conn, data)
}

func (s *session) readLoop(conn net.Conn, rw io.ReadWriter, gen int) {
	for {
		data, err := wsutil.ReadServerText(rw)
		if err != nil {
			code := int(ws.StatusAbnormalClosure)
			reason := ""
			var ce wsutil.ClosedError
			if errors.As(err, &ce) {
				code = int(ce.Code)
				reason = ce.Reason
			} else {
				s.bus.emit(EventSocketError, SocketError{Channel: s.name, Err: err})
			}
			_ = conn.Close()
			s.closeFrom(conn, gen, code, reason)
			return
		}
		if s.debug {
			s.logger.Debug("recv", zap.ByteString("frame", data))
		}
		s.bus.parseMessage(data)
	}
}

// closeFrom handles a close observed by a read loop. Superseded loops (a
// newer generation replaced or dropped their conn) report nothing.
func (s *session) closeFrom(conn net.Conn, gen int, code int, reason string) {
	s.mu.Lock()
	if gen != s.gen || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()
	s.closed(code, reason)
}

// closed records the transition to Disconnected and, when the policy
// permits, bumps the attempt counter and arms the retry timer. Each close
// arms its own timer; overlapping schedules are not deduplicated.
func (s *session) closed(code int, reason string) {
	s.mu.Lock()
	s.state = stateDisconnected
	retry := !s.policy.Disabled && s.attempt < s.policy.MaxAttempts
	if retry {
		s.attempt++
	}
	delay := s.policy.Delay
	s.mu.Unlock()

	s.logger.Info("socket closed", zap.Int("code", code), zap.String("reason", reason))
	s.bus.emit(EventSocketClose, SocketClose{Channel: s.name, Code: code, Reason: reason})

	if retry {
		time.AfterFunc(delay, func() { _ = s.reconnect() })
	}
}
