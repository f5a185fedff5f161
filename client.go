// Package napcat provides a Go client for OneBot 11 compatible bot hosts
// (NapCat, go-cqhttp and friends). It maintains the WebSocket connection(s)
// with automatic recovery, correlates API calls with their asynchronous
// responses via echo tokens, normalizes legacy CQ-encoded messages into the
// structured segment form, and dispatches everything through a typed event
// bus.
package napcat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Client is the public surface of the protocol engine. One Client drives
// either a single multiplexed socket or, in split mode, an event socket and
// an api socket behind the same Connect/Disconnect/Reconnect calls.
type Client struct {
	cfg    Config
	logger *zap.Logger
	corr   *correlator
	bus    *eventBus

	sessions []*session
	api      *session // session carrying API requests and responses
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default is a no-op logger, or a
// development console logger when Config.Debug is set.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New validates cfg and wires up a Client. It does not connect.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		if cfg.Debug {
			c.logger = NewLogger(LogConfig{Development: true})
		} else {
			c.logger = zap.NewNop()
		}
	}

	c.corr = newCorrelator(c.logger)
	c.bus = newEventBus(c.corr, c.logger)

	if cfg.Split {
		event := newSession("event", cfg.endpoint("/event"), cfg.Reconnection, c.bus, c.logger, cfg.Debug)
		api := newSession("api", cfg.endpoint("/api"), cfg.Reconnection, c.bus, c.logger, cfg.Debug)
		c.sessions = []*session{event, api}
		c.api = api
	} else {
		bot := newSession("bot", cfg.endpoint(""), cfg.Reconnection, c.bus, c.logger, cfg.Debug)
		c.sessions = []*session{bot}
		c.api = bot
	}
	return c, nil
}

// --------------------------------------------------------------------------
// Connection Lifecycle
// --------------------------------------------------------------------------

// Connect opens every channel. In split mode both sockets are dialed; a
// failure on one does not stop the other, and the errors are joined.
func (c *Client) Connect() error {
	var errs []error
	for _, s := range c.sessions {
		if err := s.connect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Disconnect closes every channel with a normal-closure code. Idempotent.
func (c *Client) Disconnect() {
	for _, s := range c.sessions {
		s.disconnect()
	}
}

// Reconnect cycles every channel unconditionally, regardless of the
// automatic retry budget.
func (c *Client) Reconnect() error {
	var errs []error
	for _, s := range c.sessions {
		if err := s.reconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// API Calls
// --------------------------------------------------------------------------

// Send issues an API call and waits for the matching response. On success
// the response's data field is returned; a nonzero retcode is returned as a
// *APIError carrying the full response. With no live api socket the call is
// rejected immediately with a synthetic failure and is never retried.
//
// The server gives no guarantee a response ever arrives — if the socket
// dies first the call would wait forever, so ctx is the caller's only way
// out. Cancellation unregisters the pending request.
func (c *Client) Send(ctx context.Context, action string, params any) (json.RawMessage, error) {
	req, ch := c.corr.track(action, params)
	c.bus.emit(EventAPIPreSend, req)

	if !c.api.live() {
		c.corr.drop(req.Echo)
		return nil, newNotConnectedError()
	}

	data, err := json.Marshal(req)
	if err != nil {
		c.corr.drop(req.Echo)
		return nil, fmt.Errorf("marshal %s request: %w", action, err)
	}
	if err := c.api.send(data); err != nil {
		c.corr.drop(req.Echo)
		return nil, newNotConnectedError()
	}

	select {
	case resp := <-ch:
		if resp.Retcode == 0 {
			return resp.Data, nil
		}
		return nil, &APIError{Response: resp}
	case <-ctx.Done():
		c.corr.drop(req.Echo)
		return nil, ctx.Err()
	}
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// On registers a persistent handler for an event name. Dotted names form a
// hierarchy: On("message", …) also fires for "message.group".
func (c *Client) On(event string, h Handler) *Client {
	c.bus.on(event, h, false)
	return c
}

// Once registers a handler removed automatically after its first firing.
func (c *Client) Once(event string, h Handler) *Client {
	c.bus.on(event, h, true)
	return c
}

// Off removes a previously registered handler by function identity. Two
// closures built from the same function literal share an identity, so keep
// and pass the exact value that was given to On rather than re-creating
// the closure.
func (c *Client) Off(event string, h Handler) *Client {
	c.bus.off(event, h)
	return c
}

// Emit injects an event into the bus, as if it had arrived from the host.
func (c *Client) Emit(event string, payload any) *Client {
	c.bus.emit(event, payload)
	return c
}
