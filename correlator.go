package napcat

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// pendingRequest tracks one outstanding API call: the envelope that went
// out and the channel its response is delivered on.
type pendingRequest struct {
	req *Request
	ch  chan *APIResponse
}

// correlator owns the echo-token registry. A pending entry exists from the
// moment a request is tracked until its response arrives or the caller
// abandons it; a socket dying in between leaves the entry in place, so a
// never-answered request stays registered until the caller's context ends.
type correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	logger  *zap.Logger
}

func newCorrelator(logger *zap.Logger) *correlator {
	return &correlator{
		pending: make(map[string]*pendingRequest),
		logger:  logger,
	}
}

// track allocates a fresh echo token, builds the outgoing envelope and
// registers the pending request. Tokens are never reused while registered.
func (c *correlator) track(action string, params any) (*Request, <-chan *APIResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := uuid.NewString()
	for _, taken := c.pending[token]; taken; _, taken = c.pending[token] {
		token = uuid.NewString()
	}

	req := &Request{Action: action, Params: params, Echo: token}
	ch := make(chan *APIResponse, 1)
	c.pending[token] = &pendingRequest{req: req, ch: ch}
	return req, ch
}

// drop abandons a pending request, freeing its token.
func (c *correlator) drop(echo string) {
	c.mu.Lock()
	delete(c.pending, echo)
	c.mu.Unlock()
}

// resolve settles the pending request matching resp.Echo. Responses for
// unknown or already-settled tokens are dropped: late or duplicate replies
// must not crash the dispatcher.
func (c *correlator) resolve(resp *APIResponse) {
	c.mu.Lock()
	p, ok := c.pending[resp.Echo]
	if ok {
		delete(c.pending, resp.Echo)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("response for unknown echo token dropped",
			zap.String("echo", resp.Echo))
		return
	}
	p.ch <- resp
}

// size reports the number of outstanding requests.
func (c *correlator) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
