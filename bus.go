package napcat

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Handler receives an event payload. The concrete type depends on the event
// name: *MessageEvent for message.*, *NoticeEvent for notice.*, and so on;
// socket.* events carry the lifecycle structs from types.go.
type Handler func(payload any)

type handlerEntry struct {
	fn   Handler
	id   uintptr // function identity, for Off
	once bool
}

// eventBus is the typed publish/subscribe registry. Every inbound frame
// enters through parseMessage, which hands API responses to the correlator
// on the read goroutine and queues domain events for the drain goroutine,
// so a handler that issues an API call never starves the read loop its
// response arrives on.
type eventBus struct {
	mu       sync.Mutex
	handlers map[string][]handlerEntry
	corr     *correlator
	logger   *zap.Logger

	qmu      sync.Mutex
	queue    []func()
	draining bool
}

func newEventBus(corr *correlator, logger *zap.Logger) *eventBus {
	return &eventBus{
		handlers: make(map[string][]handlerEntry),
		corr:     corr,
		logger:   logger,
	}
}

func (b *eventBus) on(name string, h Handler, once bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handlerEntry{
		fn:   h,
		id:   reflect.ValueOf(h).Pointer(),
		once: once,
	})
}

// off removes the first entry registered for name with the same function
// identity as h. Identity is the code pointer: closures built from the same
// function literal share one, so pass the exact value that was registered,
// not a fresh closure over the same literal.
func (b *eventBus) off(name string, h Handler) {
	id := reflect.ValueOf(h).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[name]
	for i, e := range entries {
		if e.id == id {
			b.handlers[name] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// emit fires handlers for name and then each ancestor in the dotted
// hierarchy, so "message.group" also reaches "message" subscribers.
// Handlers run synchronously in subscription order on the caller's
// goroutine; panics are not recovered.
func (b *eventBus) emit(name string, payload any) {
	for n := name; n != ""; n = parentEvent(n) {
		b.fire(n, payload)
	}
}

func (b *eventBus) fire(name string, payload any) {
	b.mu.Lock()
	entries := b.handlers[name]
	toRun := make([]Handler, 0, len(entries))
	kept := entries[:0]
	for _, e := range entries {
		toRun = append(toRun, e.fn)
		if !e.once {
			kept = append(kept, e)
		}
	}
	b.handlers[name] = kept
	b.mu.Unlock()

	for _, fn := range toRun {
		fn(payload)
	}
}

func parentEvent(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[:i]
}

// enqueue appends fn to the dispatch queue and starts a drain goroutine if
// none is running. The queue is unbounded; enqueue never blocks the caller.
func (b *eventBus) enqueue(fn func()) {
	b.qmu.Lock()
	b.queue = append(b.queue, fn)
	start := !b.draining
	b.draining = true
	b.qmu.Unlock()
	if start {
		go b.drain()
	}
}

func (b *eventBus) drain() {
	for {
		b.qmu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.qmu.Unlock()
			return
		}
		fn := b.queue[0]
		b.queue = b.queue[1:]
		b.qmu.Unlock()
		fn()
	}
}

// dispatch emits name from the drain goroutine. Inbound frames go through
// here, in arrival order, off the read goroutine.
func (b *eventBus) dispatch(name string, payload any) {
	b.enqueue(func() { b.emit(name, payload) })
}

// --------------------------------------------------------------------------
// Inbound Classification
// --------------------------------------------------------------------------

// parseMessage is the single entry point for inbound frames. Malformed JSON
// is logged and dropped. Frames carrying an echo token are API responses:
// the correlator is settled immediately on the calling (read) goroutine and
// the observability event is queued. Everything else is classified by
// post_type and queued for dispatch with its sub-type appended.
func (b *eventBus) parseMessage(raw []byte) {
	var probe struct {
		PostType string `json:"post_type"`
		Echo     string `json:"echo"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		b.logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}

	if probe.Echo != "" {
		var resp APIResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			b.logger.Warn("dropping malformed api response", zap.Error(err))
			return
		}
		b.corr.resolve(&resp)
		if resp.Retcode == 0 {
			b.dispatch(EventAPIResponseSuccess, &resp)
		} else {
			b.dispatch(EventAPIResponseFailure, &resp)
		}
		return
	}

	switch probe.PostType {
	case "message":
		var ev MessageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			b.logger.Warn("dropping malformed message event", zap.Error(err))
			return
		}
		ev.MessageFormat = "array"
		b.dispatch(subEvent(EventMessage, ev.MessageType), &ev)
	case "notice":
		var ev NoticeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			b.logger.Warn("dropping malformed notice event", zap.Error(err))
			return
		}
		b.dispatch(subEvent(EventNotice, ev.NoticeType), &ev)
	case "request":
		var ev RequestEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			b.logger.Warn("dropping malformed request event", zap.Error(err))
			return
		}
		b.dispatch(subEvent(EventRequest, ev.RequestType), &ev)
	case "meta_event":
		var ev MetaEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			b.logger.Warn("dropping malformed meta event", zap.Error(err))
			return
		}
		b.dispatch(subEvent(EventMeta, ev.MetaEventType), &ev)
	default:
		b.logger.Warn("dropping frame with unknown post_type",
			zap.String("post_type", probe.PostType))
	}
}

func subEvent(base, sub string) string {
	if sub == "" {
		return base
	}
	return base + "." + sub
}
