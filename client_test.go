package napcat

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs a minimal WebSocket server on a random loopback port and
// hands each upgraded connection to handle. It returns the ws:// base URL.
func startServer(t *testing.T, handle func(conn net.Conn, uri string)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				var uri string
				u := ws.Upgrader{
					OnRequest: func(reqURI []byte) error {
						uri = string(reqURI)
						return nil
					},
				}
				if _, err := u.Upgrade(conn); err != nil {
					_ = conn.Close()
					return
				}
				handle(conn, uri)
			}()
		}
	}()
	return "ws://" + ln.Addr().String()
}

// answer reads request envelopes off conn and replies with canned responses
// keyed by action, echoing the correlation token back.
func answer(t *testing.T, conn net.Conn, data map[string]string) {
	t.Helper()
	defer conn.Close()
	for {
		raw, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		body, ok := data[req.Action]
		resp := APIResponse{Status: "ok", Retcode: 0, Data: json.RawMessage(body), Echo: req.Echo}
		if !ok {
			resp = APIResponse{Status: "failed", Retcode: 1404, Message: "unknown action", Echo: req.Echo}
		}
		out, _ := json.Marshal(resp)
		if err := wsutil.WriteServerText(conn, out); err != nil {
			return
		}
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c, err := New(Config{
		BaseURL:      "ws://127.0.0.1:1",
		Reconnection: Reconnection{Disabled: true},
	})
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "get_status", struct{}{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "failed", apiErr.Response.Status)
	assert.Equal(t, -1, apiErr.Response.Retcode)
	assert.Equal(t, json.RawMessage("null"), apiErr.Response.Data)
	assert.Equal(t, "api socket is not connected", apiErr.Response.Message)
	assert.Empty(t, apiErr.Response.Echo)
	assert.Equal(t, 0, c.corr.size(), "rejected send must not leak a pending entry")
}

func TestSendEndToEnd(t *testing.T) {
	base := startServer(t, func(conn net.Conn, _ string) {
		answer(t, conn, map[string]string{"get_status": `{"online":true,"good":true}`})
	})

	c, err := New(Config{BaseURL: base, Reconnection: Reconnection{Disabled: true}})
	require.NoError(t, err)
	require.NoError(t, c.Connect())
	defer c.Disconnect()

	st, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Online)
	assert.True(t, st.Good)
	assert.Equal(t, 0, c.corr.size())
}

func TestSendFailureResponse(t *testing.T) {
	base := startServer(t, func(conn net.Conn, _ string) {
		answer(t, conn, nil)
	})

	c, err := New(Config{BaseURL: base, Reconnection: Reconnection{Disabled: true}})
	require.NoError(t, err)
	require.NoError(t, c.Connect())
	defer c.Disconnect()

	_, err = c.Send(context.Background(), "no_such_action", struct{}{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 1404, apiErr.Response.Retcode)
	assert.Equal(t, 0, c.corr.size())
}

func TestSendContextCancelled(t *testing.T) {
	base := startServer(t, func(conn net.Conn, _ string) {
		// Swallow requests without answering.
		defer conn.Close()
		for {
			if _, err := wsutil.ReadClientText(conn); err != nil {
				return
			}
		}
	})

	c, err := New(Config{BaseURL: base, Reconnection: Reconnection{Disabled: true}})
	require.NoError(t, err)
	require.NoError(t, c.Connect())
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Send(ctx, "get_status", struct{}{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.corr.size(), "abandoned send must free its token")
}

func TestEventPushReachesHandler(t *testing.T) {
	frame := `{"post_type":"message","message_type":"group","group_id":9,` +
		`"message_format":"string","message":"[CQ:at,qq=123]hi","raw_message":"[CQ:at,qq=123]hi"}`
	base := startServer(t, func(conn net.Conn, _ string) {
		defer conn.Close()
		if err := wsutil.WriteServerText(conn, []byte(frame)); err != nil {
			return
		}
		for {
			if _, err := wsutil.ReadClientText(conn); err != nil {
				return
			}
		}
	})

	c, err := New(Config{BaseURL: base, Reconnection: Reconnection{Disabled: true}})
	require.NoError(t, err)

	got := make(chan *MessageEvent, 1)
	c.On(EventMessageGroup, func(p any) { got <- p.(*MessageEvent) })

	require.NoError(t, c.Connect())
	defer c.Disconnect()

	select {
	case ev := <-got:
		assert.EqualValues(t, 9, ev.GroupID)
		assert.Equal(t, "array", ev.MessageFormat)
		assert.Equal(t, "hi", ev.Message.ExtractText())
	case <-time.After(2 * time.Second):
		t.Fatal("pushed event never reached the handler")
	}
}

func TestSendFromHandlerResolves(t *testing.T) {
	frame := `{"post_type":"message","message_type":"group","group_id":5,` +
		`"message_format":"array","message":[{"type":"text","data":{"text":"ping"}}]}`
	base := startServer(t, func(conn net.Conn, _ string) {
		if err := wsutil.WriteServerText(conn, []byte(frame)); err != nil {
			_ = conn.Close()
			return
		}
		answer(t, conn, map[string]string{"get_status": `{"online":true,"good":true}`})
	})

	c, err := New(Config{BaseURL: base, Reconnection: Reconnection{Disabled: true}})
	require.NoError(t, err)

	done := make(chan error, 1)
	c.On(EventMessageGroup, func(any) {
		// The response for this call arrives on the same socket the
		// triggering event came in on.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := c.GetStatus(ctx)
		done <- err
	})

	require.NoError(t, c.Connect())
	defer c.Disconnect()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("api call issued from a handler never resolved")
	}
}

func TestSplitModeRoutesAPITraffic(t *testing.T) {
	var mu sync.Mutex
	var uris []string
	base := startServer(t, func(conn net.Conn, uri string) {
		mu.Lock()
		uris = append(uris, uri)
		mu.Unlock()
		answer(t, conn, map[string]string{"get_status": `{"online":true,"good":true}`})
	})

	c, err := New(Config{
		BaseURL:      base,
		AccessToken:  "s3cret",
		Split:        true,
		Reconnection: Reconnection{Disabled: true},
	})
	require.NoError(t, err)
	require.NoError(t, c.Connect())
	defer c.Disconnect()

	st, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Online)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, uris, 2)
	assert.Contains(t, uris, "/event?access_token=s3cret")
	assert.Contains(t, uris, "/api?access_token=s3cret")
}

func TestOnceAndOffOnClient(t *testing.T) {
	c, err := New(Config{BaseURL: "ws://127.0.0.1:1", Reconnection: Reconnection{Disabled: true}})
	require.NoError(t, err)

	var onceCount, offCount int
	off := func(any) { offCount++ }
	c.Once("meta_event", func(any) { onceCount++ }).
		On("meta_event", off).
		Off("meta_event", off)

	c.Emit("meta_event", &MetaEvent{MetaEventType: "heartbeat"})
	c.Emit("meta_event", &MetaEvent{MetaEventType: "heartbeat"})

	assert.Equal(t, 1, onceCount)
	assert.Equal(t, 0, offCount)
}

func TestPreSendObservesEnvelope(t *testing.T) {
	base := startServer(t, func(conn net.Conn, _ string) {
		answer(t, conn, map[string]string{"send_like": `null`})
	})

	c, err := New(Config{BaseURL: base, Reconnection: Reconnection{Disabled: true}})
	require.NoError(t, err)

	var seen *Request
	c.On(EventAPIPreSend, func(p any) { seen = p.(*Request) })

	require.NoError(t, c.Connect())
	defer c.Disconnect()

	require.NoError(t, c.SendLike(context.Background(), 123, 5))
	require.NotNil(t, seen)
	assert.Equal(t, "send_like", seen.Action)
	assert.NotEmpty(t, seen.Echo)
}
