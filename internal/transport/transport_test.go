package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/boardlink/internal/clock"
	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T) *clock.Loop {
	t.Helper()
	loop := clock.NewLoop(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)
	return loop
}

// collect forwards every event of the given types to a channel
func collect(w *Wrapper, types ...string) chan *events.Event {
	ch := make(chan *events.Event, 16)
	for _, typ := range types {
		w.AddListener(typ, func(ev *events.Event) error {
			ch <- ev
			return nil
		})
	}
	return ch
}

func next(t *testing.T, ch chan *events.Event) *events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestNew_NoBackend(t *testing.T) {
	_, err := New("ftp://example.com/board", runLoop(t))
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestNew_BackendPriority(t *testing.T) {
	loop := runLoop(t)
	cases := map[string]string{
		"ws://localhost:3000/firmata":       "websocket",
		"mqtt://broker:1883/bench/uno":      "mqtt",
		"tcp://192.168.1.20:3030":           "tcp",
		"serial:///dev/ttyACM0?baud=115200": "serial",
		"/dev/ttyUSB0":                      "serial",
	}
	for target, backend := range cases {
		w, err := New(target, loop)
		require.NoError(t, err, target)
		assert.Equal(t, backend, w.Backend(), target)
		assert.Equal(t, StateConnecting, w.State())
	}
}

func TestSend_NoOpUnlessOpen(t *testing.T) {
	w, err := New("tcp://127.0.0.1:1", runLoop(t))
	require.NoError(t, err)
	assert.False(t, w.Send([]byte{0xF9}))

	require.NoError(t, w.Close())
	assert.Equal(t, StateClosed, w.State())
	assert.False(t, w.Send([]byte{0xF9}))
	assert.ErrorIs(t, w.Open(context.Background()), ErrBadState)
}

func TestTCP_RoundTripAndRemoteClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	w, err := New("tcp://"+ln.Addr().String(), runLoop(t))
	require.NoError(t, err)
	evs := collect(w, EventConnected, EventMessage, EventClose)

	require.NoError(t, w.Open(context.Background()))
	assert.Equal(t, StateOpen, w.State())
	assert.Equal(t, EventConnected, next(t, evs).Type)

	server := <-accepted
	_, err = server.Write([]byte{0xF9, 0x02, 0x05})
	require.NoError(t, err)

	ev := next(t, evs)
	require.Equal(t, EventMessage, ev.Type)
	assert.Equal(t, []byte{0xF9, 0x02, 0x05}, MessageData(ev))

	require.True(t, w.Send([]byte{0xFF}))
	buf := make([]byte, 1)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF}, buf)

	server.Close()
	ev = next(t, evs)
	assert.Equal(t, EventClose, ev.Type)
	<-w.Done()
	assert.Equal(t, StateClosed, w.State())
	assert.False(t, w.Send([]byte{0xFF}))
}

func TestClose_OnLoopWithFullQueue(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			defer c.Close()
			io.Copy(io.Discard, c)
		}
	}()

	loop := clock.NewLoop(nil, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	w, err := New("tcp://"+ln.Addr().String(), loop)
	require.NoError(t, err)
	evs := collect(w, EventClose)
	require.NoError(t, w.Open(context.Background()))

	doCtx, doCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer doCancel()
	var closeErr error
	require.NoError(t, loop.Do(doCtx, func() {
		for loop.TryPost(func() {}) {
		}
		closeErr = w.Close()
	}))
	assert.NoError(t, closeErr)
	assert.Equal(t, StateClosed, w.State())
	assert.Equal(t, EventClose, next(t, evs).Type)
}

func TestOpen_FailureCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	w, err := New("tcp://"+addr, runLoop(t))
	require.NoError(t, err)
	evs := collect(w, EventClose)

	assert.Error(t, w.Open(context.Background()))
	assert.Equal(t, StateClosed, w.State())
	ev := next(t, evs)
	assert.Contains(t, ev.Payload, "error")
}

func TestWebSocket_BinaryFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.BinaryMessage, []byte{0xE0, 0x10, 0x04})
		_, data, err := c.ReadMessage()
		if err == nil {
			received <- data
		}
		// wait for the client close
		c.ReadMessage()
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"

	w, err := New(u.String(), runLoop(t))
	require.NoError(t, err)
	evs := collect(w, EventMessage, EventClose)
	require.NoError(t, w.Open(context.Background()))

	ev := next(t, evs)
	assert.Equal(t, []byte{0xE0, 0x10, 0x04}, MessageData(ev))

	require.True(t, w.Send([]byte{0xC0, 0x01}))
	select {
	case data := <-received:
		assert.Equal(t, []byte{0xC0, 0x01}, data)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}

	require.NoError(t, w.Close())
	assert.Equal(t, EventClose, next(t, evs).Type)
	assert.Equal(t, StateClosed, w.State())
}

func TestSerialBackend_Accepts(t *testing.T) {
	b := &SerialBackend{}
	for _, target := range []string{"serial:///dev/ttyACM0", "/dev/ttyUSB1", "COM3"} {
		u, err := url.Parse(target)
		require.NoError(t, err)
		assert.True(t, b.Accepts(u), target)
	}
	u, _ := url.Parse("tcp://host:1")
	assert.False(t, b.Accepts(u))
}

func TestStateString(t *testing.T) {
	names := []string{StateConnecting.String(), StateOpen.String(), StateClosing.String(), StateClosed.String()}
	assert.Equal(t, "CONNECTING,OPEN,CLOSING,CLOSED", strings.Join(names, ","))
}
