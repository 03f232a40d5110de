package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tarm/serial"
)

const readBufferSize = 1024

// WebSocketBackend speaks binary frames to a ws:// or wss:// bridge
type WebSocketBackend struct {
	Dialer *websocket.Dialer
}

func (b *WebSocketBackend) Name() string { return "websocket" }

func (b *WebSocketBackend) Accepts(u *url.URL) bool {
	return u.Scheme == "ws" || u.Scheme == "wss"
}

func (b *WebSocketBackend) Dial(ctx context.Context, u *url.URL) (Conn, error) {
	dialer := b.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Read() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.BinaryMessage || kind == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Write(p []byte) error {
	return c.ws.WriteMessage(websocket.BinaryMessage, p)
}

func (c *wsConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}

// MQTTBackend relays the byte stream over a broker. The board side
// publishes on <topic>/rx and subscribes to <topic>/tx.
type MQTTBackend struct {
	ClientID string
}

func (b *MQTTBackend) Name() string { return "mqtt" }

func (b *MQTTBackend) Accepts(u *url.URL) bool {
	return u.Scheme == "mqtt" || u.Scheme == "mqtts"
}

func (b *MQTTBackend) Dial(ctx context.Context, u *url.URL) (Conn, error) {
	topic := strings.Trim(u.Path, "/")
	if topic == "" {
		topic = "boardlink"
	}

	broker := "tcp://" + u.Host
	if u.Scheme == "mqtts" {
		broker = "ssl://" + u.Host
	}

	clientID := b.ClientID
	if clientID == "" {
		clientID = "boardlink-" + uuid.NewString()
	}

	c := &mqttConn{
		topic: topic,
		msgs:  make(chan []byte, 256),
		done:  make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetKeepAlive(30 * time.Second).
		SetOrderMatters(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.fail(err)
		})
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pw, ok := u.User.Password(); ok {
			opts.SetPassword(pw)
		}
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts.SetConnectTimeout(time.Until(deadline))
	}

	c.client = mqtt.NewClient(opts)
	if err := waitToken(ctx, c.client.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}

	sub := c.client.Subscribe(topic+"/rx", 0, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case c.msgs <- m.Payload():
		case <-c.done:
		}
	})
	if err := waitToken(ctx, sub); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("mqtt subscribe %s/rx: %w", topic, err)
	}
	return c, nil
}

func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mqttConn struct {
	client mqtt.Client
	topic  string
	msgs   chan []byte

	once sync.Once
	done chan struct{}
	err  error
}

func (c *mqttConn) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *mqttConn) Read() ([]byte, error) {
	select {
	case p := <-c.msgs:
		return p, nil
	case <-c.done:
		if c.err != nil {
			return nil, c.err
		}
		return nil, ErrConnClosed
	}
}

func (c *mqttConn) Write(p []byte) error {
	tok := c.client.Publish(c.topic+"/tx", 0, false, p)
	tok.Wait()
	return tok.Error()
}

func (c *mqttConn) Close() error {
	c.fail(nil)
	c.client.Disconnect(250)
	return nil
}

// TCPBackend connects to a raw socket bridge (tcp://host:port)
type TCPBackend struct{}

func (b *TCPBackend) Name() string { return "tcp" }

func (b *TCPBackend) Accepts(u *url.URL) bool {
	return u.Scheme == "tcp"
}

func (b *TCPBackend) Dial(ctx context.Context, u *url.URL) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return nil, err
	}
	return &streamConn{rw: conn, buf: make([]byte, readBufferSize)}, nil
}

// SerialBackend opens a local UART. Accepts serial:///dev/ttyACM0?baud=57600
// or a bare device path.
type SerialBackend struct{}

const DefaultBaud = 57600

func (b *SerialBackend) Name() string { return "serial" }

func (b *SerialBackend) Accepts(u *url.URL) bool {
	switch u.Scheme {
	case "serial":
		return true
	case "":
		return strings.HasPrefix(u.Path, "/dev/") || strings.HasPrefix(strings.ToUpper(u.Path), "COM")
	default:
		return false
	}
}

func (b *SerialBackend) Dial(ctx context.Context, u *url.URL) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	baud := DefaultBaud
	if v := u.Query().Get("baud"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid baud rate %q", v)
		}
		baud = n
	}

	cfg := &serial.Config{
		Name:        u.Path,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Name, err)
	}
	return &streamConn{rw: port, buf: make([]byte, readBufferSize), idleEOF: true}, nil
}

// streamConn adapts a byte stream; idleEOF treats io.EOF as a read timeout
type streamConn struct {
	rw      io.ReadWriteCloser
	buf     []byte
	idleEOF bool
}

func (c *streamConn) Read() ([]byte, error) {
	n, err := c.rw.Read(c.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, c.buf[:n])
		return out, nil
	}
	if err == nil || (c.idleEOF && errors.Is(err, io.EOF)) {
		return nil, nil
	}
	return nil, err
}

func (c *streamConn) Write(p []byte) error {
	_, err := c.rw.Write(p)
	return err
}

func (c *streamConn) Close() error {
	return c.rw.Close()
}
