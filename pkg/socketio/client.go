package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Alwanly/img/pkg/logger"
	"github.com/gorilla/websocket"
)

// Reserved event names. EventMessage receives every event that has no
// handler of its own.
const (
	EventMessage = "message"
	EventError   = "error"
	EventClose   = "close"
)

// Close reasons carried as the Text payload of the close event.
const (
	ReasonClientDisconnect = "io client disconnect"
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
	ReasonPingTimeout      = "ping timeout"
)

var (
	ErrConnectRejected = errors.New("connection rejected by server")
	ErrHandshake       = errors.New("engine.io handshake failed")
	ErrAlreadyStarted  = errors.New("client already connected")
)

// Handler reacts to one event. Handlers run one at a time on the read loop
// and must not block.
type Handler func(Event)

// Option customises a Client.
type Option func(*Client)

// WithAuth sets the payload sent with the namespace CONNECT packet.
func WithAuth(auth interface{}) Option {
	return func(c *Client) { c.auth = auth }
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithHeader adds headers to the upgrade request.
func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

// Client is a Socket.IO v5 client over the Engine.IO v4 websocket transport.
// It connects once and never reconnects.
type Client struct {
	serverURL string
	auth      interface{}
	dialer    *websocket.Dialer
	header    http.Header
	handlers  map[string]Handler
	log       *logger.CanonicalLogger

	conn      *websocket.Conn
	open      openPacket
	writeMu   sync.Mutex
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewClient prepares a client for serverURL (http, https, ws or wss).
func NewClient(serverURL string, log *logger.CanonicalLogger, opts ...Option) *Client {
	c := &Client{
		serverURL: serverURL,
		dialer:    websocket.DefaultDialer,
		handlers:  make(map[string]Handler),
		log:       log.Component("socketio"),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// On registers h for the named event. It must be called before Connect.
func (c *Client) On(event string, h Handler) *Client {
	c.handlers[event] = h
	return c
}

// Connect dials the server, completes the Engine.IO and Socket.IO handshakes
// and starts the read loop in the background. It returns once the server has
// accepted the namespace connection or failed to.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return ErrAlreadyStarted
	}

	endpoint, err := EndpointURL(c.serverURL)
	if err != nil {
		return err
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, c.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	// unblock the handshake reads and writes once ctx is done
	stop := context.AfterFunc(ctx, func() {
		now := time.Now()
		_ = conn.SetReadDeadline(now)
		_ = conn.SetWriteDeadline(now)
	})
	err = c.handshake(conn)
	if !stop() && ctx.Err() != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %w", ErrHandshake, ctx.Err())
	}
	if err != nil {
		_ = conn.Close()
		return err
	}

	c.conn = conn
	c.extendDeadline()
	c.log.Debug("connected", logger.String("sid", c.open.SID), logger.Int("ping_interval_ms", c.open.PingInterval))

	go c.readLoop()
	return nil
}

// Done is closed after the connection is gone and close has been dispatched.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a DISCONNECT and tears down the connection. The read loop
// then dispatches close with ReasonClientDisconnect.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.closing.Store(true)
	_ = c.writeText(string(engineMessage) + Packet{Type: PacketDisconnect}.Encode())
	return c.conn.Close()
}

func (c *Client) handshake(conn *websocket.Conn) error {
	mt, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("%w: read open packet: %v", ErrHandshake, err)
	}
	if mt != websocket.TextMessage || len(data) == 0 || data[0] != engineOpen {
		return fmt.Errorf("%w: unexpected first frame %q", ErrHandshake, data)
	}
	if err := json.Unmarshal(data[1:], &c.open); err != nil {
		return fmt.Errorf("%w: decode open packet: %v", ErrHandshake, err)
	}

	connect := Packet{Type: PacketConnect}
	if c.auth != nil {
		raw, err := json.Marshal(c.auth)
		if err != nil {
			return fmt.Errorf("marshal auth payload: %w", err)
		}
		connect.Data = raw
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(string(engineMessage)+connect.Encode())); err != nil {
		return fmt.Errorf("send connect packet: %w", err)
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: waiting for connect ack: %v", ErrHandshake, err)
		}
		if mt != websocket.TextMessage || len(data) == 0 {
			continue
		}

		switch data[0] {
		case enginePing:
			if err := conn.WriteMessage(websocket.TextMessage, []byte{enginePong}); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		case engineClose:
			return fmt.Errorf("%w: server closed during handshake", ErrHandshake)
		case engineMessage:
			p, err := DecodePacket(string(data[1:]))
			if err != nil {
				return fmt.Errorf("%w: %v", ErrHandshake, err)
			}
			switch p.Type {
			case PacketConnect:
				return nil
			case PacketConnectError:
				var ce connectError
				_ = json.Unmarshal(p.Data, &ce)
				if ce.Message == "" {
					ce.Message = string(p.Data)
				}
				return fmt.Errorf("%w: %s", ErrConnectRejected, ce.Message)
			}
		}
	}
}

func (c *Client) readLoop() {
	var (
		pending     *Packet
		attachments [][]byte
	)

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug("read loop stopped", logger.Err(err))
			c.finish(c.readErrorReason(err))
			return
		}
		c.extendDeadline()

		if mt == websocket.BinaryMessage {
			if pending == nil {
				c.dispatch(Event{Name: EventError, Payload: Text("unexpected binary frame")})
				continue
			}
			attachments = append(attachments, data)
			if len(attachments) == pending.Attachments {
				c.dispatchPacket(*pending, attachments)
				pending, attachments = nil, nil
			}
			continue
		}
		if len(data) == 0 {
			continue
		}

		switch data[0] {
		case enginePing:
			if err := c.writeText(string(enginePong)); err != nil {
				c.log.Debug("failed to answer ping", logger.Err(err))
			}
		case engineClose:
			c.finish(ReasonTransportClose)
			return
		case engineMessage:
			p, err := DecodePacket(string(data[1:]))
			if err != nil {
				c.dispatch(Event{Name: EventError, Payload: Text(err.Error())})
				continue
			}
			switch p.Type {
			case PacketDisconnect:
				c.finish(ReasonServerDisconnect)
				return
			case PacketConnectError:
				c.dispatch(Event{Name: EventError, Payload: Text(p.Data)})
			case PacketBinaryEvent:
				if p.Attachments == 0 {
					c.dispatchPacket(p, nil)
					continue
				}
				pending, attachments = &p, nil
			case PacketEvent:
				c.dispatchPacket(p, nil)
			}
		}
	}
}

func (c *Client) dispatchPacket(p Packet, attachments [][]byte) {
	name, args, err := p.EventArgs()
	if err != nil {
		c.dispatch(Event{Name: EventError, Payload: Text(err.Error())})
		return
	}

	var payload Payload
	if p.Type == PacketBinaryEvent {
		payload = binaryPayload(args, attachments)
	} else {
		payload = textPayload(args)
	}
	c.dispatch(Event{Name: name, Payload: payload})
}

func (c *Client) dispatch(ev Event) {
	h, ok := c.handlers[ev.Name]
	if !ok {
		h, ok = c.handlers[EventMessage]
	}
	if !ok {
		c.log.Debug("no handler for event", logger.String(logger.FieldEvent, ev.Name))
		return
	}
	h(ev)
}

// finish dispatches close exactly once and releases Done waiters.
func (c *Client) finish(reason string) {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
		c.dispatch(Event{Name: EventClose, Payload: Text(reason)})
		close(c.done)
	})
}

func (c *Client) readErrorReason(err error) string {
	if c.closing.Load() {
		return ReasonClientDisconnect
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonPingTimeout
	}
	return ReasonTransportClose
}

func (c *Client) writeText(s string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// extendDeadline gives the server one ping interval plus the ping timeout to
// show signs of life before the read loop gives up.
func (c *Client) extendDeadline() {
	if c.open.PingInterval <= 0 {
		_ = c.conn.SetReadDeadline(time.Time{})
		return
	}
	wait := time.Duration(c.open.PingInterval+c.open.PingTimeout) * time.Millisecond
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
}

// EndpointURL turns a server base URL into the Engine.IO websocket endpoint.
func EndpointURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/socket.io/"
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
