package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types, sent as the first byte of every text frame.
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineUpgrade byte = '5'
	engineNoop    byte = '6'
)

// PacketType is a Socket.IO v5 packet type.
type PacketType byte

const (
	PacketConnect PacketType = iota
	PacketDisconnect
	PacketEvent
	PacketAck
	PacketConnectError
	PacketBinaryEvent
	PacketBinaryAck
)

func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "CONNECT"
	case PacketDisconnect:
		return "DISCONNECT"
	case PacketEvent:
		return "EVENT"
	case PacketAck:
		return "ACK"
	case PacketConnectError:
		return "CONNECT_ERROR"
	case PacketBinaryEvent:
		return "BINARY_EVENT"
	case PacketBinaryAck:
		return "BINARY_ACK"
	default:
		return "UNKNOWN"
	}
}

func (t PacketType) binary() bool {
	return t == PacketBinaryEvent || t == PacketBinaryAck
}

const defaultNamespace = "/"

var (
	ErrEmptyPacket      = errors.New("empty packet")
	ErrUnknownPacket    = errors.New("unknown packet type")
	ErrMalformedPacket  = errors.New("malformed packet")
	ErrNotAnEventPacket = errors.New("packet carries no event")
)

// Packet is one decoded Socket.IO packet. Data holds the raw JSON after the
// header, if any.
type Packet struct {
	Type        PacketType
	Namespace   string
	Attachments int
	ID          *int
	Data        json.RawMessage
}

// DecodePacket parses the Socket.IO part of an Engine.IO message, i.e. the
// text that follows the leading '4'. The format is
// <type>[<attachments>-][<namespace>,][<ack id>][<json>].
func DecodePacket(s string) (Packet, error) {
	if s == "" {
		return Packet{}, ErrEmptyPacket
	}
	if s[0] < '0' || s[0] > '6' {
		return Packet{}, fmt.Errorf("%w: %q", ErrUnknownPacket, s[0])
	}

	p := Packet{Type: PacketType(s[0] - '0'), Namespace: defaultNamespace}
	rest := s[1:]

	if p.Type.binary() {
		dash := strings.IndexByte(rest, '-')
		if dash <= 0 {
			return Packet{}, fmt.Errorf("%w: missing attachment count", ErrMalformedPacket)
		}
		n, err := strconv.Atoi(rest[:dash])
		if err != nil || n < 0 {
			return Packet{}, fmt.Errorf("%w: bad attachment count %q", ErrMalformedPacket, rest[:dash])
		}
		p.Attachments = n
		rest = rest[dash+1:]
	}

	if strings.HasPrefix(rest, "/") {
		comma := strings.IndexByte(rest, ',')
		if comma < 0 {
			p.Namespace = rest
			rest = ""
		} else {
			p.Namespace = rest[:comma]
			rest = rest[comma+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return Packet{}, fmt.Errorf("%w: bad ack id", ErrMalformedPacket)
		}
		p.ID = &id
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return Packet{}, fmt.Errorf("%w: invalid json body", ErrMalformedPacket)
		}
		p.Data = json.RawMessage(rest)
	}

	return p, nil
}

// Encode renders the packet in Socket.IO wire form, without the Engine.IO prefix.
func (p Packet) Encode() string {
	var b strings.Builder
	b.WriteByte('0' + byte(p.Type))
	if p.Type.binary() {
		b.WriteString(strconv.Itoa(p.Attachments))
		b.WriteByte('-')
	}
	if p.Namespace != "" && p.Namespace != defaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID != nil {
		b.WriteString(strconv.Itoa(*p.ID))
	}
	b.Write(p.Data)
	return b.String()
}

// EventArgs splits an event packet body ["name", arg...] into its name and
// raw arguments.
func (p Packet) EventArgs() (string, []json.RawMessage, error) {
	if p.Type != PacketEvent && p.Type != PacketBinaryEvent {
		return "", nil, ErrNotAnEventPacket
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(p.Data, &parts); err != nil {
		return "", nil, fmt.Errorf("%w: event body is not an array", ErrMalformedPacket)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: event without name", ErrMalformedPacket)
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name is not a string", ErrMalformedPacket)
	}
	return name, parts[1:], nil
}

// connectError is the body of a CONNECT_ERROR packet.
type connectError struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// openPacket is the Engine.IO handshake sent by the server right after the upgrade.
type openPacket struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// placeholder marks where a binary attachment belongs inside an event body.
type placeholder struct {
	Placeholder bool `json:"_placeholder"`
	Num         int  `json:"num"`
}
