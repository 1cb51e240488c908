package socketio

import (
	"bytes"
	"encoding/json"
)

// Payload is the data carried by an event: either Text or Binary.
type Payload interface {
	isPayload()
}

// Text is the raw JSON of the event arguments. A single argument is kept
// as is, so the string "hi" arrives as `"hi"` and the number 5 as `5`.
type Text string

// Binary is an attachment sent alongside a binary event.
type Binary []byte

func (Text) isPayload()   {}
func (Binary) isPayload() {}

// Event is what handlers receive. Payload is nil for close.
type Event struct {
	Name    string
	Payload Payload
}

// textPayload renders event arguments. No arguments gives an empty Text,
// several are joined back into a JSON array.
func textPayload(args []json.RawMessage) Text {
	switch len(args) {
	case 0:
		return ""
	case 1:
		return Text(args[0])
	default:
		parts := make([][]byte, len(args))
		for i, arg := range args {
			parts[i] = arg
		}
		return Text("[" + string(bytes.Join(parts, []byte(","))) + "]")
	}
}

// binaryPayload resolves the first placeholder argument against the
// collected attachments. It falls back to Text when no placeholder is found.
func binaryPayload(args []json.RawMessage, attachments [][]byte) Payload {
	for _, arg := range args {
		var ph placeholder
		if err := json.Unmarshal(arg, &ph); err != nil || !ph.Placeholder {
			continue
		}
		if ph.Num >= 0 && ph.Num < len(attachments) {
			return Binary(attachments[ph.Num])
		}
	}
	return textPayload(args)
}
