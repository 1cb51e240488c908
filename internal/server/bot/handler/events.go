package handler

import (
	"github.com/Alwanly/img/pkg/logger"
	"github.com/Alwanly/img/pkg/socketio"
)

// EventUpdateMessageCount is pushed by the platform whenever the unread count changes.
const EventUpdateMessageCount = "updateMessageCount"

// EventHandler logs realtime events. It keeps no state of its own.
type EventHandler struct {
	log *logger.CanonicalLogger
}

func NewEventHandler(log *logger.CanonicalLogger) *EventHandler {
	return &EventHandler{log: log.Component("realtime")}
}

// Handlers is the event name -> handler table the socket dispatches on.
func (h *EventHandler) Handlers() map[string]socketio.Handler {
	return map[string]socketio.Handler{
		EventUpdateMessageCount: h.UpdateMessageCount,
		socketio.EventError:     h.Error,
		socketio.EventClose:     h.Close,
		socketio.EventMessage:   h.Message,
	}
}

// Register installs every handler on c.
func (h *EventHandler) Register(c *socketio.Client) {
	for name, fn := range h.Handlers() {
		c.On(name, fn)
	}
}

func (h *EventHandler) UpdateMessageCount(ev socketio.Event) {
	switch p := ev.Payload.(type) {
	case socketio.Text:
		h.log.WithEvent(ev.Name).Info("received message count", logger.String(logger.FieldPayload, string(p)))
	default:
		h.log.WithEvent(ev.Name).Warn("can't handle data", logger.Any(logger.FieldPayload, p))
	}
}

// Error logs a problem reported over the socket. The platform only ever
// sends text errors, so a binary one aborts the process.
func (h *EventHandler) Error(ev socketio.Event) {
	switch p := ev.Payload.(type) {
	case socketio.Text:
		h.log.WithEvent(ev.Name).Warn("realtime error", logger.String(logger.FieldPayload, string(p)))
	case socketio.Binary:
		h.log.WithEvent(ev.Name).Panic("binary payload on error event, protocol changed", logger.Binary(logger.FieldPayload, p))
	default:
		h.log.WithEvent(ev.Name).Warn("realtime error without payload")
	}
}

// Close logs the end of the realtime connection. Shutting down on our side
// is expected and only noted at debug.
func (h *EventHandler) Close(ev socketio.Event) {
	reason, _ := ev.Payload.(socketio.Text)
	if string(reason) == socketio.ReasonClientDisconnect {
		h.log.WithEvent(ev.Name).Debug("realtime connection closed", logger.String("reason", string(reason)))
		return
	}
	h.log.WithEvent(ev.Name).Info("connection lost, no more realtime events", logger.String("reason", string(reason)))
}

func (h *EventHandler) Message(ev socketio.Event) {
	h.log.WithEvent(ev.Name).Debug("unhandled event", logger.Any(logger.FieldPayload, ev.Payload))
}
