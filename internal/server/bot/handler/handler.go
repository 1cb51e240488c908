package handler

import (
	"sync"
	"time"

	"github.com/Alwanly/img/internal/models"
	"github.com/Alwanly/img/internal/server/bot/dto"
	"github.com/Alwanly/img/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

type Phase string

const (
	PhaseStarting       Phase = "starting"
	PhaseAuthenticating Phase = "authenticating"
	PhaseConnecting     Phase = "connecting"
	PhaseRunning        Phase = "running"
	PhaseDisconnected   Phase = "disconnected"
)

type status struct {
	phase             Phase
	lastHeartbeat     *time.Time
	lastHeartbeatErr  error
	heartbeatAttempts int
}

// Handler serves the local /health endpoint from a snapshot of the bot phase
// and the latest heartbeat.
type Handler struct {
	mu sync.RWMutex

	instanceID string
	username   string
	version    string
	startTime  time.Time
	status     status
}

func NewHandler(instanceID, username, version string, startTime time.Time) *Handler {
	return &Handler{
		instanceID: instanceID,
		username:   username,
		version:    version,
		startTime:  startTime,
		status:     status{phase: PhaseStarting},
	}
}

func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.Health)
}

func (h *Handler) SetPhase(p Phase) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.phase = p
}

func (h *Handler) Phase() Phase {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status.phase
}

func (h *Handler) RecordHeartbeat(res models.HeartbeatResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sentAt := res.SentAt
	h.status.lastHeartbeat = &sentAt
	h.status.lastHeartbeatErr = res.Err
	h.status.heartbeatAttempts++
}

// Snapshot copies the current state into a response body.
func (h *Handler) Snapshot() dto.HealthResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := dto.HealthResponse{
		Status:            string(h.status.phase),
		InstanceID:        h.instanceID,
		Username:          h.username,
		Version:           h.version,
		StartTime:         h.startTime,
		Uptime:            time.Since(h.startTime).String(),
		LastHeartbeat:     h.status.lastHeartbeat,
		LastHeartbeatOK:   h.status.lastHeartbeat != nil && h.status.lastHeartbeatErr == nil,
		HeartbeatAttempts: h.status.heartbeatAttempts,
	}
	if h.status.lastHeartbeatErr != nil {
		resp.LastHeartbeatErr = h.status.lastHeartbeatErr.Error()
	}
	return resp
}

func (h *Handler) Health(c *fiber.Ctx) error {
	resp := h.Snapshot()

	statusCode := fiber.StatusOK
	switch Phase(resp.Status) {
	case PhaseDisconnected:
		statusCode = fiber.StatusServiceUnavailable
	case PhaseStarting, PhaseAuthenticating, PhaseConnecting:
		statusCode = fiber.StatusAccepted
	}

	logger.AddToContext(c.UserContext(),
		logger.String(logger.FieldOperation, "health"),
		logger.Bool(logger.FieldSuccess, statusCode == fiber.StatusOK),
	)

	return c.Status(statusCode).JSON(resp)
}
