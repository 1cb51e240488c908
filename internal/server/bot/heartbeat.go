package bot

import (
	"context"
	"errors"
	"time"

	"github.com/Alwanly/img/internal/models"
	"github.com/Alwanly/img/internal/server/bot/usecase"
	"github.com/Alwanly/img/pkg/logger"
	"github.com/Alwanly/img/pkg/poll"
	"github.com/google/uuid"
)

// Heartbeat republishes the bio every interval for as long as ctx lives
type Heartbeat struct {
	useCase  usecase.IUseCase
	session  *models.Session
	interval time.Duration
	onResult func(models.HeartbeatResult)
	logger   *logger.CanonicalLogger
}

// NewHeartbeat creates a new heartbeat publisher. onResult may be nil.
func NewHeartbeat(uc usecase.IUseCase, session *models.Session, interval time.Duration, log *logger.CanonicalLogger, onResult func(models.HeartbeatResult)) *Heartbeat {
	return &Heartbeat{
		useCase:  uc,
		session:  session,
		interval: interval,
		onResult: onResult,
		logger:   log.Component("heartbeat"),
	}
}

// Run loops until ctx is cancelled. A failed update only produces a warning;
// the next tick is the retry.
func (h *Heartbeat) Run(ctx context.Context) error {
	h.logger.Info("starting heartbeat",
		logger.Duration("interval", h.interval),
	)

	err := poll.Every(ctx, h.interval, h.beat)
	if errors.Is(err, context.Canceled) {
		h.logger.Info("stopping heartbeat")
		return nil
	}
	return err
}

func (h *Heartbeat) beat(ctx context.Context, iteration int) {
	ctx = logger.WithCorrelationID(ctx, uuid.NewString())

	res := h.useCase.PublishHeartbeat(ctx, h.session, iteration)
	if res.Err != nil {
		h.logger.WithError(res.Err).Warn("failed to update bio, the bot may appear offline",
			logger.Int(logger.FieldIteration, iteration),
			logger.Bool(logger.FieldSuccess, false),
		)
	} else {
		h.logger.Info("bio updated",
			logger.Int(logger.FieldIteration, iteration),
			logger.String("bio", res.Bio),
			logger.Time("sent_at", res.SentAt),
			logger.Bool(logger.FieldSuccess, true),
		)
	}

	if h.onResult != nil {
		h.onResult(res)
	}
}
