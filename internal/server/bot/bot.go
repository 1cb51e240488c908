package bot

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Alwanly/img/internal/config"
	"github.com/Alwanly/img/internal/server/bot/dto"
	"github.com/Alwanly/img/internal/server/bot/handler"
	"github.com/Alwanly/img/internal/server/bot/usecase"
	"github.com/Alwanly/img/pkg/logger"
	"github.com/Alwanly/img/pkg/socketio"
)

// Stage names the startup step a StartupError came from.
type Stage string

const (
	StageAuthenticate Stage = "authenticate"
	StageConnect      Stage = "connect"
)

// StartupError is returned by Run when the bot could not get to its loop.
type StartupError struct {
	Stage Stage
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// Bot runs login, the realtime connection and the heartbeat in that order.
type Bot struct {
	cfg     *config.BotConfig
	useCase usecase.IUseCase
	events  *handler.EventHandler
	status  *handler.Handler
	logger  *logger.CanonicalLogger
}

func New(cfg *config.BotConfig, uc usecase.IUseCase, events *handler.EventHandler, status *handler.Handler, log *logger.CanonicalLogger) *Bot {
	return &Bot{
		cfg:     cfg,
		useCase: uc,
		events:  events,
		status:  status,
		logger:  log,
	}
}

// Run blocks in the heartbeat loop until ctx is cancelled. Anything that
// fails before the loop starts comes back as a *StartupError.
func (b *Bot) Run(ctx context.Context) error {
	b.status.SetPhase(handler.PhaseAuthenticating)
	session, err := b.useCase.Authenticate(ctx)
	if err != nil {
		return &StartupError{Stage: StageAuthenticate, Err: err}
	}
	b.logger.Info("logged in", logger.String(logger.FieldUsername, b.cfg.Username))

	b.status.SetPhase(handler.PhaseConnecting)
	b.logger.Info("connecting to server...", logger.String(logger.FieldServerURL, b.cfg.ServerURL))

	header := http.Header{}
	header.Set("User-Agent", "img/"+b.cfg.Version)
	client := socketio.NewClient(b.cfg.ServerURL, b.logger,
		socketio.WithAuth(dto.RealtimeAuth{Token: session.Token}),
		socketio.WithHeader(header),
	)
	b.events.Register(client)

	if err := client.Connect(ctx); err != nil {
		return &StartupError{Stage: StageConnect, Err: err}
	}
	defer client.Close()

	b.logger.Info("connected!")
	b.status.SetPhase(handler.PhaseRunning)

	go func() {
		select {
		case <-client.Done():
			b.status.SetPhase(handler.PhaseDisconnected)
		case <-ctx.Done():
		}
	}()

	return NewHeartbeat(b.useCase, session, b.cfg.HeartbeatInterval, b.logger, b.status.RecordHeartbeat).Run(ctx)
}
