package usecase

import (
	"context"

	"github.com/Alwanly/img/internal/models"
)

// IUseCase defines the business logic interface for the bot
type IUseCase interface {
	// Authenticate exchanges the configured credentials for a session
	Authenticate(ctx context.Context) (*models.Session, error)
	// PublishHeartbeat writes one timestamped bio using the session token
	PublishHeartbeat(ctx context.Context, session *models.Session, iteration int) models.HeartbeatResult
}
