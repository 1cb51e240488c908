package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Alwanly/img/internal/models"
	"github.com/Alwanly/img/internal/server/bot/repository"
)

// BioTimeLayout is how the heartbeat timestamp is rendered in the bio.
const BioTimeLayout = "2006-01-02 15:04:05 MST"

var ErrNoSession = errors.New("no session token")

type UseCase struct {
	platform repository.IPlatformClient
	creds    models.Credentials
	now      func() time.Time
}

func NewUseCase(platform repository.IPlatformClient, creds models.Credentials) *UseCase {
	return &UseCase{
		platform: platform,
		creds:    creds,
		now:      time.Now,
	}
}

// WithClock replaces time.Now, mostly for tests.
func (uc *UseCase) WithClock(now func() time.Time) *UseCase {
	uc.now = now
	return uc
}

// Authenticate performs the one login of the process
func (uc *UseCase) Authenticate(ctx context.Context) (*models.Session, error) {
	token, err := uc.platform.CreateSession(ctx, uc.creds.Username, uc.creds.Password)
	if err != nil {
		return nil, fmt.Errorf("authenticate %s: %w", uc.creds.Username, err)
	}
	return &models.Session{Token: token, CreatedAt: uc.now()}, nil
}

// PublishHeartbeat builds the bio for the current local time and sends it.
// Failures are reported in the result, never retried here.
func (uc *UseCase) PublishHeartbeat(ctx context.Context, session *models.Session, iteration int) models.HeartbeatResult {
	sentAt := uc.now()
	result := models.HeartbeatResult{
		Iteration: iteration,
		Bio:       BuildBio(sentAt),
		SentAt:    sentAt,
	}

	if session == nil || session.Token == "" {
		result.Err = ErrNoSession
		return result
	}

	if err := uc.platform.UpdateBio(ctx, session.Token, uc.creds.Username, result.Bio); err != nil {
		result.Err = fmt.Errorf("update bio: %w", err)
	}
	return result
}

// BuildBio renders the liveness status for t in its own location.
func BuildBio(t time.Time) string {
	return fmt.Sprintf("img is online! last seen %s", t.Format(BioTimeLayout))
}
