package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Alwanly/img/internal/config"
	"github.com/Alwanly/img/internal/server/bot/dto"
	"github.com/Alwanly/img/pkg/logger"
)

// ErrMissingToken means the session endpoint answered without a token.
var ErrMissingToken = errors.New("session response has no token")

type platformClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     *logger.CanonicalLogger
}

// NewPlatformClient creates a new platform client repository
func NewPlatformClient(cfg *config.BotConfig, log *logger.CanonicalLogger) IPlatformClient {
	return &platformClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.ServerURL,
		userAgent:  "img/" + cfg.Version,
		logger:     log,
	}
}

func (c *platformClient) CreateSession(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(dto.CreateSessionRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to marshal session request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/session", body)
	if err != nil {
		return "", err
	}

	c.logger.Debug("sending session request",
		logger.String("url", req.URL.String()),
		logger.String(logger.FieldUsername, username),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("session request failed with status %d: %s", resp.StatusCode, string(b))
	}

	var sessionResp dto.CreateSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sessionResp); err != nil {
		return "", fmt.Errorf("failed to decode session response: %w", err)
	}

	if sessionResp.Token == "" {
		return "", ErrMissingToken
	}

	return sessionResp.Token, nil
}

func (c *platformClient) UpdateBio(ctx context.Context, token, username, bio string) error {
	body, err := json.Marshal(dto.UpdateBioRequest{Bio: bio})
	if err != nil {
		return fmt.Errorf("failed to marshal bio request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/bio", c.baseURL, url.PathEscape(username))
	req, err := c.newRequest(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return err
	}
	// the platform expects the raw token, no "Bearer" scheme
	req.Header.Set("Authorization", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bio update failed with status %d: %s", resp.StatusCode, string(b))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *platformClient) newRequest(ctx context.Context, method, endpoint string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if id := logger.GetCorrelationID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	return req, nil
}
