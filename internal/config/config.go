package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Alwanly/img/pkg/poll"
	"github.com/Alwanly/img/pkg/validator"
	"github.com/BurntSushi/toml"
)

// DefaultConfigPath is where the credentials file is looked up, relative
// to the working directory.
const DefaultConfigPath = "Img.toml"

const defaultServerURL = "https://api.wasteof.money"

var ErrInvalidConfig = errors.New("invalid configuration")

// FileConfig mirrors the layout of Img.toml.
type FileConfig struct {
	Authentication Authentication `toml:"authentication" validate:"required"`
}

type Authentication struct {
	Username string `toml:"username" validate:"required"`
	Password string `toml:"password" validate:"required"`
}

// BotConfig is resolved once at startup and never changes afterwards.
type BotConfig struct {
	Username          string
	Password          string
	ServerURL         string
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
	HealthAddr        string
	Version           string

	// IgnoredKeys lists Img.toml keys the loader does not know about.
	IgnoredKeys []string
}

// LoadBotConfig reads Img.toml from the working directory and the rest
// from environment or defaults
func LoadBotConfig(version string) (*BotConfig, error) {
	return LoadBotConfigFrom(DefaultConfigPath, version)
}

// LoadBotConfigFrom is LoadBotConfig with an explicit file path.
func LoadBotConfigFrom(path, version string) (*BotConfig, error) {
	creds, ignored, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	heartbeat := poll.DefaultInterval
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			heartbeat = time.Duration(i) * time.Second
		}
	}

	// zero keeps the transport default
	var reqTimeout time.Duration
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			reqTimeout = time.Duration(i) * time.Second
		}
	}

	return &BotConfig{
		Username:          creds.Authentication.Username,
		Password:          creds.Authentication.Password,
		ServerURL:         strings.TrimRight(envOrDefault("SERVER_URL", defaultServerURL), "/"),
		HeartbeatInterval: heartbeat,
		RequestTimeout:    reqTimeout,
		HealthAddr:        os.Getenv("HEALTH_ADDR"),
		Version:           version,
		IgnoredKeys:       ignored,
	}, nil
}

// loadFile decodes path and returns the keys it skipped alongside.
func loadFile(path string) (*FileConfig, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := &FileConfig{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	if !md.IsDefined("authentication") {
		return nil, nil, fmt.Errorf("%w: missing [authentication] table in %s", ErrInvalidConfig, path)
	}
	if err := validator.ValidateStruct(cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, validator.TranslateError(err))
	}

	var ignored []string
	for _, key := range md.Undecoded() {
		ignored = append(ignored, key.String())
	}
	return cfg, ignored, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
