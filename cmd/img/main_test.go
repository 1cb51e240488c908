package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Alwanly/img/internal/config"
	"github.com/Alwanly/img/internal/server/bot"
	"github.com/Alwanly/img/pkg/logger"
	"go.uber.org/zap"
)

func countingServer(t *testing.T, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRun_BadConfigMakesNoRequests(t *testing.T) {
	srv, hits := countingServer(t, `{"token":"abc123"}`)
	t.Setenv("SERVER_URL", srv.URL)
	t.Setenv("HEALTH_ADDR", "")

	dir := t.TempDir()
	bad := filepath.Join(dir, "Img.toml")
	if err := os.WriteFile(bad, []byte("[authentication]\nusername = \"img\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cases := map[string]string{
		"missing":   filepath.Join(dir, "absent.toml"),
		"malformed": bad,
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			err := run(context.Background(), logger.New(zap.NewNop()), path, "test")
			if err == nil {
				t.Fatalf("expected error")
			}
			if atomic.LoadInt32(hits) != 0 {
				t.Fatalf("expected no HTTP calls, got %d", atomic.LoadInt32(hits))
			}
		})
	}
}

func TestRun_MissingTokenFailsStartup(t *testing.T) {
	srv, hits := countingServer(t, `{"message":"ok"}`)
	t.Setenv("SERVER_URL", srv.URL)
	t.Setenv("HEALTH_ADDR", "")

	path := filepath.Join(t.TempDir(), config.DefaultConfigPath)
	if err := os.WriteFile(path, []byte("[authentication]\nusername = \"img\"\npassword = \"pw\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	err := run(context.Background(), logger.New(zap.NewNop()), path, "test")
	var se *bot.StartupError
	if !errors.As(err, &se) || se.Stage != bot.StageAuthenticate {
		t.Fatalf("expected authenticate startup error, got %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("expected exactly the session request, got %d", got)
	}
}

func TestRun_StartupErrorStopsHealthServer(t *testing.T) {
	srv, _ := countingServer(t, `{}`)
	t.Setenv("SERVER_URL", srv.URL)
	t.Setenv("HEALTH_ADDR", "127.0.0.1:0")

	path := filepath.Join(t.TempDir(), config.DefaultConfigPath)
	if err := os.WriteFile(path, []byte("[authentication]\nusername = \"img\"\npassword = \"pw\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// returns instead of hanging on the health server
	if err := run(context.Background(), logger.New(zap.NewNop()), path, "test"); err == nil {
		t.Fatalf("expected startup error")
	}
}
