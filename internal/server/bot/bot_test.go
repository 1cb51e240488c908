package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Alwanly/img/internal/config"
	"github.com/Alwanly/img/internal/models"
	"github.com/Alwanly/img/internal/server/bot/dto"
	"github.com/Alwanly/img/internal/server/bot/handler"
	"github.com/Alwanly/img/internal/server/bot/repository"
	"github.com/Alwanly/img/internal/server/bot/usecase"
	"github.com/Alwanly/img/pkg/logger"
	"github.com/Alwanly/img/pkg/socketio"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakePlatform serves /session, /users/{name}/bio and the socket endpoint.
type fakePlatform struct {
	t *testing.T

	sessionBody  string
	bioStatus    func(n int) int
	connectReply string
	afterConnect func(conn *websocket.Conn)

	mu        sync.Mutex
	bios      []dto.UpdateBioRequest
	authHdrs  []string
	authFrame string
	dials     int32
	puts      int32
}

func (f *fakePlatform) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(f.sessionBody))
	})
	mux.HandleFunc("/users/img/bio", func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&f.puts, 1))
		var body dto.UpdateBioRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.bios = append(f.bios, body)
		f.authHdrs = append(f.authHdrs, r.Header.Get("Authorization"))
		f.mu.Unlock()

		status := http.StatusOK
		if f.bioStatus != nil {
			status = f.bioStatus(n)
		}
		w.WriteHeader(status)
	})
	mux.HandleFunc("/socket.io/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.dials, 1)
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			f.t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"s","pingInterval":25000,"pingTimeout":20000}`))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.authFrame = string(msg)
		f.mu.Unlock()

		reply := f.connectReply
		if reply == "" {
			reply = "40"
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(reply))
		if f.afterConnect != nil {
			f.afterConnect(conn)
		}
	})
	return mux
}

func (f *fakePlatform) putCount() int {
	return int(atomic.LoadInt32(&f.puts))
}

func newTestBot(t *testing.T, serverURL string, log *logger.CanonicalLogger) (*Bot, *handler.Handler) {
	t.Helper()
	cfg := &config.BotConfig{
		Username:          "img",
		Password:          "pw",
		ServerURL:         serverURL,
		HeartbeatInterval: 20 * time.Millisecond,
		Version:           "test",
	}
	platform := repository.NewPlatformClient(cfg, log)
	uc := usecase.NewUseCase(platform, models.Credentials{Username: cfg.Username, Password: cfg.Password})
	status := handler.NewHandler("test-instance", cfg.Username, cfg.Version, time.Now())
	return New(cfg, uc, handler.NewEventHandler(log), status, log), status
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func runBot(ctx context.Context, b *Bot) <-chan error {
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	return done
}

func TestRun_HeartbeatSurvivesImmediateDisconnect(t *testing.T) {
	fp := &fakePlatform{t: t, sessionBody: `{"token":"abc123"}`}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	b, status := newTestBot(t, srv.URL, logger.New(zap.NewNop()))
	ctx, cancel := context.WithCancel(context.Background())
	done := runBot(ctx, b)

	waitFor(t, func() bool { return fp.putCount() >= 3 })
	waitFor(t, func() bool { return status.Phase() == handler.PhaseDisconnected })
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.authFrame != `40{"token":"abc123"}` {
		t.Fatalf("expected token in connect packet, got %q", fp.authFrame)
	}
	for _, h := range fp.authHdrs {
		if h != "abc123" {
			t.Fatalf("expected Authorization abc123, got %q", h)
		}
	}
	for _, body := range fp.bios {
		if body.Bio == "" {
			t.Fatalf("expected non-empty bio")
		}
	}
}

func TestRun_BioFailureDoesNotStopLoop(t *testing.T) {
	fp := &fakePlatform{
		t:           t,
		sessionBody: `{"token":"abc123"}`,
		bioStatus: func(n int) int {
			if n == 1 {
				return http.StatusInternalServerError
			}
			return http.StatusOK
		},
		afterConnect: func(conn *websocket.Conn) {
			// hold the socket open until the client goes away
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		},
	}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	b, status := newTestBot(t, srv.URL, logger.New(zap.NewNop()))
	ctx, cancel := context.WithCancel(context.Background())
	done := runBot(ctx, b)

	waitFor(t, func() bool { return fp.putCount() >= 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}

	if !status.Snapshot().LastHeartbeatOK {
		t.Fatalf("expected a later heartbeat to succeed")
	}
}

func TestRun_MissingTokenIsStartupError(t *testing.T) {
	fp := &fakePlatform{t: t, sessionBody: `{"user":"img"}`}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	b, _ := newTestBot(t, srv.URL, logger.New(zap.NewNop()))
	err := b.Run(context.Background())

	var se *StartupError
	if !errors.As(err, &se) || se.Stage != StageAuthenticate {
		t.Fatalf("expected authenticate startup error, got %v", err)
	}
	if !errors.Is(err, repository.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if atomic.LoadInt32(&fp.dials) != 0 || fp.putCount() != 0 {
		t.Fatalf("expected no socket dial and no bio update")
	}
}

func TestRun_ConnectRejectedIsStartupError(t *testing.T) {
	fp := &fakePlatform{t: t, sessionBody: `{"token":"abc123"}`, connectReply: `44{"message":"nope"}`}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	b, _ := newTestBot(t, srv.URL, logger.New(zap.NewNop()))
	err := b.Run(context.Background())

	var se *StartupError
	if !errors.As(err, &se) || se.Stage != StageConnect {
		t.Fatalf("expected connect startup error, got %v", err)
	}
	if !errors.Is(err, socketio.ErrConnectRejected) {
		t.Fatalf("expected ErrConnectRejected, got %v", err)
	}
	if fp.putCount() != 0 {
		t.Fatalf("heartbeat must not start before the socket is up")
	}
}

func TestRun_LogsMessageCount(t *testing.T) {
	fp := &fakePlatform{
		t:           t,
		sessionBody: `{"token":"abc123"}`,
		afterConnect: func(conn *websocket.Conn) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`42["updateMessageCount","5"]`))
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		},
	}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	b, _ := newTestBot(t, srv.URL, logger.New(zap.New(core)))
	ctx, cancel := context.WithCancel(context.Background())
	done := runBot(ctx, b)

	waitFor(t, func() bool { return logs.FilterMessage("received message count").Len() == 1 })
	cancel()
	<-done

	entry := logs.FilterMessage("received message count").All()[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level, got %v", entry.Level)
	}
	if entry.ContextMap()[logger.FieldPayload] != `"5"` {
		t.Fatalf("expected payload \"5\", got %v", entry.ContextMap()[logger.FieldPayload])
	}
}
