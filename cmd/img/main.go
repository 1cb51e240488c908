package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alwanly/img/internal/config"
	"github.com/Alwanly/img/internal/models"
	"github.com/Alwanly/img/internal/server/bot"
	"github.com/Alwanly/img/internal/server/bot/handler"
	"github.com/Alwanly/img/internal/server/bot/repository"
	"github.com/Alwanly/img/internal/server/bot/usecase"
	"github.com/Alwanly/img/pkg/logger"
	"github.com/Alwanly/img/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// set with -ldflags "-X main.version=..."
var version = "(unknown)"

func main() {
	log, err := logger.NewLoggerFromEnv("img")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, config.DefaultConfigPath, version); err != nil {
		var se *bot.StartupError
		if errors.As(err, &se) && se.Stage == bot.StageConnect {
			log.WithErrorDetail(se.Err).Fatal("failed to connect to the server")
		}
		log.WithError(err).Fatal("img stopped with error")
	}

	log.Info("img stopped")
}

func run(ctx context.Context, log *logger.CanonicalLogger, configPath, version string) error {
	instanceID := uuid.NewString()
	log = log.WithInstanceID(instanceID)

	log.Info("starting img", logger.String("version", version))

	cfg, err := config.LoadBotConfigFrom(configPath, version)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Info("configuration loaded",
		logger.String(logger.FieldServerURL, cfg.ServerURL),
		logger.String(logger.FieldUsername, cfg.Username),
		logger.Duration("heartbeat_interval", cfg.HeartbeatInterval),
		logger.String("health_addr", cfg.HealthAddr),
	)
	if len(cfg.IgnoredKeys) > 0 {
		log.Warn("ignoring unknown configuration keys", logger.Any("keys", cfg.IgnoredKeys))
	}

	// Initialize repository and usecase
	platform := repository.NewPlatformClient(cfg, log.Component("platform"))
	uc := usecase.NewUseCase(platform, models.Credentials{Username: cfg.Username, Password: cfg.Password})

	status := handler.NewHandler(instanceID, cfg.Username, version, time.Now())
	b := bot.New(cfg, uc, handler.NewEventHandler(log), status, log)

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.HealthAddr != "" {
		app := fiber.New(fiber.Config{DisableStartupMessage: true, ErrorHandler: middleware.ErrorHandler(log)})
		app.Use(middleware.CanonicalLoggerMiddleware(log.Component("http")))
		status.RegisterRoutes(app)

		// bind before serving so a shutdown can always reach the listener
		ln, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.HealthAddr, err)
		}

		g.Go(func() error {
			log.Info("starting HTTP server", logger.String("address", ln.Addr().String()))
			if err := app.Listener(ln); err != nil && gCtx.Err() == nil {
				return fmt.Errorf("failed to start server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.WithError(err).Error("error during server shutdown")
			}
			_ = ln.Close()
			return nil
		})
	}

	g.Go(func() error {
		return b.Run(gCtx)
	})

	return g.Wait()
}
