package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sharetube/officedj/internal/controller"
	"github.com/sharetube/officedj/internal/drift"
	"github.com/sharetube/officedj/internal/repository/connection/inmemory"
	"github.com/sharetube/officedj/internal/repository/likes/sqlite"
	"github.com/sharetube/officedj/internal/repository/room/redis"
	"github.com/sharetube/officedj/internal/service/room"
	"github.com/sharetube/officedj/pkg/ctxlogger"
	"github.com/sharetube/officedj/pkg/filewatch"
	"github.com/sharetube/officedj/pkg/redisclient"
	"github.com/sharetube/officedj/pkg/ytvideodata"
)

const shutdownTimeout = 30 * time.Second

type AppConfig struct {
	Secret          string        `json:"-"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	LogLevel        string        `json:"log_level"`
	RedisPort       int           `json:"redis_port"`
	RedisHost       string        `json:"redis_host"`
	RedisPassword   string        `json:"-"`
	LikesDBPath     string        `json:"likes_db_path"`
	VersionFile     string        `json:"version_file"`
	YouTubeAPIKey   string        `json:"-"`
	QueueLimit      int           `json:"queue_limit"`
	RoomExp         time.Duration `json:"room_exp"`
	SessionTTL      time.Duration `json:"session_ttl"`
	DriftThreshold  time.Duration `json:"drift_threshold"`
	DriftInterval   time.Duration `json:"drift_interval"`
	HostGracePeriod time.Duration `json:"host_grace_period"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Secret == "" {
		return errors.New("secret must be set")
	}
	if cfg.QueueLimit < 1 {
		return fmt.Errorf("queue limit must be greater than 0")
	}
	if cfg.SessionTTL < time.Second {
		return fmt.Errorf("session ttl must be at least 1s")
	}
	if cfg.RoomExp < cfg.SessionTTL {
		return fmt.Errorf("room expiration must not be shorter than session ttl")
	}
	if cfg.DriftInterval <= 0 || cfg.DriftThreshold <= 0 {
		return fmt.Errorf("drift interval and threshold must be positive")
	}
	if cfg.HostGracePeriod < 0 {
		return fmt.Errorf("host grace period must not be negative")
	}
	if cfg.LikesDBPath == "" {
		return fmt.Errorf("likes db path must be set")
	}
	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	likesRepo, err := sqlite.Open(cfg.LikesDBPath)
	if err != nil {
		return fmt.Errorf("failed to open likes db: %w", err)
	}
	defer likesRepo.Close()

	roomRepo := redis.NewRepo(rc, logger, cfg.RoomExp)
	connectionRepo := inmemory.NewRepo()
	videoData := ytvideodata.New(&ytvideodata.Config{
		APIKey:     cfg.YouTubeAPIKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	})

	roomService := room.NewService(roomRepo, likesRepo, connectionRepo, videoData, logger, &room.Config{
		Secret:          cfg.Secret,
		QueueLimit:      cfg.QueueLimit,
		SessionTTL:      cfg.SessionTTL,
		HostGracePeriod: cfg.HostGracePeriod,
	})

	ctrl := controller.NewController(roomService, logger, &controller.Config{
		Drift: drift.Config{
			Interval:  cfg.DriftInterval,
			Threshold: cfg.DriftThreshold,
		},
	})
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: ctrl.GetMux()}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	if cfg.VersionFile != "" {
		if err := watchVersion(bgCtx, cfg.VersionFile, roomService, logger); err != nil {
			return err
		}
	}

	go sweepSessions(bgCtx, cfg.SessionTTL, roomService, logger)

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		select {
		case <-sig:
		case <-ctx.Done():
		}

		shutdownCtx, c := context.WithTimeout(context.WithoutCancel(serverCtx), shutdownTimeout)
		defer c()

		logger.InfoContext(shutdownCtx, "shutting down")
		stopBackground()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "failed to shutdown server", "error", err)
		}
		// hijacked websocket connections are not closed by Shutdown
		roomService.DisconnectAll(shutdownCtx)
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()
	roomService.Wait()

	return nil
}

type versionPublisher interface {
	PublishVersion(ctx context.Context, version string) error
}

func watchVersion(ctx context.Context, path string, publisher versionPublisher, logger *slog.Logger) error {
	w, err := filewatch.New(path, logger)
	if err != nil {
		return fmt.Errorf("failed to watch version file: %w", err)
	}

	go func() {
		err := w.Run(ctx, func(ctx context.Context, content string) {
			if err := publisher.PublishVersion(ctx, content); err != nil {
				logger.WarnContext(ctx, "failed to publish version", "error", err)
			}
		})
		if err != nil {
			logger.ErrorContext(ctx, "version watcher stopped", "error", err)
		}
	}()

	return nil
}

type sessionSweeper interface {
	SweepSessions(ctx context.Context) error
}

// sweepSessions prunes expired session records so rooms without live
// connections still publish their session change.
func sweepSessions(ctx context.Context, every time.Duration, sweeper sessionSweeper, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweeper.SweepSessions(ctx); err != nil {
				logger.WarnContext(ctx, "failed to sweep sessions", "error", err)
			}
		}
	}
}
