package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	form_courier "github.com/contactgate/contactgate/internal"
	"github.com/contactgate/contactgate/internal/store"
)

func main() {
	logger := newLogger()

	config, err := form_courier.LoadConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	sessions, closeStore, err := newSessionStore(config)
	if err != nil {
		logger.Error("session store unavailable", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	contact := form_courier.NewHandler(config, sessions, form_courier.NewSMTPNotifier(config.SMTP))

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(form_courier.RequestLogger(logger))
	r.Use(form_courier.SecurityHeaders)

	r.Get("/health", form_courier.HandleHealth)
	r.Get("/health/ready", contact.HandleReady)
	r.Handle(config.SubmitPath, contact)

	s := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      config.SMTP.Timeout + 15*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	logger.Info("contact gate listening",
		"addr", config.ListenAddr,
		"path", config.SubmitPath,
		"rate_window", config.RateWindow,
		"redis", config.RedisURL != "",
	)

	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

// newSessionStore uses Redis when REDIS_URL is set and process memory otherwise.
func newSessionStore(config *form_courier.Config) (store.Store, func(), error) {
	if config.RedisURL != "" {
		rs, err := store.NewRedisStore(config.RedisURL, config.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	}

	ms := store.NewMemoryStore(config.SessionTTL)
	stop := ms.StartBackgroundCleanup(time.Minute)
	return ms, stop, nil
}

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: logLevelFromEnv(),
	}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func logLevelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
