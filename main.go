// Package main implements a Cloud Run service that generates food expiration
// alerts on an hourly schedule and sends consolidated push notifications.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"
	"gopkg.in/natefinch/lumberjack.v2"

	"pantry-alerts/alerts"
	"pantry-alerts/auth"
	"pantry-alerts/push"
	"pantry-alerts/ratelimit"
	"pantry-alerts/server"
	gcsstore "pantry-alerts/storage"
	"pantry-alerts/storage/sqlstore"
)

// documentStore is satisfied by both storage backends.
type documentStore interface {
	alerts.Store
	server.Store
}

type config struct {
	port            string
	localStorage    string
	bucket          string
	databaseURL     string
	pushProvider    string
	firebaseProject string
	credentialsJSON string
	awsRegion       string
	snsPlatformArn  string
	authSecret      string
	redisURL        string
	rateLimit       int
	rateWindow      time.Duration
	logFile         string
	logLevel        slog.Level
}

// local reports whether the service runs in local development mode.
func (c *config) local() bool {
	return c.localStorage != ""
}

func loadConfig(getenv func(string) string) (*config, error) {
	cfg := &config{
		port:            getenv("PORT"),
		localStorage:    getenv("LOCAL_STORAGE"),
		bucket:          getenv("STORAGE_BUCKET"),
		databaseURL:     getenv("DATABASE_URL"),
		pushProvider:    strings.ToLower(getenv("PUSH_PROVIDER")),
		firebaseProject: getenv("FIREBASE_PROJECT_ID"),
		credentialsJSON: getenv("GOOGLE_CREDENTIALS_JSON"),
		awsRegion:       getenv("AWS_REGION"),
		snsPlatformArn:  getenv("SNS_PLATFORM_ARN"),
		authSecret:      getenv("AUTH_SECRET"),
		redisURL:        getenv("REDIS_URL"),
		logFile:         getenv("LOG_FILE"),
		rateLimit:       ratelimit.DefaultLimit,
		rateWindow:      ratelimit.DefaultWindow,
		logLevel:        slog.LevelInfo,
	}

	if cfg.port == "" {
		cfg.port = "8080"
	}
	if cfg.awsRegion == "" {
		cfg.awsRegion = "us-east-1"
	}

	// Default to local development mode if no backend specified
	if cfg.bucket == "" && cfg.databaseURL == "" && cfg.localStorage == "" {
		cfg.localStorage = "./data"
	}

	if cfg.pushProvider == "" {
		cfg.pushProvider = "fcm"
		if cfg.local() && cfg.credentialsJSON == "" {
			cfg.pushProvider = "mock"
		}
	}
	switch cfg.pushProvider {
	case "fcm", "sns", "mock":
	default:
		return nil, fmt.Errorf("unknown PUSH_PROVIDER %q (want fcm, sns or mock)", cfg.pushProvider)
	}

	if v := getenv("RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT %q", v)
		}
		cfg.rateLimit = n
	}
	if v := getenv("RATE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid RATE_WINDOW %q", v)
		}
		cfg.rateWindow = d
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.logLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q", v)
		}
	}

	if !cfg.local() && cfg.authSecret == "" {
		return nil, errors.New("AUTH_SECRET environment variable required")
	}
	if cfg.pushProvider == "fcm" && cfg.firebaseProject == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID required for the fcm push provider")
	}
	if cfg.pushProvider == "sns" && cfg.snsPlatformArn == "" {
		return nil, errors.New("SNS_PLATFORM_ARN required for the sns push provider")
	}

	return cfg, nil
}

func newLogger(cfg *config) *slog.Logger {
	var w io.Writer = os.Stdout
	if cfg.logFile != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.logLevel,
	}))
}

func main() {
	ctx := context.Background()

	// Optional .env for local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	provider, err := newPushProvider(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize push provider", "provider", cfg.pushProvider, "error", err)
		os.Exit(1)
	}

	limiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize rate limiter", "error", err)
		os.Exit(1)
	}

	generator := alerts.New(&alerts.Config{
		Store:      store,
		Notifier:   push.New(provider, logger),
		Logger:     logger,
		IsNotFound: gcsstore.IsNotFound,
	})

	secret := cfg.authSecret
	if secret == "" {
		secret = "local-development-secret"
		logger.Warn("AUTH_SECRET not set, using local development secret")
	}

	srv := server.New(&server.Config{
		Generator:  generator,
		Store:      store,
		Auth:       auth.New([]byte(secret)),
		Limiter:    limiter,
		Logger:     logger,
		IsNotFound: gcsstore.IsNotFound,
	})

	// Cloud Scheduler drives production runs; locally we tick ourselves.
	if cfg.local() {
		go runHourly(ctx, generator, logger)
	}

	if err := srv.ListenAndServe(cfg.port); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config, logger *slog.Logger) (documentStore, func(), error) {
	if cfg.databaseURL != "" {
		logger.Info("Using Postgres storage")
		s, err := sqlstore.Open(cfg.databaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := s.Close(); err != nil {
				logger.Warn("Failed to close database", "error", err)
			}
		}
		return s, closeFn, nil
	}

	if cfg.local() {
		logger.Info("Running in local development mode", "storage_path", cfg.localStorage)
		if err := os.MkdirAll(cfg.localStorage, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create local storage directory: %w", err)
		}
		return gcsstore.New(nil, "", cfg.localStorage, logger), func() {}, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}
	logger.Info("Using Cloud Storage", "bucket", cfg.bucket)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close storage client", "error", err)
		}
	}
	return gcsstore.New(client, cfg.bucket, "", logger), closeFn, nil
}

func newPushProvider(ctx context.Context, cfg *config, logger *slog.Logger) (push.Provider, error) {
	switch cfg.pushProvider {
	case "mock":
		logger.Info("Mock push mode enabled")
		return push.NewMockProvider(logger), nil
	case "sns":
		return push.NewSNSProvider(ctx, cfg.awsRegion, cfg.snsPlatformArn, logger)
	}

	// Explicit credentials first, then Application Default Credentials on Cloud Run.
	var opts []option.ClientOption
	if cfg.credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.credentialsJSON)))
	} else if !isCloudRun(ctx) {
		if cfg.local() {
			logger.Warn("No Google credentials outside Cloud Run, using mock push")
			return push.NewMockProvider(logger), nil
		}
		return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
	}
	return push.NewFCMProvider(ctx, cfg.firebaseProject, logger, opts...)
}

func newLimiter(ctx context.Context, cfg *config, logger *slog.Logger) (ratelimit.Limiter, error) {
	if cfg.redisURL == "" {
		return ratelimit.NewFixedWindow(cfg.rateLimit, cfg.rateWindow, nil), nil
	}
	opts, err := redis.ParseURL(cfg.redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("Using Redis rate limiter", "addr", opts.Addr)
	return ratelimit.NewRedis(client, cfg.rateLimit, cfg.rateWindow), nil
}

// runHourly runs the generator at the top of every hour (UTC).
func runHourly(ctx context.Context, gen *alerts.Generator, logger *slog.Logger) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(time.Hour).Add(time.Hour)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := gen.Run(ctx); err != nil {
			logger.Error("Error generating expiration alerts", "error", err)
		}
	}
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}
