package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pitchfork-auth",
		Short:         "Token-pair session service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	})
	return cmd
}

func newLogger() (*zap.SugaredLogger, func(), error) {
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		return nil, nil, err
	}
	return lg.Sugar(), func() { _ = lg.Sync() }, nil
}

func runMigrate(ctx context.Context) error {
	sugar, flush, err := newLogger()
	if err != nil {
		return err
	}
	defer flush()

	sqlDB, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Errorw("db connect failed", "err", err)
		return err
	}
	defer sqlDB.Close()

	if err := database.Migrate(ctx, sqlDB); err != nil {
		sugar.Errorw("migrate failed", "err", err)
		return err
	}
	sugar.Info("migrations applied")
	return nil
}

// openStore builds the credential store selected by STORE_DRIVER. The
// returned closer releases its connections.
func openStore(ctx context.Context, cfg config.Config, sugar *zap.SugaredLogger) (userrepo.Store, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		sugar.Warn("using in-memory credential store; data is lost on restart")
		return userrepo.NewMemoryRepo(), io.NopCloser(nil), nil
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return userrepo.NewRedisRepo(rdb, cfg.RedisPrefix), rdb, nil
	default:
		sqlDB, err := database.Connect(database.ConfigFromEnv())
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := database.Migrate(ctx, sqlDB); err != nil {
				sqlDB.Close()
				return nil, nil, err
			}
		}
		// wrap with sqlx for convenience in repos
		return userrepo.NewUserRepo(sqlx.NewDb(sqlDB, "postgres")), sqlDB, nil
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	sugar, flush, err := newLogger()
	if err != nil {
		return err
	}
	defer flush()
	sugar.Info("starting service-auth-go")

	cfg, err := config.FromEnv()
	if err != nil {
		sugar.Errorw("read config", "err", err)
		return err
	}
	if err := cfg.Validate(); err != nil {
		sugar.Errorw("invalid config", "err", err)
		return err
	}

	tokens, err := token.NewService(token.Config{
		AccessSecret:  []byte(cfg.AccessSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		Issuer:        cfg.Issuer,
	})
	if err != nil {
		sugar.Errorw("token service", "err", err)
		return err
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closer, err := openStore(ctx, cfg, sugar)
	if err != nil {
		sugar.Errorw("open store", "driver", cfg.StoreDriver, "err", err)
		return err
	}
	defer closer.Close()

	svc := user.NewSessionService(store, tokens, user.BcryptHasher{Cost: cfg.BcryptCost})
	svc.RotateRefresh = cfg.RotateRefresh

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler := router.RegisterRoutes(router.Deps{
		Logger:     sugar,
		Users:      user.NewHandler(svc, sugar, user.CookieConfig{Path: cfg.CookiePath, Secure: cfg.CookieSecure}),
		Gate:       auth.Authenticate(tokens, sugar),
		Registry:   reg,
		CORSOrigin: cfg.CORSOrigin,
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("http server listening", "addr", srv.Addr, "store", cfg.StoreDriver, "rotate_refresh", cfg.RotateRefresh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			sugar.Errorw("http server failed", "err", err)
			return err
		}
	}

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
	return nil
}
