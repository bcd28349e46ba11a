package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/book"
	bookrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/book/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

const shutdownGrace = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := utilities.ConfigFromEnv()
	logCfg.Dev = logCfg.Dev || cfg.Dev
	lg, err := utilities.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("service stopped with error", "err", err)
		_ = lg.Sync()
		os.Exit(1)
	}
	sugar.Info("goodbye")
}

func run(cfg config.Config, sugar *zap.SugaredLogger) error {
	sugar.Infow("starting service-library-go", "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.DB); err != nil {
		return err
	}

	var revoker auth.Revoker = auth.NewMemoryRevoker()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
		revoker = auth.NewRedisRevoker(client)
		sugar.Infow("token revocation backed by redis", "addr", cfg.RedisAddr)
	}

	tokens, err := auth.NewTokenManager(auth.TokenOptions{
		Secret:   []byte(cfg.TokenSecret),
		TTL:      cfg.TokenTTL,
		Issuer:   cfg.TokenIssuer,
		Audience: cfg.TokenAudience,
		IDs:      utilities.NewIDGenerator(cfg.SnowflakeNode),
		Revoker:  revoker,
	})
	if err != nil {
		return err
	}
	if cfg.TokenSecret == "" {
		sugar.Warn("AUTH_TOKEN_SECRET not set; tokens will not survive a restart")
	}

	users := user.NewUserService(userrepo.NewUserRepo(db), user.BcryptHasher{Cost: cfg.BcryptCost})
	books := book.NewBookService(bookrepo.NewBookRepo(db))

	handler := router.RegisterRoutes(router.Deps{
		Logger: sugar,
		DB:     db,
		Auth:   auth.NewAuthenticator(tokens, users, sugar),
		Users:  user.NewHandler(users, tokens, sugar),
		Books:  book.NewHandler(books, sugar),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sugar.Info("service is running; press Ctrl+C to stop")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("http server shutdown failed", "err", err)
		}
		return nil
	})
	return g.Wait()
}
