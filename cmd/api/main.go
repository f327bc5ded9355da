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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/bus"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/cache"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/content"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/follow"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-identity")

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// init db
	db, err := database.ConnectX(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	authCfg := auth.ConfigFromEnv()
	if len(authCfg.Secret) == 0 {
		sugar.Fatal("AUTH_JWT_SECRET is required")
	}

	sections, err := account.SectionsFromEnv()
	if err != nil {
		sugar.Fatalf("route sections: %v", err)
	}

	events, runBus, err := bus.Open(ctx, sugar.With("component", "bus"), bus.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("bus: %v", err)
	}
	defer events.Close()

	// the display cache is optional; without redis every read projects
	var displayCache account.DisplayCache
	if url := os.Getenv("REDIS_URL"); url != "" {
		rdb, err := bus.ConnectRedis(ctx, url)
		if err != nil {
			sugar.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		displayCache = cache.NewDisplayCache(rdb, cache.ConfigFromEnv())
	}

	accounts := account.NewService(db, displayCache, events, sections, sugar)
	contents := content.NewService(db, accounts.Resolver, accounts.Store, events, sugar.With("component", "content"))
	follows := follow.NewService(db, accounts.Store, events, sugar.With("component", "follow"))

	handler := router.RegisterRoutes(sugar, auth.NewVerifier(authCfg), router.Handlers{
		Account: account.NewHandler(accounts, events, sugar.With("component", "account_http")),
		Content: content.NewHandler(contents, sugar.With("component", "content_http")),
		Follow:  follow.NewHandler(follows, sugar.With("component", "follow_http")),
	})
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runBus(gctx) })
	g.Go(func() error {
		sugar.Infow("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("shutting down")
		// ends open event streams so Shutdown doesn't wait on them
		_ = events.Close()

		// give a short grace period for cleanup
		doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(doneCtx); err != nil {
			sugar.Warnf("http server shutdown failed: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		sugar.Errorf("service stopped: %v", err)
	}
	sugar.Info("goodbye")
}
