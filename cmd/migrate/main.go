package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	accountrepo "github.com/ovaphlow/pitchfork/service-identity-go/internal/account/repo"
	contentrepo "github.com/ovaphlow/pitchfork/service-identity-go/internal/content/repo"
	followrepo "github.com/ovaphlow/pitchfork/service-identity-go/internal/follow/repo"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/utilities"
)

type tableEnsurer interface {
	EnsureTable(ctx context.Context) error
}

// ensureAll creates every table in foreign-key order.
func ensureAll(ctx context.Context, db *sqlx.DB, logger *zap.SugaredLogger) error {
	steps := []struct {
		name string
		repo tableEnsurer
	}{
		{"profiles", accountrepo.NewProfileRepo(db)},
		{"accounts", accountrepo.NewAccountRepo(db)},
		{"account_selections", accountrepo.NewSelectionRepo(db)},
		{"content_items", contentrepo.NewContentRepo(db)},
		{"follows", followrepo.NewFollowRepo(db)},
	}
	for _, s := range steps {
		if err := s.repo.EnsureTable(ctx); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
		logger.Infow("table ready", "table", s.name)
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-identity migrations")

	// init db
	db, err := database.ConnectX(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := ensureAll(ctx, db, sugar); err != nil {
		sugar.Errorf("migration failed: %v", err)
		return
	}
	sugar.Info("migrations complete")
}
