package account

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	accountrepo "github.com/ovaphlow/pitchfork/service-identity-go/internal/account/repo"
)

// Service bundles the account components that share repositories.
type Service struct {
	Store     *Store
	Projector *Projector
	Resolver  *Resolver
	Tracker   *Tracker
	Sync      *Synchronizer
}

type Deps struct {
	Accounts   AccountRepository
	Profiles   ProfileRepository
	Selections SelectionRepository
	// Cache and Publisher are optional.
	Cache     DisplayCache
	Publisher Publisher
	Sections  *Sections
	Logger    *zap.SugaredLogger
}

func New(d Deps) *Service {
	lg := d.Logger
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	store := NewStore(d.Accounts, d.Profiles, d.Publisher, lg.With("component", "account_store"))
	projector := NewProjector(d.Accounts, d.Profiles, d.Cache, d.Publisher, lg.With("component", "display_projector"))
	tracker := NewTracker(d.Accounts, d.Selections, d.Publisher, lg.With("component", "account_tracker"))
	return &Service{
		Store:     store,
		Projector: projector,
		Resolver:  NewResolver(store, projector, d.Accounts, d.Profiles, lg.With("component", "attribution_resolver")),
		Tracker:   tracker,
		Sync:      NewSynchronizer(d.Sections, tracker, d.Accounts, lg.With("component", "route_sync")),
	}
}

// NewService wires the Postgres repositories.
func NewService(db *sqlx.DB, cache DisplayCache, pub Publisher, sections *Sections, logger *zap.SugaredLogger) *Service {
	return New(Deps{
		Accounts:   accountrepo.NewAccountRepo(db),
		Profiles:   accountrepo.NewProfileRepo(db),
		Selections: accountrepo.NewSelectionRepo(db),
		Cache:      cache,
		Publisher:  pub,
		Sections:   sections,
		Logger:     logger,
	})
}
