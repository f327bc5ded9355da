package account

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/bus"
)

// AccountRepository is implemented by repo.AccountRepo. Lookups return
// sql.ErrNoRows when nothing matches; FindOrCreate returns repo.ErrConflict
// when it lost a race.
type AccountRepository interface {
	FindOrCreate(ctx context.Context, id, ownerUserID string, t entity.AccountType, profileTable, profileID string) (string, bool, error)
	GetByID(ctx context.Context, id string) (*entity.Account, error)
	GetActiveByOwnerType(ctx context.Context, ownerUserID string, t entity.AccountType) (*entity.Account, error)
	ListActiveByOwner(ctx context.Context, ownerUserID string) ([]*entity.Account, error)
	UpdateDisplay(ctx context.Context, id string, d entity.DisplayInfo) (int64, error)
	Deactivate(ctx context.Context, id, ownerUserID string) (int64, error)
	RecomputeStats(ctx context.Context, id string) (*entity.Stats, error)
}

// ProfileRepository is implemented by repo.ProfileRepo.
type ProfileRepository interface {
	Get(ctx context.Context, table, id string) (*entity.Profile, error)
	FindByOwner(ctx context.Context, t entity.AccountType, userID string) (*entity.Profile, error)
}

// SelectionRepository is implemented by repo.SelectionRepo.
type SelectionRepository interface {
	Get(ctx context.Context, userID string) (*entity.Selection, error)
	Switch(ctx context.Context, userID, accountID string) (*entity.Selection, error)
	Delete(ctx context.Context, userID string) error
}

// DisplayCache is implemented by cache.DisplayCache.
type DisplayCache interface {
	Get(ctx context.Context, accountID string) (entity.DisplayInfo, bool, error)
	Set(ctx context.Context, accountID string, d entity.DisplayInfo) error
	Invalidate(ctx context.Context, accountIDs ...string) error
}

// Publisher is the publishing half of bus.Bus.
type Publisher interface {
	Publish(ctx context.Context, ev bus.Event) error
}
