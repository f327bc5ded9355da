package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

// Resolver turns "post as X" into the identity stamped onto new content.
type Resolver struct {
	store     *Store
	projector *Projector
	accounts  AccountRepository
	profiles  ProfileRepository
	logger    *zap.SugaredLogger
}

func NewResolver(store *Store, projector *Projector, accounts AccountRepository, profiles ProfileRepository, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{store: store, projector: projector, accounts: accounts, profiles: profiles, logger: logger}
}

// ResolvePostingIdentity finds or creates the user's account of the
// requested type and returns it with its display snapshot. Any error means
// no content may be created. Repeated calls return the same account id.
func (r *Resolver) ResolvePostingIdentity(ctx context.Context, userID string, requested entity.AccountType) (*entity.PostingIdentity, error) {
	if !requested.CanAuthor() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAccountType, requested)
	}

	profile, err := r.profiles.FindByOwner(ctx, requested, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ProfileNotFoundError{Type: requested}
		}
		return nil, transient("find profile", err)
	}

	table := requested.ProfileTable()
	accountID, created, err := r.store.FindOrCreateAccount(ctx, userID, requested, table, profile.ID)
	if err != nil {
		return nil, err
	}

	var display entity.DisplayInfo
	if created {
		// the profile was just read; write its projection onto the new row
		display = ProjectProfile(requested, profile)
		fresh := &entity.Account{ID: accountID, OwnerUserID: userID, AccountType: requested, ProfileTable: table, ProfileID: profile.ID}
		if err := r.projector.writeBack(ctx, fresh, display); err != nil {
			r.logger.Warnw("initial display snapshot not stored", "account_id", accountID, "err", err)
		}
	} else {
		acct, err := r.accounts.GetByID(ctx, accountID)
		if err != nil {
			r.logger.Warnw("account reread failed, using profile projection", "account_id", accountID, "err", err)
			display = ProjectProfile(requested, profile)
		} else {
			display = r.projector.CachedDisplayInfo(ctx, acct)
		}
	}

	return &entity.PostingIdentity{AccountID: accountID, AccountType: requested, Display: display}, nil
}
