package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	accountrepo "github.com/ovaphlow/pitchfork/service-identity-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/bus"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/utilities"
)

const maxFindOrCreateAttempts = 3

// Store owns account identity records.
type Store struct {
	accounts AccountRepository
	profiles ProfileRepository
	events   notifier
	logger   *zap.SugaredLogger
	newID    func() string
}

func NewStore(accounts AccountRepository, profiles ProfileRepository, pub Publisher, logger *zap.SugaredLogger) *Store {
	return &Store{
		accounts: accounts,
		profiles: profiles,
		events:   notifier{pub: pub, logger: logger},
		logger:   logger,
		newID:    utilities.NewSnowflakeID,
	}
}

// FindOrCreateAccount returns the active account for (ownerUserID, t),
// creating it against the given profile when missing. created reports
// whether this call inserted the row. Concurrent callers for the same key
// all get the same id.
func (s *Store) FindOrCreateAccount(ctx context.Context, ownerUserID string, t entity.AccountType, profileTable, profileID string) (string, bool, error) {
	if !t.Valid() {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidAccountType, t)
	}
	if !entity.KnownProfileTable(profileTable) {
		return "", false, fmt.Errorf("%w: unknown profile table %q", ErrInvalidAccountType, profileTable)
	}
	if profileTable != t.ProfileTable() {
		return "", false, fmt.Errorf("%w: %s accounts reference %s, not %q", ErrInvalidAccountType, t, t.ProfileTable(), profileTable)
	}
	profile, err := s.profiles.Get(ctx, profileTable, profileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, &ProfileNotFoundError{Type: t}
		}
		return "", false, transient("load profile", err)
	}
	if profile.UserID != ownerUserID {
		securityEvent(s.logger, "find_or_create_account", ownerUserID, profileTable+"/"+profileID)
		return "", false, ErrOwnershipViolation
	}

	for attempt := 0; attempt < maxFindOrCreateAttempts; attempt++ {
		id, created, err := s.accounts.FindOrCreate(ctx, s.newID(), ownerUserID, t, profileTable, profileID)
		if err == nil {
			if created {
				s.logger.Infow("account created", "account_id", id, "user_id", ownerUserID, "account_type", t)
				s.events.emit(ctx, bus.UserChannel(ownerUserID), EventAccountCreated, bus.EventInsert, "accounts",
					map[string]any{"id": id, "account_type": t})
			}
			return id, created, nil
		}
		if !errors.Is(err, accountrepo.ErrConflict) {
			return "", false, transient("find or create account", err)
		}
		// lost the race: the winner's row is committed, read it
		winner, gerr := s.accounts.GetActiveByOwnerType(ctx, ownerUserID, t)
		if gerr == nil {
			s.logger.Debugw("find-or-create conflict resolved", "account_id", winner.ID, "user_id", ownerUserID, "account_type", t)
			return winner.ID, false, nil
		}
		if !errors.Is(gerr, sql.ErrNoRows) {
			return "", false, transient("reread account", gerr)
		}
	}
	return "", false, transient("find or create account", errAccountConflict)
}

// ProvisionAccount finds or creates the user's account of type t against
// the oldest profile they own in t's profile table. Unlike posting identity
// resolution it accepts every valid type, admin included, so onboarding
// flows have something to create.
func (s *Store) ProvisionAccount(ctx context.Context, userID string, t entity.AccountType) (string, bool, error) {
	if !t.Valid() {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidAccountType, t)
	}
	profile, err := s.profiles.FindByOwner(ctx, t, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, &ProfileNotFoundError{Type: t}
		}
		return "", false, transient("find profile", err)
	}
	return s.FindOrCreateAccount(ctx, userID, t, t.ProfileTable(), profile.ID)
}

// ListAccounts returns all active accounts of a user, newest first.
func (s *Store) ListAccounts(ctx context.Context, ownerUserID string) ([]*entity.Account, error) {
	out, err := s.accounts.ListActiveByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, transient("list accounts", err)
	}
	return out, nil
}

// GetAccount returns the account or ErrAccountNotFound.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*entity.Account, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, transient("get account", err)
	}
	return a, nil
}

// GetOwnedAccount is GetAccount plus an ownership check.
func (s *Store) GetOwnedAccount(ctx context.Context, ownerUserID, accountID string) (*entity.Account, error) {
	a, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a.OwnerUserID != ownerUserID {
		securityEvent(s.logger, "get_owned_account", ownerUserID, accountID)
		return nil, ErrOwnershipViolation
	}
	return a, nil
}

// Deactivate soft-deletes an owned account. Content attributed to it keeps
// its snapshot. Deactivating an inactive account is a no-op.
func (s *Store) Deactivate(ctx context.Context, ownerUserID, accountID string) error {
	a, err := s.GetOwnedAccount(ctx, ownerUserID, accountID)
	if err != nil {
		return err
	}
	if !a.IsActive {
		return nil
	}
	n, err := s.accounts.Deactivate(ctx, accountID, ownerUserID)
	if err != nil {
		return transient("deactivate account", err)
	}
	if n > 0 {
		s.logger.Infow("account deactivated", "account_id", accountID, "user_id", ownerUserID)
		s.events.emit(ctx, bus.UserChannel(ownerUserID), EventAccountDeactivated, bus.EventUpdate, "accounts",
			map[string]any{"id": accountID, "is_active": false})
	}
	return nil
}

// RecomputeStats rebuilds the account's counters from source records.
func (s *Store) RecomputeStats(ctx context.Context, accountID string) (*entity.Stats, error) {
	a, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	st, err := s.accounts.RecomputeStats(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, transient("recompute stats", err)
	}
	s.events.emit(ctx, bus.UserChannel(a.OwnerUserID), EventStatsRecomputed, bus.EventUpdate, "accounts",
		map[string]any{"id": accountID})
	return st, nil
}
