package account

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/bus"
)

// Tracker answers "who is this user acting as right now". The selection
// is persisted, so a new session resumes with the last account used.
type Tracker struct {
	accounts   AccountRepository
	selections SelectionRepository
	events     notifier
	logger     *zap.SugaredLogger
}

func NewTracker(accounts AccountRepository, selections SelectionRepository, pub Publisher, logger *zap.SugaredLogger) *Tracker {
	return &Tracker{accounts: accounts, selections: selections, events: notifier{pub: pub, logger: logger}, logger: logger}
}

// GetActiveAccount returns the selected account while it is still owned
// and active; otherwise the primary account, otherwise the first listed.
func (t *Tracker) GetActiveAccount(ctx context.Context, userID string) (*entity.Account, error) {
	sel, err := t.selections.Get(ctx, userID)
	switch {
	case err == nil:
		a, aerr := t.accounts.GetByID(ctx, sel.ActiveAccountID)
		if aerr == nil && a.IsActive && a.OwnerUserID == userID {
			return a, nil
		}
		if aerr != nil && !errors.Is(aerr, sql.ErrNoRows) {
			return nil, transient("get selected account", aerr)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, transient("get selection", err)
	}

	list, err := t.accounts.ListActiveByOwner(ctx, userID)
	if err != nil {
		return nil, transient("list accounts", err)
	}
	if len(list) == 0 {
		return nil, ErrNoActiveAccount
	}
	for _, a := range list {
		if a.AccountType == entity.TypePrimary {
			return a, nil
		}
	}
	return list[0], nil
}

// SwitchAccount makes accountID the user's active account. Either the
// selection moves to that account or it is left untouched.
func (t *Tracker) SwitchAccount(ctx context.Context, userID, accountID string) (*entity.Account, error) {
	a, err := t.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, transient("get account", err)
	}
	if a.OwnerUserID != userID {
		securityEvent(t.logger, "switch_account", userID, accountID)
		return nil, ErrOwnershipViolation
	}
	if !a.IsActive {
		return nil, ErrAccountInactive
	}
	sel, err := t.selections.Switch(ctx, userID, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// deactivated between the read and the write
			return nil, ErrAccountInactive
		}
		return nil, transient("switch account", err)
	}
	t.logger.Debugw("account switched", "user_id", userID, "account_id", accountID, "account_type", a.AccountType)
	t.events.emit(ctx, bus.UserChannel(userID), EventAccountSwitched, bus.EventUpdate, "account_selections", sel)
	return a, nil
}

// ClearSelection forgets the stored selection, e.g. on sign-out.
func (t *Tracker) ClearSelection(ctx context.Context, userID string) error {
	if err := t.selections.Delete(ctx, userID); err != nil {
		return transient("clear selection", err)
	}
	return nil
}
