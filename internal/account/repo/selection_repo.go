package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

// SelectionRepo persists the active-account pointer per user.
type SelectionRepo struct {
	db *sqlx.DB
}

func NewSelectionRepo(db *sqlx.DB) *SelectionRepo { return &SelectionRepo{db: db} }

// EnsureTable creates the account_selections table if not exists (idempotent).
func (r *SelectionRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS account_selections (
  user_id TEXT PRIMARY KEY,
  active_account_id TEXT NOT NULL REFERENCES accounts(id),
  last_switched_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  version BIGINT NOT NULL DEFAULT 1
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Get returns the stored selection or sql.ErrNoRows.
func (r *SelectionRepo) Get(ctx context.Context, userID string) (*entity.Selection, error) {
	const q = `SELECT user_id, active_account_id, last_switched_at, version FROM account_selections WHERE user_id=$1`
	var s entity.Selection
	if err := r.db.GetContext(ctx, &s, q, userID); err != nil {
		return nil, err
	}
	return &s, nil
}

// Switch points the user's selection at accountID. Ownership and activity
// are re-checked inside the same statement, so the selection either moves
// to a valid account or stays where it was; sql.ErrNoRows means it stayed.
func (r *SelectionRepo) Switch(ctx context.Context, userID, accountID string) (*entity.Selection, error) {
	const q = `
INSERT INTO account_selections (user_id, active_account_id, last_switched_at, version)
SELECT $1, a.id, NOW(), 1 FROM accounts a WHERE a.id = $2 AND a.owner_user_id = $1 AND a.is_active
ON CONFLICT (user_id) DO UPDATE SET
  active_account_id = EXCLUDED.active_account_id,
  last_switched_at = EXCLUDED.last_switched_at,
  version = account_selections.version + 1
RETURNING user_id, active_account_id, last_switched_at, version`
	var s entity.Selection
	if err := r.db.GetContext(ctx, &s, q, userID, accountID); err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete drops the selection; the next read falls back to defaults.
func (r *SelectionRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM account_selections WHERE user_id=$1`, userID)
	return err
}
