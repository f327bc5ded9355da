package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/database"
)

// ErrConflict means a find-or-create lost the race for the
// (owner_user_id, account_type) slot; the winner's row is readable now.
var ErrConflict = errors.New("account slot taken concurrently")

const accountColumns = `id, owner_user_id, account_type, profile_table, profile_id,
	display_name, username, avatar_url, is_verified, is_active,
	follower_count, following_count, post_count, engagement_score,
	created_at, updated_at, deactivated_at`

// AccountRepo provides data access for the accounts table using sqlx.
type AccountRepo struct {
	db *sqlx.DB
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{db: db} }

// EnsureTable creates the accounts table if not exists (idempotent).
// The partial unique index is what keeps one active account per
// (owner, type); find-or-create relies on it.
func (r *AccountRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  owner_user_id TEXT NOT NULL,
  account_type TEXT NOT NULL CHECK (account_type IN ('primary','artist','venue','admin')),
  profile_table TEXT NOT NULL,
  profile_id TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  username TEXT NOT NULL DEFAULT '',
  avatar_url TEXT NOT NULL DEFAULT '',
  is_verified BOOLEAN NOT NULL DEFAULT false,
  is_active BOOLEAN NOT NULL DEFAULT true,
  follower_count BIGINT NOT NULL DEFAULT 0,
  following_count BIGINT NOT NULL DEFAULT 0,
  post_count BIGINT NOT NULL DEFAULT 0,
  engagement_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  deactivated_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_accounts_owner_type_active ON accounts(owner_user_id, account_type) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner_user_id, created_at DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// FindOrCreate returns the active account for (owner, type), inserting one
// with the given id and profile reference when none exists. Insert and
// read-back run as one statement, so an interrupted call never leaves a
// half-created row. Returns ErrConflict when a concurrent insert won the
// slot after this statement's snapshot was taken.
func (r *AccountRepo) FindOrCreate(ctx context.Context, id, ownerUserID string, t entity.AccountType, profileTable, profileID string) (string, bool, error) {
	const q = `
WITH ins AS (
  INSERT INTO accounts (id, owner_user_id, account_type, profile_table, profile_id)
  VALUES ($1, $2, $3, $4, $5)
  ON CONFLICT (owner_user_id, account_type) WHERE is_active DO NOTHING
  RETURNING id
)
SELECT id, true AS created FROM ins
UNION ALL
SELECT id, false AS created FROM accounts WHERE owner_user_id = $2 AND account_type = $3 AND is_active
LIMIT 1`
	var row struct {
		ID      string `db:"id"`
		Created bool   `db:"created"`
	}
	err := r.db.GetContext(ctx, &row, q, id, ownerUserID, string(t), profileTable, profileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || database.IsUniqueViolation(err) {
			return "", false, ErrConflict
		}
		return "", false, err
	}
	return row.ID, row.Created, nil
}

// GetByID fetches a full account row or sql.ErrNoRows.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetActiveByOwnerType fetches the active account of a type for a user or sql.ErrNoRows.
func (r *AccountRepo) GetActiveByOwnerType(ctx context.Context, ownerUserID string, t entity.AccountType) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_user_id=$1 AND account_type=$2 AND is_active`
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, ownerUserID, string(t)); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActiveByOwner returns a user's active accounts, newest first.
func (r *AccountRepo) ListActiveByOwner(ctx context.Context, ownerUserID string) ([]*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_user_id=$1 AND is_active ORDER BY created_at DESC, id DESC`
	out := []*entity.Account{}
	if err := r.db.SelectContext(ctx, &out, q, ownerUserID); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateDisplay overwrites the cached display snapshot. Type, profile
// reference and counters are left alone.
func (r *AccountRepo) UpdateDisplay(ctx context.Context, id string, d entity.DisplayInfo) (int64, error) {
	const q = `UPDATE accounts SET display_name=$2, username=$3, avatar_url=$4, is_verified=$5, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, d.DisplayName, d.Username, d.AvatarURL, d.IsVerified)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Deactivate soft-deletes an owned, active account.
func (r *AccountRepo) Deactivate(ctx context.Context, id, ownerUserID string) (int64, error) {
	const q = `UPDATE accounts SET is_active=false, deactivated_at=NOW(), updated_at=NOW() WHERE id=$1 AND owner_user_id=$2 AND is_active`
	res, err := r.db.ExecContext(ctx, q, id, ownerUserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecomputeStats rebuilds every counter from follows and content_items in
// a single statement and returns the stored values.
func (r *AccountRepo) RecomputeStats(ctx context.Context, id string) (*entity.Stats, error) {
	const q = `
UPDATE accounts a SET
  follower_count = (SELECT COUNT(*) FROM follows f WHERE f.followee_account_id = a.id),
  following_count = (SELECT COUNT(*) FROM follows f WHERE f.follower_account_id = a.id),
  post_count = (SELECT COUNT(*) FROM content_items c WHERE c.account_id = a.id AND c.kind = 'post'),
  engagement_score = (SELECT COALESCE(SUM(c.like_count + 2 * c.comment_count), 0) FROM content_items c WHERE c.account_id = a.id),
  updated_at = NOW()
WHERE a.id = $1
RETURNING follower_count, following_count, post_count, engagement_score`
	var s entity.Stats
	if err := r.db.GetContext(ctx, &s, q, id); err != nil {
		return nil, err
	}
	return &s, nil
}
