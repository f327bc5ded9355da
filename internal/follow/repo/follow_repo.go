package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/follow/entity"
)

type FollowRepo struct {
	db *sqlx.DB
}

func NewFollowRepo(db *sqlx.DB) *FollowRepo {
	return &FollowRepo{db: db}
}

// EnsureTable creates the follows table if it does not already exist.
// Requires accounts.
func (r *FollowRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS follows (
		follower_account_id TEXT NOT NULL REFERENCES accounts(id),
		followee_account_id TEXT NOT NULL REFERENCES accounts(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (follower_account_id, followee_account_id),
		CHECK (follower_account_id <> followee_account_id)
	);
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}

	const idx = `
	CREATE INDEX IF NOT EXISTS idx_follows_followee ON follows (followee_account_id, created_at DESC);
	`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return err
	}
	return nil
}

// Insert records the edge; following twice is a no-op reported as 0 rows.
func (r *FollowRepo) Insert(ctx context.Context, followerID, followeeID string) (int64, error) {
	const q = `INSERT INTO follows (follower_account_id, followee_account_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	res, err := r.db.ExecContext(ctx, q, followerID, followeeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *FollowRepo) Delete(ctx context.Context, followerID, followeeID string) (int64, error) {
	const q = `DELETE FROM follows WHERE follower_account_id=$1 AND followee_account_id=$2`
	res, err := r.db.ExecContext(ctx, q, followerID, followeeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListFollowers returns active follower accounts, most recent first.
func (r *FollowRepo) ListFollowers(ctx context.Context, followeeID string, limit, offset int) ([]*entity.Follower, error) {
	const q = `
SELECT a.id AS account_id, a.account_type, a.display_name, a.username, a.avatar_url, f.created_at AS followed_at
FROM follows f JOIN accounts a ON a.id = f.follower_account_id
WHERE f.followee_account_id = $1 AND a.is_active
ORDER BY f.created_at DESC, a.id DESC
LIMIT $2 OFFSET $3`
	out := []*entity.Follower{}
	if err := r.db.SelectContext(ctx, &out, q, followeeID, limit, offset); err != nil {
		return nil, err
	}
	return out, nil
}
