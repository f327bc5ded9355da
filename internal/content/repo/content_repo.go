package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/content/entity"
)

const itemColumns = `id, kind, account_id, account_type, display_name, username, avatar_url,
	created_by, title, body, like_count, comment_count, created_at, updated_at`

type ContentRepo struct {
	db *sqlx.DB
}

func NewContentRepo(db *sqlx.DB) *ContentRepo { return &ContentRepo{db: db} }

// EnsureTable creates the content_items table if not exists (idempotent).
// Requires accounts.
func (r *ContentRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS content_items (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL CHECK (kind IN ('post','job','message')),
  account_id TEXT NOT NULL REFERENCES accounts(id),
  account_type TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  username TEXT NOT NULL DEFAULT '',
  avatar_url TEXT NOT NULL DEFAULT '',
  created_by TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  body TEXT NOT NULL,
  like_count BIGINT NOT NULL DEFAULT 0,
  comment_count BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_content_items_account ON content_items(account_id, created_at DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Insert stores it and fills in the timestamps.
func (r *ContentRepo) Insert(ctx context.Context, it *entity.Item) error {
	const q = `
INSERT INTO content_items (id, kind, account_id, account_type, display_name, username, avatar_url, created_by, title, body)
VALUES (:id, :kind, :account_id, :account_type, :display_name, :username, :avatar_url, :created_by, :title, :body)
RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, it)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&it.CreatedAt, &it.UpdatedAt); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Get returns the item or sql.ErrNoRows.
func (r *ContentRepo) Get(ctx context.Context, id string) (*entity.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM content_items WHERE id=$1`
	var it entity.Item
	if err := r.db.GetContext(ctx, &it, q, id); err != nil {
		return nil, err
	}
	return &it, nil
}

// ListByAccount returns items attributed to the account, newest first.
func (r *ContentRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*entity.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM content_items WHERE account_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	out := []*entity.Item{}
	if err := r.db.SelectContext(ctx, &out, q, accountID, limit, offset); err != nil {
		return nil, err
	}
	return out, nil
}

// BackfillAttribution copies the account's current display columns onto
// every item attributed to it and reports how many rows changed.
func (r *ContentRepo) BackfillAttribution(ctx context.Context, accountID string) (int64, error) {
	const q = `
UPDATE content_items c SET
  display_name = a.display_name,
  username = a.username,
  avatar_url = a.avatar_url,
  updated_at = NOW()
FROM accounts a
WHERE a.id = $1 AND c.account_id = a.id
  AND (c.display_name, c.username, c.avatar_url) IS DISTINCT FROM (a.display_name, a.username, a.avatar_url)`
	res, err := r.db.ExecContext(ctx, q, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
