package repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/content/entity"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return sqlx.NewDb(db, "postgres"), mock
}

var itemCols = []string{
	"id", "kind", "account_id", "account_type", "display_name", "username", "avatar_url",
	"created_by", "title", "body", "like_count", "comment_count", "created_at", "updated_at",
}

func TestInsert(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO content_items`).
		WithArgs("c1", "post", "acc-1", "artist", "Midnight Collective", "midnight-collective", "", "u1", "", "hello").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	it := &entity.Item{
		ID:   "c1",
		Kind: entity.KindPost,
		Attribution: entity.Attribution{
			AccountID: "acc-1", AccountType: accountentity.TypeArtist,
			DisplayName: "Midnight Collective", Username: "midnight-collective",
		},
		CreatedBy: "u1",
		Body:      "hello",
	}
	require.NoError(t, NewContentRepo(db).Insert(context.Background(), it))
	assert.Equal(t, now, it.CreatedAt)
}

func TestGet(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM content_items WHERE id=\$1`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow("c1", "job", "acc-2", "venue", "The Blue Room", "the-blue-room", "", "u1", "Sound tech", "Hiring", 4, 1, now, now))

	it, err := NewContentRepo(db).Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, entity.KindJob, it.Kind)
	assert.Equal(t, "The Blue Room", it.DisplayName)
	assert.Equal(t, int64(4), it.LikeCount)

	mock.ExpectQuery(`SELECT .* FROM content_items`).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err = NewContentRepo(db).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListByAccountEmpty(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("acc-1", 20, 0).
		WillReturnRows(sqlmock.NewRows(itemCols))

	out, err := NewContentRepo(db).ListByAccount(context.Background(), "acc-1", 20, 0)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestBackfillAttribution(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`UPDATE content_items c SET`).
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewContentRepo(db).BackfillAttribution(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
