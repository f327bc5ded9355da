package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

// ProfileRepo reads the type-specific profile tables. Profiles are owned
// by their own features; this service only reads them, EnsureTable exists
// for local development.
type ProfileRepo struct {
	db *sqlx.DB
}

func NewProfileRepo(db *sqlx.DB) *ProfileRepo { return &ProfileRepo{db: db} }

// EnsureTable creates the three profile tables if not exists (idempotent).
func (r *ProfileRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS profiles (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  full_name TEXT,
  username TEXT UNIQUE,
  avatar_url TEXT,
  is_verified BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS artist_profiles (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  artist_name TEXT,
  stage_name TEXT,
  avatar_url TEXT,
  is_verified BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_artist_profiles_user ON artist_profiles(user_id);
CREATE TABLE IF NOT EXISTS venue_profiles (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  venue_name TEXT,
  avatar_url TEXT,
  is_verified BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_venue_profiles_user ON venue_profiles(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// profileRow is the union of the three tables' columns; each select
// aliases what it lacks to NULL.
type profileRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	FullName   *string   `db:"full_name"`
	Username   *string   `db:"username"`
	ArtistName *string   `db:"artist_name"`
	StageName  *string   `db:"stage_name"`
	VenueName  *string   `db:"venue_name"`
	AvatarURL  *string   `db:"avatar_url"`
	IsVerified bool      `db:"is_verified"`
	CreatedAt  time.Time `db:"created_at"`
}

func selectFor(table string) (string, error) {
	switch table {
	case entity.TableProfiles:
		return `SELECT id, user_id, full_name, username, NULL::text AS artist_name, NULL::text AS stage_name,
			NULL::text AS venue_name, avatar_url, is_verified, created_at FROM profiles`, nil
	case entity.TableArtistProfiles:
		return `SELECT id, user_id, NULL::text AS full_name, NULL::text AS username, artist_name, stage_name,
			NULL::text AS venue_name, avatar_url, is_verified, created_at FROM artist_profiles`, nil
	case entity.TableVenueProfiles:
		return `SELECT id, user_id, NULL::text AS full_name, NULL::text AS username, NULL::text AS artist_name,
			NULL::text AS stage_name, venue_name, avatar_url, is_verified, created_at FROM venue_profiles`, nil
	}
	return "", fmt.Errorf("unknown profile table %q", table)
}

func kindOf(table string) entity.AccountType {
	switch table {
	case entity.TableArtistProfiles:
		return entity.TypeArtist
	case entity.TableVenueProfiles:
		return entity.TypeVenue
	}
	return entity.TypePrimary
}

// Get fetches a profile by table and id or sql.ErrNoRows.
func (r *ProfileRepo) Get(ctx context.Context, table, id string) (*entity.Profile, error) {
	base, err := selectFor(table)
	if err != nil {
		return nil, err
	}
	var row profileRow
	if err := r.db.GetContext(ctx, &row, base+` WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return row.toEntity(kindOf(table)), nil
}

// FindByOwner returns the oldest profile of the given type owned by the
// user, or sql.ErrNoRows. Admin accounts resolve to the general profile.
func (r *ProfileRepo) FindByOwner(ctx context.Context, t entity.AccountType, userID string) (*entity.Profile, error) {
	table := t.ProfileTable()
	base, err := selectFor(table)
	if err != nil {
		return nil, err
	}
	var row profileRow
	if err := r.db.GetContext(ctx, &row, base+` WHERE user_id=$1 ORDER BY created_at ASC, id ASC LIMIT 1`, userID); err != nil {
		return nil, err
	}
	return row.toEntity(kindOf(table)), nil
}

func (p profileRow) toEntity(kind entity.AccountType) *entity.Profile {
	return &entity.Profile{
		Kind:       kind,
		ID:         p.ID,
		UserID:     p.UserID,
		FullName:   p.FullName,
		Username:   p.Username,
		ArtistName: p.ArtistName,
		StageName:  p.StageName,
		VenueName:  p.VenueName,
		AvatarURL:  p.AvatarURL,
		IsVerified: p.IsVerified,
		CreatedAt:  p.CreatedAt,
	}
}
