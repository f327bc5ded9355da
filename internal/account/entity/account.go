package entity

import "time"

// AccountType discriminates the logical identities a user can act as.
type AccountType string

const (
	TypePrimary AccountType = "primary"
	TypeArtist  AccountType = "artist"
	TypeVenue   AccountType = "venue"
	TypeAdmin   AccountType = "admin"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case TypePrimary, TypeArtist, TypeVenue, TypeAdmin:
		return true
	}
	return false
}

// CanAuthor reports whether accounts of this type may be stamped onto
// public content. Admin accounts never author.
func (t AccountType) CanAuthor() bool {
	return t == TypePrimary || t == TypeArtist || t == TypeVenue
}

// ProfileTable is the table holding the source-of-truth profile for t.
// Admin accounts hang off the general profile.
func (t AccountType) ProfileTable() string {
	switch t {
	case TypeArtist:
		return TableArtistProfiles
	case TypeVenue:
		return TableVenueProfiles
	default:
		return TableProfiles
	}
}

// ParseAccountType accepts the stored values plus "general", which the
// navigation layer uses for primary accounts.
func ParseAccountType(s string) (AccountType, bool) {
	if s == "general" {
		return TypePrimary, true
	}
	t := AccountType(s)
	return t, t.Valid()
}

// DisplayInfo is the human-facing identity snapshot of an account.
type DisplayInfo struct {
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatar_url"`
	IsVerified  bool   `json:"is_verified"`
}

// Stats are recomputed aggregates; never authoritative.
type Stats struct {
	FollowerCount   int64   `json:"follower_count" db:"follower_count"`
	FollowingCount  int64   `json:"following_count" db:"following_count"`
	PostCount       int64   `json:"post_count" db:"post_count"`
	EngagementScore float64 `json:"engagement_score" db:"engagement_score"`
}

// Account represents a row in the `accounts` table.
type Account struct {
	ID           string      `json:"id" db:"id"`
	OwnerUserID  string      `json:"owner_user_id" db:"owner_user_id"`
	AccountType  AccountType `json:"account_type" db:"account_type"`
	ProfileTable string      `json:"profile_table" db:"profile_table"`
	ProfileID    string      `json:"profile_id" db:"profile_id"`
	DisplayName  string      `json:"display_name" db:"display_name"`
	Username     string      `json:"username" db:"username"`
	AvatarURL    string      `json:"avatar_url" db:"avatar_url"`
	IsVerified   bool        `json:"is_verified" db:"is_verified"`
	IsActive     bool        `json:"is_active" db:"is_active"`
	Stats
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty" db:"deactivated_at"`
}

// Display returns the cached snapshot stored on the account.
func (a *Account) Display() DisplayInfo {
	return DisplayInfo{
		DisplayName: a.DisplayName,
		Username:    a.Username,
		AvatarURL:   a.AvatarURL,
		IsVerified:  a.IsVerified,
	}
}

// Selection is the per-user "acting as" pointer.
type Selection struct {
	UserID          string    `json:"user_id" db:"user_id"`
	ActiveAccountID string    `json:"active_account_id" db:"active_account_id"`
	LastSwitchedAt  time.Time `json:"last_switched_at" db:"last_switched_at"`
	Version         int64     `json:"version" db:"version"`
}

// PostingIdentity is what gets stamped onto new content.
type PostingIdentity struct {
	AccountID   string      `json:"account_id"`
	AccountType AccountType `json:"account_type"`
	Display     DisplayInfo `json:"display"`
}
