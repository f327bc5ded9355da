package entity

import "time"

const (
	TableProfiles       = "profiles"
	TableArtistProfiles = "artist_profiles"
	TableVenueProfiles  = "venue_profiles"
)

// Profile is the type-specific source of truth an Account points at. Kind
// says which of the optional fields are meaningful; rows predate and outlive
// the accounts referencing them.
type Profile struct {
	Kind   AccountType
	ID     string
	UserID string

	// general profile
	FullName *string
	Username *string

	// artist profile
	ArtistName *string
	StageName  *string

	// venue profile
	VenueName *string

	AvatarURL  *string
	IsVerified bool
	CreatedAt  time.Time
}

// KnownProfileTable reports whether name is a profile table accounts may reference.
func KnownProfileTable(name string) bool {
	switch name {
	case TableProfiles, TableArtistProfiles, TableVenueProfiles:
		return true
	}
	return false
}
