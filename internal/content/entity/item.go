package entity

import (
	"time"

	accountentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

type Kind string

const (
	KindPost    Kind = "post"
	KindJob     Kind = "job"
	KindMessage Kind = "message"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPost, KindJob, KindMessage:
		return true
	}
	return false
}

// Attribution is the author snapshot taken when the item was created.
// It is only rewritten by an explicit backfill.
type Attribution struct {
	AccountID   string                    `json:"account_id" db:"account_id"`
	AccountType accountentity.AccountType `json:"account_type" db:"account_type"`
	DisplayName string                    `json:"display_name" db:"display_name"`
	Username    string                    `json:"username" db:"username"`
	AvatarURL   string                    `json:"avatar_url" db:"avatar_url"`
}

// Item represents a row in the `content_items` table.
type Item struct {
	ID   string `json:"id" db:"id"`
	Kind Kind   `json:"kind" db:"kind"`
	Attribution
	CreatedBy    string    `json:"-" db:"created_by"`
	Title        string    `json:"title" db:"title"`
	Body         string    `json:"body" db:"body"`
	LikeCount    int64     `json:"like_count" db:"like_count"`
	CommentCount int64     `json:"comment_count" db:"comment_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// AttributionFrom stamps a resolved posting identity.
func AttributionFrom(p *accountentity.PostingIdentity) Attribution {
	return Attribution{
		AccountID:   p.AccountID,
		AccountType: p.AccountType,
		DisplayName: p.Display.DisplayName,
		Username:    p.Display.Username,
		AvatarURL:   p.Display.AvatarURL,
	}
}
