package entity

import (
	"time"

	accountentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

type Follow struct {
	FollowerAccountID string    `json:"follower_account_id" db:"follower_account_id"`
	FolloweeAccountID string    `json:"followee_account_id" db:"followee_account_id"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Follower is a follower account as shown on the followee's page.
type Follower struct {
	AccountID   string                    `json:"account_id" db:"account_id"`
	AccountType accountentity.AccountType `json:"account_type" db:"account_type"`
	DisplayName string                    `json:"display_name" db:"display_name"`
	Username    string                    `json:"username" db:"username"`
	AvatarURL   string                    `json:"avatar_url" db:"avatar_url"`
	FollowedAt  time.Time                 `json:"followed_at" db:"followed_at"`
}
