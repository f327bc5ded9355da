// Package follow manages follow edges between accounts.
package follow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account"
	accountentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/bus"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/follow/entity"
	followrepo "github.com/ovaphlow/pitchfork/service-identity-go/internal/follow/repo"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/database"
)

const (
	EventFollowCreated = "follow.created"
	EventFollowDeleted = "follow.deleted"
)

var ErrSelfFollow = errors.New("an account cannot follow itself")

type Repository interface {
	Insert(ctx context.Context, followerID, followeeID string) (int64, error)
	Delete(ctx context.Context, followerID, followeeID string) (int64, error)
	ListFollowers(ctx context.Context, followeeID string, limit, offset int) ([]*entity.Follower, error)
}

// Accounts is implemented by *account.Store.
type Accounts interface {
	GetAccount(ctx context.Context, accountID string) (*accountentity.Account, error)
	GetOwnedAccount(ctx context.Context, ownerUserID, accountID string) (*accountentity.Account, error)
	RecomputeStats(ctx context.Context, accountID string) (*accountentity.Stats, error)
}

type Service struct {
	repo     Repository
	accounts Accounts
	pub      account.Publisher
	logger   *zap.SugaredLogger
}

func New(repo Repository, accounts Accounts, pub account.Publisher, logger *zap.SugaredLogger) *Service {
	return &Service{repo: repo, accounts: accounts, pub: pub, logger: logger}
}

func NewService(db *sqlx.DB, accounts Accounts, pub account.Publisher, logger *zap.SugaredLogger) *Service {
	return New(followrepo.NewFollowRepo(db), accounts, pub, logger)
}

// Follow makes followerID, which must belong to userID, follow followeeID.
// Following again is a no-op.
func (s *Service) Follow(ctx context.Context, userID, followerID, followeeID string) error {
	follower, followee, err := s.edge(ctx, userID, followerID, followeeID)
	if err != nil {
		return err
	}
	if !followee.IsActive {
		return account.ErrAccountInactive
	}
	n, err := s.repo.Insert(ctx, followerID, followeeID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return account.ErrAccountNotFound
		}
		return storeError("insert follow", err)
	}
	if n == 0 {
		return nil
	}
	s.logger.Infow("account followed", "follower_account_id", followerID, "followee_account_id", followeeID, "user_id", userID)
	s.afterChange(ctx, follower, followee, EventFollowCreated, bus.EventInsert)
	return nil
}

// Unfollow removes the edge if present.
func (s *Service) Unfollow(ctx context.Context, userID, followerID, followeeID string) error {
	follower, followee, err := s.edge(ctx, userID, followerID, followeeID)
	if err != nil {
		return err
	}
	n, err := s.repo.Delete(ctx, followerID, followeeID)
	if err != nil {
		return storeError("delete follow", err)
	}
	if n == 0 {
		return nil
	}
	s.logger.Infow("account unfollowed", "follower_account_id", followerID, "followee_account_id", followeeID, "user_id", userID)
	s.afterChange(ctx, follower, followee, EventFollowDeleted, bus.EventDelete)
	return nil
}

func (s *Service) ListFollowers(ctx context.Context, accountID string, limit, offset int) ([]*entity.Follower, error) {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	out, err := s.repo.ListFollowers(ctx, accountID, limit, offset)
	if err != nil {
		return nil, storeError("list followers", err)
	}
	return out, nil
}

func (s *Service) edge(ctx context.Context, userID, followerID, followeeID string) (*accountentity.Account, *accountentity.Account, error) {
	if followerID == followeeID {
		return nil, nil, ErrSelfFollow
	}
	follower, err := s.accounts.GetOwnedAccount(ctx, userID, followerID)
	if err != nil {
		return nil, nil, err
	}
	if !follower.IsActive {
		return nil, nil, account.ErrAccountInactive
	}
	followee, err := s.accounts.GetAccount(ctx, followeeID)
	if err != nil {
		return nil, nil, err
	}
	return follower, followee, nil
}

// afterChange recomputes both sides' counters and notifies the followee's
// owner. Failures here are logged only; the edge is already stored.
func (s *Service) afterChange(ctx context.Context, follower, followee *accountentity.Account, name string, typ bus.EventType) {
	for _, id := range []string{follower.ID, followee.ID} {
		if _, err := s.accounts.RecomputeStats(ctx, id); err != nil {
			s.logger.Warnw("stats recompute after follow change failed", "account_id", id, "err", err)
		}
	}
	if s.pub == nil {
		return
	}
	ev, err := bus.NewEvent(bus.UserChannel(followee.OwnerUserID), name, typ, "follows", entity.Follow{
		FollowerAccountID: follower.ID,
		FolloweeAccountID: followee.ID,
	})
	if err != nil {
		s.logger.Warnw("build event failed", "event", name, "err", err)
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.logger.Warnw("publish event failed", "event", name, "err", err)
	}
}

func storeError(op string, err error) error {
	if database.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, account.ErrTransientStore, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
