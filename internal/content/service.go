// Package content stores posts, jobs and messages with the author
// attribution that was current when each item was created.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account"
	accountentity "github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/bus"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/content/entity"
	contentrepo "github.com/ovaphlow/pitchfork/service-identity-go/internal/content/repo"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/utilities"
)

const (
	EventContentCreated    = "content.created"
	EventContentBackfilled = "content.attribution_backfilled"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxTitleLength  = 200
)

var (
	ErrInvalidContent  = errors.New("invalid content")
	ErrContentNotFound = errors.New("content not found")
)

type Repository interface {
	Insert(ctx context.Context, it *entity.Item) error
	Get(ctx context.Context, id string) (*entity.Item, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*entity.Item, error)
	BackfillAttribution(ctx context.Context, accountID string) (int64, error)
}

// Resolver is implemented by *account.Resolver.
type Resolver interface {
	ResolvePostingIdentity(ctx context.Context, userID string, requested accountentity.AccountType) (*accountentity.PostingIdentity, error)
}

// Accounts is implemented by *account.Store.
type Accounts interface {
	GetOwnedAccount(ctx context.Context, ownerUserID, accountID string) (*accountentity.Account, error)
	RecomputeStats(ctx context.Context, accountID string) (*accountentity.Stats, error)
}

type CreateInput struct {
	Kind      entity.Kind               `json:"kind"`
	PostingAs accountentity.AccountType `json:"posting_as"`
	Title     string                    `json:"title"`
	Body      string                    `json:"body"`
}

type Service struct {
	repo     Repository
	resolver Resolver
	accounts Accounts
	pub      account.Publisher
	logger   *zap.SugaredLogger
	newID    func() string
}

func New(repo Repository, resolver Resolver, accounts Accounts, pub account.Publisher, logger *zap.SugaredLogger) *Service {
	return &Service{repo: repo, resolver: resolver, accounts: accounts, pub: pub, logger: logger, newID: utilities.NewSnowflakeID}
}

func NewService(db *sqlx.DB, resolver Resolver, accounts Accounts, pub account.Publisher, logger *zap.SugaredLogger) *Service {
	return New(contentrepo.NewContentRepo(db), resolver, accounts, pub, logger)
}

// Create resolves the posting identity first; when that fails nothing is
// stored and the resolver's error is returned unchanged.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*entity.Item, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	switch {
	case !in.Kind.Valid():
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidContent, in.Kind)
	case in.Body == "":
		return nil, fmt.Errorf("%w: body is required", ErrInvalidContent)
	case len(in.Title) > maxTitleLength:
		return nil, fmt.Errorf("%w: title too long", ErrInvalidContent)
	}
	if t, ok := accountentity.ParseAccountType(string(in.PostingAs)); ok {
		in.PostingAs = t
	}

	identity, err := s.resolver.ResolvePostingIdentity(ctx, userID, in.PostingAs)
	if err != nil {
		return nil, err
	}

	it := &entity.Item{
		ID:          s.newID(),
		Kind:        in.Kind,
		Attribution: entity.AttributionFrom(identity),
		CreatedBy:   userID,
		Title:       in.Title,
		Body:        in.Body,
	}
	if err := s.repo.Insert(ctx, it); err != nil {
		return nil, storeError("insert content", err)
	}
	s.logger.Infow("content created", "content_id", it.ID, "kind", it.Kind, "account_id", it.AccountID, "user_id", userID)

	if _, err := s.accounts.RecomputeStats(ctx, it.AccountID); err != nil {
		s.logger.Warnw("stats recompute after create failed", "account_id", it.AccountID, "err", err)
	}
	s.emit(ctx, bus.AccountContentChannel(it.AccountID), EventContentCreated, bus.EventInsert, it)
	return it, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Item, error) {
	it, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContentNotFound
		}
		return nil, storeError("get content", err)
	}
	return it, nil
}

// ListByAccount pages through an account's items, newest first.
func (s *Service) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*entity.Item, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	out, err := s.repo.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, storeError("list content", err)
	}
	return out, nil
}

// BackfillAttribution rewrites the snapshots on the account's historical
// items from its current display data. It is the only operation that
// changes attribution after creation.
func (s *Service) BackfillAttribution(ctx context.Context, ownerUserID, accountID string) (int64, error) {
	if _, err := s.accounts.GetOwnedAccount(ctx, ownerUserID, accountID); err != nil {
		return 0, err
	}
	n, err := s.repo.BackfillAttribution(ctx, accountID)
	if err != nil {
		return 0, storeError("backfill attribution", err)
	}
	s.logger.Infow("attribution backfilled", "account_id", accountID, "user_id", ownerUserID, "rows", n)
	if n > 0 {
		s.emit(ctx, bus.AccountContentChannel(accountID), EventContentBackfilled, bus.EventUpdate,
			map[string]any{"account_id": accountID, "rows": n})
	}
	return n, nil
}

func (s *Service) emit(ctx context.Context, channel, name string, typ bus.EventType, record any) {
	if s.pub == nil {
		return
	}
	ev, err := bus.NewEvent(channel, name, typ, "content_items", record)
	if err != nil {
		s.logger.Warnw("build event failed", "event", name, "err", err)
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.logger.Warnw("publish event failed", "event", name, "channel", channel, "err", err)
	}
}

// storeError marks failures worth retrying so they map to "try again".
func storeError(op string, err error) error {
	if database.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, account.ErrTransientStore, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
