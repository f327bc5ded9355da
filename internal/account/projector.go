package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/bus"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/utilities"
)

// Default display values used when a profile field is empty.
const (
	DefaultUserDisplayName   = "User"
	DefaultUserUsername      = "user"
	DefaultArtistDisplayName = "Artist"
	DefaultArtistUsername    = "artist"
	DefaultVenueDisplayName  = "Venue"
	DefaultVenueUsername     = "venue"
)

// ProjectProfile maps a type-specific profile onto the generic display
// shape. Every string falls back to a default, so the result never has an
// empty name or handle.
func ProjectProfile(t entity.AccountType, p *entity.Profile) entity.DisplayInfo {
	if p == nil {
		return defaultsFor(t)
	}
	d := entity.DisplayInfo{AvatarURL: strings.TrimSpace(deref(p.AvatarURL)), IsVerified: p.IsVerified}
	switch t {
	case entity.TypeArtist:
		stage, artist := deref(p.StageName), deref(p.ArtistName)
		d.DisplayName = firstNonEmpty(stage, artist, DefaultArtistDisplayName)
		d.Username = firstNonEmpty(utilities.Slug(stage), utilities.Slug(artist), DefaultArtistUsername)
	case entity.TypeVenue:
		venue := deref(p.VenueName)
		d.DisplayName = firstNonEmpty(venue, DefaultVenueDisplayName)
		d.Username = firstNonEmpty(utilities.Slug(venue), DefaultVenueUsername)
	default:
		d.DisplayName = firstNonEmpty(deref(p.FullName), DefaultUserDisplayName)
		d.Username = firstNonEmpty(deref(p.Username), DefaultUserUsername)
	}
	return d
}

// Fallback is the display shape used when the live profile can't be read:
// the account's cached snapshot with type defaults filling the gaps.
func Fallback(a *entity.Account) entity.DisplayInfo {
	def := defaultsFor(a.AccountType)
	d := a.Display()
	d.DisplayName = firstNonEmpty(d.DisplayName, def.DisplayName)
	d.Username = firstNonEmpty(d.Username, def.Username)
	return d
}

func defaultsFor(t entity.AccountType) entity.DisplayInfo {
	switch t {
	case entity.TypeArtist:
		return entity.DisplayInfo{DisplayName: DefaultArtistDisplayName, Username: DefaultArtistUsername}
	case entity.TypeVenue:
		return entity.DisplayInfo{DisplayName: DefaultVenueDisplayName, Username: DefaultVenueUsername}
	}
	return entity.DisplayInfo{DisplayName: DefaultUserDisplayName, Username: DefaultUserUsername}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Projector computes display snapshots and keeps the copies on accounts
// and in the cache up to date. Both copies are stale until refreshed.
type Projector struct {
	accounts AccountRepository
	profiles ProfileRepository
	cache    DisplayCache
	events   notifier
	logger   *zap.SugaredLogger
	group    singleflight.Group
}

// NewProjector builds a Projector; cache may be nil.
func NewProjector(accounts AccountRepository, profiles ProfileRepository, cache DisplayCache, pub Publisher, logger *zap.SugaredLogger) *Projector {
	return &Projector{
		accounts: accounts,
		profiles: profiles,
		cache:    cache,
		events:   notifier{pub: pub, logger: logger},
		logger:   logger,
	}
}

func (p *Projector) project(ctx context.Context, a *entity.Account) (entity.DisplayInfo, error) {
	prof, err := p.profiles.Get(ctx, a.ProfileTable, a.ProfileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.DisplayInfo{}, &ProfileNotFoundError{Type: a.AccountType}
		}
		return entity.DisplayInfo{}, transient("load profile", err)
	}
	return ProjectProfile(a.AccountType, prof), nil
}

// ProjectDisplayInfo reads the live profile and maps it. It never fails:
// when the profile can't be read the result is Fallback(a).
func (p *Projector) ProjectDisplayInfo(ctx context.Context, a *entity.Account) entity.DisplayInfo {
	d, err := p.project(ctx, a)
	if err != nil {
		p.logger.Warnw("display projection degraded", "account_id", a.ID, "err", err)
		return Fallback(a)
	}
	return d
}

// CachedDisplayInfo prefers a live cache entry and otherwise projects,
// coalescing concurrent projections of the same account. Never fails.
func (p *Projector) CachedDisplayInfo(ctx context.Context, a *entity.Account) entity.DisplayInfo {
	if p.cache != nil {
		d, ok, err := p.cache.Get(ctx, a.ID)
		if err != nil {
			p.logger.Debugw("display cache read failed", "account_id", a.ID, "err", err)
		} else if ok {
			return d
		}
	}
	v, _, _ := p.group.Do(a.ID, func() (any, error) {
		// coalesced callers share the result, so run detached from the leader's cancellation
		ctx := context.WithoutCancel(ctx)
		d, err := p.project(ctx, a)
		if err != nil {
			p.logger.Warnw("display projection degraded", "account_id", a.ID, "err", err)
			return Fallback(a), nil
		}
		p.remember(ctx, a.ID, d)
		return d, nil
	})
	return v.(entity.DisplayInfo)
}

// RefreshDisplayInfo re-projects the account from its profile and writes
// the result onto the account row. Only display columns change. Unlike the
// read paths this fails when the profile can't be read, so a transient
// outage never overwrites a good snapshot with defaults.
func (p *Projector) RefreshDisplayInfo(ctx context.Context, accountID string) (entity.DisplayInfo, error) {
	a, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.DisplayInfo{}, ErrAccountNotFound
		}
		return entity.DisplayInfo{}, transient("get account", err)
	}
	d, err := p.project(ctx, a)
	if err != nil {
		return entity.DisplayInfo{}, err
	}
	if err := p.writeBack(ctx, a, d); err != nil {
		return entity.DisplayInfo{}, err
	}
	return d, nil
}

// writeBack stores d on the account row when it differs and refreshes the cache.
func (p *Projector) writeBack(ctx context.Context, a *entity.Account, d entity.DisplayInfo) error {
	if a.Display() != d {
		if _, err := p.accounts.UpdateDisplay(ctx, a.ID, d); err != nil {
			return transient("update display info", err)
		}
		p.events.emit(ctx, bus.UserChannel(a.OwnerUserID), EventAccountUpdated, bus.EventUpdate, "accounts",
			map[string]any{"id": a.ID, "display": d})
	}
	p.remember(ctx, a.ID, d)
	return nil
}

func (p *Projector) remember(ctx context.Context, accountID string, d entity.DisplayInfo) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, accountID, d); err != nil {
		p.logger.Debugw("display cache write failed", "account_id", accountID, "err", err)
	}
}

// Forget drops cached entries, e.g. for deactivated accounts.
func (p *Projector) Forget(ctx context.Context, accountIDs ...string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Invalidate(ctx, accountIDs...); err != nil {
		p.logger.Debugw("display cache invalidate failed", "accounts", accountIDs, "err", err)
	}
}
