package account

import (
	"context"
	"database/sql"
	"errors"
	"net/url"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

type SyncAction string

const (
	// SyncNone: the active account already matches the section.
	SyncNone SyncAction = "none"
	// SyncSwitched: the active account was switched to the section's type.
	SyncSwitched SyncAction = "switched"
	// SyncRedirect: the user has no account of that type; send them to onboarding.
	SyncRedirect SyncAction = "redirect"
	// SyncNoop: general section and no primary account; nothing to do.
	SyncNoop SyncAction = "noop"
)

type SyncResult struct {
	Action       SyncAction         `json:"action"`
	ExpectedType entity.AccountType `json:"expected_type"`
	Account      *entity.Account    `json:"account,omitempty"`
	RedirectTo   string             `json:"redirect_to,omitempty"`
}

// Synchronizer keeps the active account in line with the part of the app
// being navigated. It is a convenience only; server-side operations check
// ownership on their own.
type Synchronizer struct {
	sections *Sections
	tracker  *Tracker
	accounts AccountRepository
	logger   *zap.SugaredLogger
}

func NewSynchronizer(sections *Sections, tracker *Tracker, accounts AccountRepository, logger *zap.SugaredLogger) *Synchronizer {
	if sections == nil {
		sections = DefaultSections()
	}
	return &Synchronizer{sections: sections, tracker: tracker, accounts: accounts, logger: logger}
}

// Sync reconciles the user's active account with path.
func (s *Synchronizer) Sync(ctx context.Context, userID, path string) (*SyncResult, error) {
	expected, section, _ := s.sections.Match(path)
	res := &SyncResult{ExpectedType: expected}

	active, err := s.tracker.GetActiveAccount(ctx, userID)
	if err != nil && !errors.Is(err, ErrNoActiveAccount) {
		return nil, err
	}
	if active != nil && active.AccountType == expected {
		res.Action = SyncNone
		res.Account = active
		return res, nil
	}

	target, err := s.accounts.GetActiveByOwnerType(ctx, userID, expected)
	switch {
	case err == nil:
		switched, err := s.tracker.SwitchAccount(ctx, userID, target.ID)
		if err != nil {
			return nil, err
		}
		s.logger.Debugw("route sync switched account", "user_id", userID, "path", path, "account_id", switched.ID)
		res.Action = SyncSwitched
		res.Account = switched
		return res, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, transient("find section account", err)
	}

	if expected != entity.TypePrimary {
		res.Action = SyncRedirect
		res.Account = active
		res.RedirectTo = onboardingURL(section.Onboarding, expected, path)
		return res, nil
	}
	res.Action = SyncNoop
	res.Account = active
	return res, nil
}

// onboardingURL appends returnTo so navigation can resume after the
// account is created.
func onboardingURL(onboarding string, t entity.AccountType, returnTo string) string {
	if onboarding == "" {
		onboarding = "/create/" + string(t)
	}
	u, err := url.Parse(onboarding)
	if err != nil {
		u = &url.URL{Path: "/create/" + string(t)}
	}
	q := u.Query()
	q.Set("returnTo", returnTo)
	u.RawQuery = q.Encode()
	return u.String()
}
