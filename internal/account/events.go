package account

import (
	"context"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/bus"
)

const (
	EventAccountCreated     = "account.created"
	EventAccountUpdated     = "account.updated"
	EventAccountDeactivated = "account.deactivated"
	EventAccountSwitched    = "account.switched"
	EventStatsRecomputed    = "account.stats_recomputed"
)

// notifier publishes best effort: a failed publish is logged and the
// operation that triggered it still succeeds.
type notifier struct {
	pub    Publisher
	logger *zap.SugaredLogger
}

func (n notifier) emit(ctx context.Context, channel, name string, typ bus.EventType, table string, record any) {
	if n.pub == nil {
		return
	}
	ev, err := bus.NewEvent(channel, name, typ, table, record)
	if err != nil {
		n.logger.Warnw("build event failed", "event", name, "err", err)
		return
	}
	if err := n.pub.Publish(ctx, ev); err != nil {
		n.logger.Warnw("publish event failed", "event", name, "channel", channel, "err", err)
	}
}

// securityEvent logs a rejected cross-user access.
func securityEvent(logger *zap.SugaredLogger, action, userID, accountID string) {
	logger.Warnw("ownership violation",
		"security", true,
		"action", action,
		"user_id", userID,
		"account_id", accountID,
	)
}
