package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campuspulse/campuspulse/internal/clock"
	"github.com/campuspulse/campuspulse/internal/errorx"
	"github.com/campuspulse/campuspulse/internal/model"
)

type NotificationCreator interface {
	Create(ctx context.Context, n *model.Notification, now time.Time) (*model.Notification, error)
}

// Outbox stores notifications and dispatches the ones already due. Future
// notifications stay pending until a scheduler tick reaches scheduled_for.
type Outbox struct {
	store  NotificationCreator
	sender Sender
	clock  clock.Clock
	logger *slog.Logger
}

func NewOutbox(store NotificationCreator, sender Sender, clk clock.Clock, logger *slog.Logger) *Outbox {
	return &Outbox{
		store:  store,
		sender: sender,
		clock:  clk,
		logger: logger.With("component", "outbox"),
	}
}

// Submit persists n and, when due, dispatches it. The report is nil when
// dispatch was deferred. A dispatch failure leaves n pending for the
// scheduler and is not returned.
func (o *Outbox) Submit(ctx context.Context, n *model.Notification) (*model.Notification, *Report, error) {
	now := o.clock.Now()
	if len(n.Recipients) == 0 {
		return nil, nil, errorx.Validation("notification %q has no recipients", n.Title)
	}

	stored, err := o.store.Create(ctx, n, now)
	if err != nil {
		return nil, nil, fmt.Errorf("store notification: %w", err)
	}
	if stored.ScheduledFor.After(now) {
		o.logger.Info("notification scheduled", "notification_id", stored.ID, "scheduled_for", stored.ScheduledFor)
		return stored, nil, nil
	}

	report, err := o.sender.Dispatch(ctx, stored)
	if errors.Is(err, errorx.ErrDispatchClaimed) {
		o.logger.Info("notification already being dispatched", "notification_id", stored.ID)
		return stored, nil, nil
	}
	if err != nil {
		o.logger.Warn("immediate dispatch failed, left for scheduler", "notification_id", stored.ID, "error", err)
		return stored, nil, nil
	}
	return stored, report, nil
}

// Notify satisfies lifecycle.Notifier.
func (o *Outbox) Notify(ctx context.Context, n *model.Notification) error {
	_, _, err := o.Submit(ctx, n)
	return err
}
