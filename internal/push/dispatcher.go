package push

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campuspulse/campuspulse/internal/clock"
	"github.com/campuspulse/campuspulse/internal/errorx"
	"github.com/campuspulse/campuspulse/internal/model"
)

// Skip reasons. A skipped recipient is neither sent nor failed.
const (
	SkipPreference  = "preference_disabled"
	SkipQuietHours  = "quiet_hours"
	SkipNoTokens    = "no_active_tokens"
	SkipUnknownUser = "unknown_user"
)

const maxErrorSummary = 1000

type ProfileSource interface {
	ListPushProfiles(ctx context.Context, ids []int64) ([]model.User, error)
}

type TokenDeactivator interface {
	Deactivate(ctx context.Context, token string) error
}

type DeliveryRecorder interface {
	ClaimDispatch(ctx context.Context, id int64, now time.Time) (bool, error)
	ReleaseDispatch(ctx context.Context, id int64) error
	UpdatePushStatus(ctx context.Context, id int64, status model.PushStatus) error
	MarkDelivered(ctx context.Context, id, userID int64, now time.Time) error
}

// LiveFeed receives every notification delivered to a user.
type LiveFeed interface {
	Publish(userID int64, n *model.Notification)
}

type DispatchConfig struct {
	// SendDelay separates consecutive transport calls.
	SendDelay time.Duration
	// SendTimeout bounds each transport call.
	SendTimeout time.Duration
	// Location is where quiet hours are evaluated.
	Location *time.Location
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		SendDelay:   100 * time.Millisecond,
		SendTimeout: 10 * time.Second,
		Location:    time.UTC,
	}
}

type Skip struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

type Failure struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

// Report is the outcome of one Dispatch.
type Report struct {
	RunID          string    `json:"run_id"`
	NotificationID int64     `json:"notification_id"`
	TotalSent      int       `json:"total_sent"`
	TotalFailed    int       `json:"total_failed"`
	Skipped        []Skip    `json:"skipped"`
	Failures       []Failure `json:"failures"`
}

// ErrorSummary is the text stored as the notification's push error.
func (r *Report) ErrorSummary() string {
	if len(r.Failures) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d deliveries failed", r.TotalFailed, r.TotalFailed+r.TotalSent)
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "; user %d: %s", f.UserID, f.Reason)
	}
	s := b.String()
	if len(s) > maxErrorSummary {
		s = s[:maxErrorSummary-3] + "..."
	}
	return s
}

// Dispatcher fans one notification out to its recipients' devices.
type Dispatcher struct {
	transport Transport
	profiles  ProfileSource
	tokens    TokenDeactivator
	recorder  DeliveryRecorder
	live      LiveFeed
	clock     clock.Clock
	cfg       DispatchConfig
	sleep     func(time.Duration)
	logger    *slog.Logger
}

func NewDispatcher(transport Transport, profiles ProfileSource, tokens TokenDeactivator, recorder DeliveryRecorder, clk clock.Clock, cfg DispatchConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		transport: transport,
		profiles:  profiles,
		tokens:    tokens,
		recorder:  recorder,
		clock:     clk,
		cfg:       cfg,
		sleep:     time.Sleep,
		logger:    logger.With("component", "dispatcher"),
	}
}

// SetLiveFeed attaches a feed that receives each successful delivery.
func (d *Dispatcher) SetLiveFeed(f LiveFeed) {
	d.live = f
}

// Dispatch sends n to each recipient in order and stores the aggregate push
// status. Recipients that opted out, are in quiet hours, or have no usable
// device are skipped without a transport call. Transport failures are
// recorded per recipient and never stop the batch; the returned error is
// only for storage failures.
//
// Dispatch first claims n and returns ErrDispatchClaimed when another
// dispatcher holds it. Once claimed, the fan-out ignores cancellation of ctx
// and runs to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, n *model.Notification) (*Report, error) {
	report := &Report{
		RunID:          uuid.NewString(),
		NotificationID: n.ID,
		Skipped:        []Skip{},
		Failures:       []Failure{},
	}
	logger := d.logger.With("run_id", report.RunID, "notification_id", n.ID, "type", n.Type)

	claimed, err := d.recorder.ClaimDispatch(ctx, n.ID, d.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("claim notification: %w", err)
	}
	if !claimed {
		return nil, errorx.Wrap(errorx.ErrDispatchClaimed, "notification %d", n.ID)
	}
	ctx = context.WithoutCancel(ctx)

	ids := n.RecipientIDs()
	users, err := d.profiles.ListPushProfiles(ctx, ids)
	if err != nil {
		if rerr := d.recorder.ReleaseDispatch(ctx, n.ID); rerr != nil {
			logger.Warn("release dispatch claim failed", "error", rerr)
		}
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	byID := make(map[int64]*model.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	msg := Message{Title: n.Title, Body: n.Message}
	data := payloadData(n)
	calls := 0

	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			report.Skipped = append(report.Skipped, Skip{UserID: id, Reason: SkipUnknownUser})
			continue
		}
		now := d.clock.Now()
		if !WantsNotification(u.PushSettings, n.Type) {
			report.Skipped = append(report.Skipped, Skip{UserID: id, Reason: SkipPreference})
			continue
		}
		if IsQuietHours(u.PushSettings, now.In(d.cfg.Location)) {
			report.Skipped = append(report.Skipped, Skip{UserID: id, Reason: SkipQuietHours})
			continue
		}
		tokens := ActiveTokens(u.DeviceTokens, now)
		if len(tokens) == 0 {
			report.Skipped = append(report.Skipped, Skip{UserID: id, Reason: SkipNoTokens})
			continue
		}

		if calls > 0 && d.cfg.SendDelay > 0 {
			d.sleep(d.cfg.SendDelay)
		}
		calls++

		if reason := d.sendTo(ctx, logger, n, u, tokens, msg, data); reason != "" {
			report.TotalFailed++
			report.Failures = append(report.Failures, Failure{UserID: id, Reason: reason})
			continue
		}
		report.TotalSent++
	}

	sentAt := d.clock.Now()
	status := model.PushStatus{
		Sent:   report.TotalSent > 0,
		SentAt: &sentAt,
		Error:  report.ErrorSummary(),
	}
	if err := d.recorder.UpdatePushStatus(ctx, n.ID, status); err != nil {
		return report, fmt.Errorf("record push status: %w", err)
	}
	n.PushStatus = status

	logger.Info("notification dispatched",
		"recipients", len(ids),
		"sent", report.TotalSent,
		"failed", report.TotalFailed,
		"skipped", len(report.Skipped),
	)
	return report, nil
}

// sendTo makes one transport call for u and returns a failure reason, or ""
// when at least one device accepted the message.
func (d *Dispatcher) sendTo(ctx context.Context, logger *slog.Logger, n *model.Notification, u *model.User, tokens []string, msg Message, data map[string]string) string {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	result, err := d.transport.SendToDevices(sendCtx, tokens, msg, data)
	cancel()

	for _, token := range result.Expired() {
		if derr := d.tokens.Deactivate(ctx, token); derr != nil {
			logger.Warn("deactivate expired token failed", "user_id", u.ID, "error", derr)
		} else {
			logger.Info("expired token deactivated", "user_id", u.ID)
		}
	}

	if err != nil {
		logger.Warn("push send failed", "user_id", u.ID, "error", err)
		return err.Error()
	}
	if result.SuccessCount == 0 {
		reason := fmt.Sprintf("all %d tokens failed", len(tokens))
		for _, terr := range result.TokenErrors {
			reason += ": " + terr.Error()
			break
		}
		logger.Warn("push rejected by every device", "user_id", u.ID, "tokens", len(tokens))
		return reason
	}

	now := d.clock.Now()
	if err := d.recorder.MarkDelivered(ctx, n.ID, u.ID, now); err != nil {
		logger.Warn("mark delivered failed", "user_id", u.ID, "error", err)
	}
	if d.live != nil {
		d.live.Publish(u.ID, n)
	}
	return ""
}

func payloadData(n *model.Notification) map[string]string {
	data := make(map[string]string, len(n.Data)+3)
	for k, v := range n.Data {
		data[k] = fmt.Sprint(v)
	}
	data["notification_id"] = strconv.FormatInt(n.ID, 10)
	data["type"] = n.Type
	if n.RelatedEvent != nil {
		data["event_id"] = strconv.FormatInt(*n.RelatedEvent, 10)
	}
	return data
}
