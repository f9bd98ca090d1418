package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campuspulse/campuspulse/internal/clock"
	"github.com/campuspulse/campuspulse/internal/errorx"
	"github.com/campuspulse/campuspulse/internal/lifecycle"
	"github.com/campuspulse/campuspulse/internal/model"
)

// Threshold is a reminder offset before an event starts.
type Threshold struct {
	Name string
	Lead time.Duration
}

func DefaultThresholds() []Threshold {
	return ThresholdsFor(24*time.Hour, 2*time.Hour, 30*time.Minute)
}

// ThresholdsFor names each lead by its compact duration ("24h", "1h30m").
// The name is the reminder type stored with each reminder.
func ThresholdsFor(leads ...time.Duration) []Threshold {
	out := make([]Threshold, 0, len(leads))
	for _, lead := range leads {
		name := lead.String()
		if strings.HasSuffix(name, "m0s") {
			name = strings.TrimSuffix(name, "0s")
		}
		if strings.HasSuffix(name, "h0m") {
			name = strings.TrimSuffix(name, "0m")
		}
		out = append(out, Threshold{Name: name, Lead: lead})
	}
	return out
}

type SchedulerConfig struct {
	// Interval is the tick period. A threshold is due on the tick where the
	// time until start falls in (Lead-Interval, Lead].
	Interval   time.Duration
	Thresholds []Threshold
	// Statuses are the event statuses that receive reminders.
	Statuses []model.EventStatus
	// Retention prunes dispatched notifications older than this. Zero keeps all.
	Retention    time.Duration
	PendingBatch int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:     15 * time.Minute,
		Thresholds:   DefaultThresholds(),
		Statuses:     []model.EventStatus{model.EventApproved, model.EventUpcoming},
		Retention:    90 * 24 * time.Hour,
		PendingBatch: 100,
	}
}

type Advancer interface {
	AdvanceByTime(ctx context.Context) (lifecycle.AdvanceReport, error)
}

type CandidateSource interface {
	ListReminderCandidates(ctx context.Context, statuses []model.EventStatus, from, to time.Time) ([]model.Event, error)
}

type ReminderStore interface {
	CreateReminder(ctx context.Context, n *model.Notification, now time.Time) (*model.Notification, bool, error)
	ListPending(ctx context.Context, now time.Time, limit int) ([]model.Notification, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Sender interface {
	Dispatch(ctx context.Context, n *model.Notification) (*Report, error)
}

// TickReport summarizes one scheduler tick.
type TickReport struct {
	RunID            string                  `json:"run_id"`
	StartedAt        time.Time               `json:"started_at"`
	FinishedAt       time.Time               `json:"finished_at"`
	Advanced         lifecycle.AdvanceReport `json:"advanced"`
	EventsScanned    int                     `json:"events_scanned"`
	RemindersCreated int                     `json:"reminders_created"`
	RemindersExisted int                     `json:"reminders_existed"`
	Dispatched       int                     `json:"dispatched"`
	Sent             int                     `json:"sent"`
	Failed           int                     `json:"failed"`
	Pruned           int64                   `json:"pruned"`
	Errors           []string                `json:"errors"`
}

func (r *TickReport) fail(logger *slog.Logger, msg string, err error, args ...any) {
	logger.Error(msg, append(args, "error", err)...)
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", msg, err))
}

type Status struct {
	Running    bool        `json:"running"`
	Interval   string      `json:"interval"`
	Ticks      int64       `json:"ticks"`
	Skipped    int64       `json:"skipped"`
	LastTick   *time.Time  `json:"last_tick"`
	LastReport *TickReport `json:"last_report"`
	LastError  string      `json:"last_error"`
}

// Scheduler periodically advances event statuses, creates due reminders and
// dispatches pending notifications.
type Scheduler struct {
	advancer   Advancer
	candidates CandidateSource
	reminders  ReminderStore
	sender     Sender
	locker     Locker
	clock      clock.Clock
	cfg        SchedulerConfig
	logger     *slog.Logger

	tickMu sync.Mutex

	mu         sync.RWMutex
	cancel     context.CancelFunc
	done       chan struct{}
	ticks      int64
	skipped    int64
	lastReport *TickReport
	lastError  string
}

func NewScheduler(advancer Advancer, candidates CandidateSource, reminders ReminderStore, sender Sender, clk clock.Clock, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = def.Thresholds
	}
	if len(cfg.Statuses) == 0 {
		cfg.Statuses = def.Statuses
	}
	if cfg.PendingBatch <= 0 {
		cfg.PendingBatch = def.PendingBatch
	}
	return &Scheduler{
		advancer:   advancer,
		candidates: candidates,
		reminders:  reminders,
		sender:     sender,
		clock:      clk,
		cfg:        cfg,
		logger:     logger.With("component", "scheduler"),
	}
}

// SetLocker adds a cross-process lock taken around every tick.
func (s *Scheduler) SetLocker(l Locker) {
	s.locker = l
}

// Start runs a tick immediately and then every interval until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "thresholds", len(s.cfg.Thresholds))

	go func() {
		defer close(done)
		s.runTick(ctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runTick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
		s.logger.Info("scheduler stopped")
	}
}

func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:    s.cancel != nil,
		Interval:   s.cfg.Interval.String(),
		Ticks:      s.ticks,
		Skipped:    s.skipped,
		LastReport: s.lastReport,
		LastError:  s.lastError,
	}
	if s.lastReport != nil {
		t := s.lastReport.StartedAt
		st.LastTick = &t
	}
	return st
}

func (s *Scheduler) runTick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil && !errors.Is(err, errorx.ErrTickBusy) {
		s.logger.Error("tick failed", "error", err)
	}
}

// Tick performs one scheduling pass. It returns ErrTickBusy when another
// tick holds the lock. Per-event failures are logged and collected in the
// report without stopping the pass.
func (s *Scheduler) Tick(ctx context.Context) (*TickReport, error) {
	if !s.tickMu.TryLock() {
		s.countSkip()
		return nil, errorx.ErrTickBusy
	}
	defer s.tickMu.Unlock()

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx)
		if err != nil {
			s.recordError(err)
			return nil, errorx.Wrap(errorx.ErrTickLock, "%v", err)
		}
		if !ok {
			s.countSkip()
			return nil, errorx.Wrap(errorx.ErrTickBusy, "held by another instance")
		}
		defer unlock()
	}

	now := s.clock.Now()
	report := &TickReport{RunID: uuid.NewString(), StartedAt: now, Errors: []string{}}
	logger := s.logger.With("run_id", report.RunID)

	advanced, err := s.advancer.AdvanceByTime(ctx)
	report.Advanced = advanced
	if err != nil {
		report.fail(logger, "advance event statuses", err)
	}

	s.createReminders(ctx, logger, now, report)
	s.dispatchPending(ctx, logger, now, report)

	if s.cfg.Retention > 0 {
		pruned, err := s.reminders.DeleteOlderThan(ctx, now.Add(-s.cfg.Retention))
		if err != nil {
			report.fail(logger, "prune notifications", err)
		}
		report.Pruned = pruned
	}

	report.FinishedAt = s.clock.Now()
	logger.Info("tick complete",
		"events", report.EventsScanned,
		"reminders", report.RemindersCreated,
		"dispatched", report.Dispatched,
		"sent", report.Sent,
		"failed", report.Failed,
		"errors", len(report.Errors),
	)

	s.mu.Lock()
	s.ticks++
	s.lastReport = report
	s.lastError = ""
	if len(report.Errors) > 0 {
		s.lastError = report.Errors[0]
	}
	s.mu.Unlock()
	return report, nil
}

func (s *Scheduler) createReminders(ctx context.Context, logger *slog.Logger, now time.Time, report *TickReport) {
	var maxLead time.Duration
	for _, th := range s.cfg.Thresholds {
		maxLead = max(maxLead, th.Lead)
	}

	events, err := s.candidates.ListReminderCandidates(ctx, s.cfg.Statuses, now, now.Add(maxLead))
	if err != nil {
		report.fail(logger, "list reminder candidates", err)
		return
	}
	report.EventsScanned = len(events)

	for i := range events {
		e := &events[i]
		until := e.StartTime.Sub(now)
		for _, th := range s.cfg.Thresholds {
			if !s.due(until, th) {
				continue
			}
			n := reminderFor(e, th)
			created, ok, err := s.reminders.CreateReminder(ctx, n, now)
			if err != nil {
				report.fail(logger, "create reminder", err, "event_id", e.ID, "reminder", th.Name)
				continue
			}
			if !ok {
				report.RemindersExisted++
				continue
			}
			report.RemindersCreated++
			logger.Info("reminder created", "event_id", e.ID, "reminder", th.Name, "recipients", len(created.Recipients))
			s.dispatch(ctx, logger, created, report)
		}
	}
}

// due reports whether until falls in the band (Lead-Interval, Lead].
func (s *Scheduler) due(until time.Duration, th Threshold) bool {
	return until > th.Lead-s.cfg.Interval && until <= th.Lead
}

func (s *Scheduler) dispatchPending(ctx context.Context, logger *slog.Logger, now time.Time, report *TickReport) {
	pending, err := s.reminders.ListPending(ctx, now, s.cfg.PendingBatch)
	if err != nil {
		report.fail(logger, "list pending notifications", err)
		return
	}
	for i := range pending {
		if ctx.Err() != nil {
			return
		}
		s.dispatch(ctx, logger, &pending[i], report)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, logger *slog.Logger, n *model.Notification, report *TickReport) {
	r, err := s.sender.Dispatch(ctx, n)
	if errors.Is(err, errorx.ErrDispatchClaimed) {
		logger.Debug("notification claimed by another dispatcher", "notification_id", n.ID)
		return
	}
	if err != nil {
		report.fail(logger, "dispatch notification", err, "notification_id", n.ID)
		return
	}
	report.Dispatched++
	report.Sent += r.TotalSent
	report.Failed += r.TotalFailed
}

func (s *Scheduler) countSkip() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
	s.logger.Debug("tick skipped, previous tick still running")
}

func (s *Scheduler) recordError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

func reminderFor(e *model.Event, th Threshold) *model.Notification {
	recipients := make([]model.Recipient, 0, len(e.Attendees))
	for _, a := range e.Attendees {
		recipients = append(recipients, model.Recipient{UserID: a.UserID})
	}
	return &model.Notification{
		Title:        "Event reminder",
		Message:      fmt.Sprintf("%s starts in %s", e.Title, humanLead(th.Lead)),
		Type:         model.NotifTypeEventReminder,
		RelatedEvent: &e.ID,
		ReminderType: th.Name,
		Recipients:   recipients,
		Data: map[string]any{
			"event_id":      e.ID,
			"reminder_type": th.Name,
			"start_time":    e.StartTime.UTC().Format(time.RFC3339),
		},
	}
}

func humanLead(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		if days := int(d / (24 * time.Hour)); days > 1 {
			return fmt.Sprintf("%d days", days)
		}
		return "24 hours"
	case d >= time.Hour && d%time.Hour == 0:
		if h := int(d / time.Hour); h > 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}
