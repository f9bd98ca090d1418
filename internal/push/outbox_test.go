package push

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campuspulse/campuspulse/internal/model"
)

func TestOutboxDispatchesDueNotification(t *testing.T) {
	f := newPushFixture(t)
	ctx := context.Background()
	a := f.user(t, "a", "a-1")
	outbox := NewOutbox(f.notifications, f.dispatcher, f.clock, testLogger())

	stored, report, err := outbox.Submit(ctx, &model.Notification{
		Title:      "Library closed",
		Message:    "Closed for maintenance",
		Type:       model.NotifTypeAnnouncement,
		Recipients: []model.Recipient{{UserID: a}},
	})
	require.NoError(t, err)
	require.NotNil(t, report)
	require.Equal(t, 1, report.TotalSent)
	require.Equal(t, 1, f.transport.callCount())

	got, err := f.notifications.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	require.True(t, got.PushStatus.Sent)
}

func TestOutboxDefersFutureNotification(t *testing.T) {
	f := newPushFixture(t)
	ctx := context.Background()
	a := f.user(t, "a", "a-1")
	outbox := NewOutbox(f.notifications, f.dispatcher, f.clock, testLogger())

	stored, report, err := outbox.Submit(ctx, &model.Notification{
		Title:        "Career fair tomorrow",
		Type:         model.NotifTypeAnnouncement,
		Recipients:   []model.Recipient{{UserID: a}},
		ScheduledFor: f.clock.Now().Add(3 * time.Hour),
	})
	require.NoError(t, err)
	require.Nil(t, report)
	require.Zero(t, f.transport.callCount())
	require.Nil(t, stored.PushStatus.SentAt)

	pending, err := f.notifications.ListPending(ctx, f.clock.Now().Add(3*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestOutboxRejectsEmptyRecipients(t *testing.T) {
	f := newPushFixture(t)
	outbox := NewOutbox(f.notifications, f.dispatcher, f.clock, testLogger())

	err := outbox.Notify(context.Background(), &model.Notification{Title: "nobody", Type: model.NotifTypeAnnouncement})
	require.Error(t, err)
}

// gatedTransport blocks its first send until release is closed.
type gatedTransport struct {
	*fakeTransport
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTransport) SendToDevices(ctx context.Context, tokens []string, msg Message, data map[string]string) (SendResult, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakeTransport.SendToDevices(ctx, tokens, msg, data)
}

func TestOutboxDispatchNotRepeatedByConcurrentTick(t *testing.T) {
	f := newSchedFixture(t)
	a := f.user(t, "a", "a-1")
	gate := &gatedTransport{fakeTransport: f.transport, entered: make(chan struct{}), release: make(chan struct{})}
	d := NewDispatcher(gate, f.users, f.tokens, f.notifications, f.clock, DispatchConfig{}, testLogger())
	outbox := NewOutbox(f.notifications, d, f.clock, testLogger())
	sched := NewScheduler(f.lifecycle, f.events, f.notifications, d, f.clock,
		SchedulerConfig{Interval: 15 * time.Minute}, testLogger())

	var wg sync.WaitGroup
	var report *Report
	var submitErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, report, submitErr = outbox.Submit(context.Background(), &model.Notification{
			Title:      "Room change",
			Message:    "Chess Night moved to B201",
			Type:       model.NotifTypeAnnouncement,
			Recipients: []model.Recipient{{UserID: a}},
		})
	}()
	<-gate.entered

	tick, err := sched.Tick(context.Background())
	require.NoError(t, err)
	require.Zero(t, tick.Dispatched)

	close(gate.release)
	wg.Wait()
	require.NoError(t, submitErr)
	require.NotNil(t, report)
	require.Equal(t, 1, report.TotalSent)
	require.Equal(t, 1, f.transport.callCount())
}
