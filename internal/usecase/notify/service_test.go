package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-pipeline/internal/resilience/alert"
)

type fakeChannel struct {
	name    string
	enabled bool
	err     error
	panics  bool
	delay   time.Duration

	mu    sync.Mutex
	texts []string
	calls int32
}

func (f *fakeChannel) Name() string    { return f.name }
func (f *fakeChannel) IsEnabled() bool { return f.enabled }

func (f *fakeChannel) Send(ctx context.Context, text string) error {
	atomic.AddInt32(&f.calls, 1)
	if f.panics {
		panic("channel exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return f.err
}

func (f *fakeChannel) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func drain(t *testing.T, svc Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Drain(ctx))
}

func TestService_ImplementsSink(t *testing.T) {
	var _ alert.Sink = NewService(nil, 1)
}

func TestService_Notify_FansOutToEnabledChannels(t *testing.T) {
	telegram := &fakeChannel{name: "telegram", enabled: true}
	discord := &fakeChannel{name: "discord", enabled: true}
	slack := &fakeChannel{name: "slack", enabled: false}
	svc := NewService([]Channel{telegram, discord, slack}, 4)

	svc.Notify(context.Background(), "🔴 Circuit breaker OPEN for llm_api")
	drain(t, svc)

	assert.Equal(t, []string{"🔴 Circuit breaker OPEN for llm_api"}, telegram.received())
	assert.Equal(t, []string{"🔴 Circuit breaker OPEN for llm_api"}, discord.received())
	assert.Empty(t, slack.received())
	assert.Equal(t, float64(2), testutil.ToFloat64(channelsEnabled))
}

func TestService_Notify_BlankTextIgnored(t *testing.T) {
	ch := &fakeChannel{name: "telegram", enabled: true}
	svc := NewService([]Channel{ch}, 1)

	svc.Notify(context.Background(), "   ")
	drain(t, svc)

	assert.Zero(t, atomic.LoadInt32(&ch.calls))
}

func TestService_Notify_FailingChannelDoesNotAffectOthers(t *testing.T) {
	bad := &fakeChannel{name: "bad", enabled: true, err: errors.New("503")}
	good := &fakeChannel{name: "good", enabled: true}
	svc := NewService([]Channel{bad, good}, 4)

	svc.Notify(context.Background(), "x")
	drain(t, svc)

	assert.Len(t, good.received(), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(notificationSentTotal.WithLabelValues("bad", "failure")))
}

func TestService_Notify_RecoversChannelPanic(t *testing.T) {
	boom := &fakeChannel{name: "boom", enabled: true, panics: true}
	svc := NewService([]Channel{boom}, 1)

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), "x")
		drain(t, svc)
	})
}

func TestService_MutesChannelAfterConsecutiveFailures(t *testing.T) {
	now := time.Date(2026, 2, 14, 6, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	flaky := &fakeChannel{name: "flaky", enabled: true, err: errors.New("down")}
	svc := NewService([]Channel{flaky}, 1, WithClock(clock))

	for i := 0; i < muteThreshold; i++ {
		svc.Notify(context.Background(), "x")
		drain(t, svc)
	}
	require.Equal(t, int32(muteThreshold), atomic.LoadInt32(&flaky.calls))

	health := svc.GetChannelHealth()
	require.Len(t, health, 1)
	assert.True(t, health[0].Muted)
	assert.Equal(t, muteThreshold, health[0].ConsecutiveFailures)
	require.NotNil(t, health[0].DisabledUntil)
	assert.Equal(t, now.Add(muteDuration), *health[0].DisabledUntil)

	svc.Notify(context.Background(), "x")
	drain(t, svc)
	assert.Equal(t, int32(muteThreshold), atomic.LoadInt32(&flaky.calls), "muted channel is skipped")

	mu.Lock()
	now = now.Add(muteDuration + time.Second)
	mu.Unlock()
	flaky.err = nil

	svc.Notify(context.Background(), "x")
	drain(t, svc)
	assert.Equal(t, int32(muteThreshold+1), atomic.LoadInt32(&flaky.calls))
	health = svc.GetChannelHealth()
	assert.False(t, health[0].Muted)
	assert.Zero(t, health[0].ConsecutiveFailures)
}

func TestService_Shutdown_CancelsInFlight(t *testing.T) {
	slow := &fakeChannel{name: "slow", enabled: true, delay: time.Hour}
	svc := NewService([]Channel{slow}, 1)

	svc.Notify(context.Background(), "x")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, svc.Shutdown(ctx))
}

func TestService_Drain_Timeout(t *testing.T) {
	slow := &fakeChannel{name: "slow", enabled: true, delay: time.Hour}
	svc := NewService([]Channel{slow}, 1)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	svc.Notify(context.Background(), "x")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Drain(ctx), context.DeadlineExceeded)
}

func TestNotifierChannel(t *testing.T) {
	disabled := NewChannel("discord", nil, false)
	assert.Equal(t, "discord", disabled.Name())
	assert.False(t, disabled.IsEnabled())
	assert.ErrorIs(t, disabled.Send(context.Background(), "x"), ErrChannelDisabled)

	var got string
	enabled := NewChannel("custom", notifierFunc(func(_ context.Context, text string) error {
		got = text
		return nil
	}), true)
	assert.ErrorIs(t, enabled.Send(context.Background(), " "), ErrEmptyMessage)
	require.NoError(t, enabled.Send(context.Background(), "hello"))
	assert.Equal(t, "hello", got)
}

type notifierFunc func(ctx context.Context, text string) error

func (f notifierFunc) Notify(ctx context.Context, text string) error { return f(ctx, text) }
