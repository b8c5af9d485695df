package notify

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"content-pipeline/internal/resilience/alert"
)

const (
	muteThreshold       = 5                // consecutive failures before a channel is muted
	muteDuration        = 5 * time.Minute  // how long a muted channel is skipped
	workerPoolTimeout   = 5 * time.Second  // wait for a worker slot before dropping
	notificationTimeout = 30 * time.Second // per-channel send timeout
)

// Service dispatches alerts to every enabled channel. It satisfies
// alert.Sink, so it can be handed directly to the resilience components.
type Service interface {
	alert.Sink

	// GetChannelHealth returns the mute state of every channel.
	GetChannelHealth() []ChannelHealthStatus

	// Drain waits for in-flight deliveries without cancelling them.
	Drain(ctx context.Context) error

	// Shutdown cancels in-flight deliveries and waits for them to return.
	Shutdown(ctx context.Context) error
}

// ChannelHealthStatus represents the health status of an alert channel.
type ChannelHealthStatus struct {
	Name                string     `json:"name"`
	Enabled             bool       `json:"enabled"`
	Muted               bool       `json:"muted"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	DisabledUntil       *time.Time `json:"disabled_until,omitempty"`
}

// Option configures the service.
type Option func(*service)

// WithClock overrides time.Now for mute bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

type service struct {
	channels       []Channel
	workerPool     chan struct{}
	channelHealth  map[string]*channelHealth
	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	now            func() time.Time
}

type channelHealth struct {
	consecutiveFailures int
	disabledUntil       time.Time
	mu                  sync.Mutex
}

// NewService creates a notification service over channels with at most
// maxConcurrent sends in flight.
func NewService(channels []Channel, maxConcurrent int, opts ...Option) Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	svc := &service{
		channels:       channels,
		workerPool:     make(chan struct{}, maxConcurrent),
		channelHealth:  make(map[string]*channelHealth, len(channels)),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}

	enabled := 0
	for _, ch := range channels {
		svc.channelHealth[ch.Name()] = &channelHealth{}
		if ch.IsEnabled() {
			enabled++
		}
	}
	SetChannelsEnabled(float64(enabled))

	return svc
}

// Notify implements alert.Sink. It returns immediately; delivery happens in
// background goroutines and failures are only logged.
func (s *service) Notify(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		requestID = uuid.New().String()
	}

	dispatched := 0
	for _, ch := range s.channels {
		if !ch.IsEnabled() {
			continue
		}
		dispatched++
		s.wg.Add(1)
		go s.notifyChannel(requestID, ch, text)
	}

	if dispatched == 0 {
		slog.Debug("No alert channels enabled, alert logged only",
			slog.String("request_id", requestID),
			slog.String("text", text))
		return
	}

	slog.Info("Dispatching alert",
		slog.String("request_id", requestID),
		slog.Int("enabled_channels", dispatched))
}

// notifyChannel sends one alert to one channel.
func (s *service) notifyChannel(requestID string, channel Channel, text string) {
	defer s.wg.Done()

	incrementActiveGoroutines()
	defer decrementActiveGoroutines()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in alert channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	timer := time.NewTimer(workerPoolTimeout)
	select {
	case s.workerPool <- struct{}{}:
		timer.Stop()
		defer func() { <-s.workerPool }()
	case <-timer.C:
		slog.Warn("Alert dropped: worker pool full",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()))
		RecordDropped(channel.Name(), "pool_full")
		return
	case <-s.shutdownCtx.Done():
		timer.Stop()
		return
	}

	health := s.channelHealth[channel.Name()]
	health.mu.Lock()
	if s.now().Before(health.disabledUntil) {
		until := health.disabledUntil
		health.mu.Unlock()
		slog.Warn("Channel muted after repeated failures",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Time("disabled_until", until))
		RecordDropped(channel.Name(), "muted")
		return
	}
	health.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.shutdownCtx, notificationTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	start := time.Now()
	RecordDispatch(channel.Name())
	err := channel.Send(ctx, text)
	duration := time.Since(start)

	health.mu.Lock()
	if err != nil {
		health.consecutiveFailures++
		if health.consecutiveFailures >= muteThreshold {
			health.disabledUntil = s.now().Add(muteDuration)
			slog.Error("Alert channel muted",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Int("consecutive_failures", health.consecutiveFailures))
			RecordChannelMuted(channel.Name())
		}
	} else {
		health.consecutiveFailures = 0
	}
	health.mu.Unlock()

	if err != nil {
		RecordFailure(channel.Name(), duration)
		slog.Warn("Alert delivery failed",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
		return
	}
	RecordSuccess(channel.Name(), duration)
	slog.Info("Alert delivered",
		slog.String("request_id", requestID),
		slog.String("channel", channel.Name()),
		slog.Duration("send_duration", duration))
}

func (s *service) GetChannelHealth() []ChannelHealthStatus {
	statuses := make([]ChannelHealthStatus, 0, len(s.channels))
	now := s.now()

	for _, ch := range s.channels {
		health := s.channelHealth[ch.Name()]
		health.mu.Lock()
		status := ChannelHealthStatus{
			Name:                ch.Name(),
			Enabled:             ch.IsEnabled(),
			ConsecutiveFailures: health.consecutiveFailures,
		}
		if now.Before(health.disabledUntil) {
			until := health.disabledUntil
			status.Muted = true
			status.DisabledUntil = &until
		}
		health.mu.Unlock()
		statuses = append(statuses, status)
	}

	return statuses
}

func (s *service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *service) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down notification service")
	s.shutdownCancel()

	if err := s.Drain(ctx); err != nil {
		slog.Warn("Notification service shutdown timeout")
		return err
	}
	slog.Info("Notification service shutdown complete")
	return nil
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID tags alerts sent with ctx so all channel logs share one ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
