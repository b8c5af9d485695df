package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for alert delivery
var (
	notificationDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_notification_dispatched_total",
			Help: "Total number of alerts dispatched to a channel",
		},
		[]string{"channel"},
	)

	notificationSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_notification_sent_total",
			Help: "Total number of alerts sent",
		},
		[]string{"channel", "status"}, // status: success|failure
	)

	notificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alert_notification_duration_seconds",
			Help:    "Alert send duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"channel"},
	)

	channelMutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_channel_muted_total",
			Help: "Total number of times a channel was muted after consecutive failures",
		},
		[]string{"channel"},
	)

	notificationDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_notification_dropped_total",
			Help: "Total number of dropped alerts",
		},
		[]string{"channel", "reason"}, // reason: pool_full|muted
	)

	activeNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_notification_active_goroutines",
			Help: "Number of active alert delivery goroutines",
		},
	)

	channelsEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_channels_enabled",
			Help: "Number of enabled alert channels",
		},
	)
)

// RecordDispatch records that an alert is about to be sent to channel.
func RecordDispatch(channel string) {
	notificationDispatchedTotal.WithLabelValues(channel).Inc()
}

// RecordSuccess records a successful send and its duration.
func RecordSuccess(channel string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(channel, "success").Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordFailure records a failed send and its duration.
func RecordFailure(channel string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(channel, "failure").Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordDropped records a dropped alert (pool_full, muted).
func RecordDropped(channel string, reason string) {
	notificationDroppedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordChannelMuted records a channel being muted.
func RecordChannelMuted(channel string) {
	channelMutedTotal.WithLabelValues(channel).Inc()
}

func incrementActiveGoroutines() { activeNotifications.Inc() }
func decrementActiveGoroutines() { activeNotifications.Dec() }

// SetChannelsEnabled sets the number of enabled channels.
func SetChannelsEnabled(count float64) {
	channelsEnabled.Set(count)
}
