package notify

import "errors"

// Sentinel errors for notify use case operations.
var (
	// ErrChannelDisabled indicates that Send() was called on a disabled channel.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrEmptyMessage indicates that the alert text was blank.
	ErrEmptyMessage = errors.New("alert message is empty")

	// ErrNotificationDropped indicates that an alert was dropped because the
	// worker pool stayed full or the channel was muted.
	ErrNotificationDropped = errors.New("notification dropped")
)
