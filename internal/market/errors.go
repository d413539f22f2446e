package market

import "errors"

var (
	// ErrIllegalTransition: business-rule violation, never retried.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrStaleState: the order's current status no longer matches what the
	// caller observed; re-fetch and re-evaluate, do not retry blindly.
	ErrStaleState = errors.New("stale order state")

	// ErrValidation: malformed input, rejected before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrTopicStale: the sync hub exhausted its retry ceiling for a topic;
	// a manual refresh is required.
	ErrTopicStale = errors.New("topic stale, refresh required")

	ErrNotFound = errors.New("not found")
)
