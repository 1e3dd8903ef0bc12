package parking

import "errors"

var (
	// ErrNotFound covers unknown facilities, slots and holds.
	ErrNotFound = errors.New("not found")
	// ErrSlotUnavailable means the slot was not free when a hold was requested.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrInvalidArgument is a caller bug: bad slot number, ttl or id. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransientUnavailable is returned by event sinks whose backend cannot be reached.
	ErrTransientUnavailable = errors.New("transient unavailable")
	ErrAlreadyExists        = errors.New("already exists")
	// ErrSubscriberOverflow ends a subscription whose queue filled up under the disconnect policy.
	ErrSubscriberOverflow = errors.New("subscriber queue overflow")
)
