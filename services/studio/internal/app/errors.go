package app

import "errors"

var (
	// ErrEmptyTopic rejects a generation request before any network call.
	ErrEmptyTopic = errors.New("topic is required")
	// ErrUnknownChannel indicates the request named no registered persona.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrInvalidMood indicates a mood label outside the enumerated set.
	ErrInvalidMood = errors.New("invalid mood")
	// ErrInvalidDuration indicates a duration outside the enumerated
	// buckets.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrIndexOutOfRange indicates a scene or thumbnail-variant index that
	// does not exist on the package.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrSlotBusy indicates a generation is already in flight for the
	// exact same asset slot.
	ErrSlotBusy = errors.New("generation already in flight for this slot")
	// ErrCredentialRequired indicates video generation was requested
	// without a stored paid-tier credential; the client should prompt for
	// credential selection.
	ErrCredentialRequired = errors.New("paid API credential required")
	// ErrSaveFailed indicates the package was generated but could not be
	// persisted. The generated content is still returned so the user can
	// retry the save or export locally.
	ErrSaveFailed = errors.New("package generated but save failed")
)
