package ai

import "errors"

var (
	// ErrEmptyInput indicates blank input rejected before any network call.
	ErrEmptyInput = errors.New("input text is empty")
	// ErrEmptyResponse indicates the provider returned no usable text.
	ErrEmptyResponse = errors.New("empty response from provider")
	// ErrParse indicates a schema-constrained response was not valid JSON
	// after cleanup.
	ErrParse = errors.New("response is not valid JSON")
	// ErrNoImage indicates a response with no inline image payload.
	ErrNoImage = errors.New("no image in response")
	// ErrNoAudio indicates a response with no inline audio payload.
	ErrNoAudio = errors.New("no audio in response")
	// ErrCredentialNotFound indicates the paid-tier credential was rejected
	// by the video backend; the caller should re-prompt for credentials.
	ErrCredentialNotFound = errors.New("video credential not found")
)
