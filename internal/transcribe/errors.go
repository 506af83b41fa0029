package transcribe

import (
	"errors"
	"fmt"
)

// Kind classifies a failed consultation run.
type Kind string

const (
	KindCredential    Kind = "credential_error"
	KindUpload        Kind = "upload_error"
	KindPollTimeout   Kind = "poll_timeout_error"
	KindGeneration    Kind = "generation_error"
	KindLocalResource Kind = "local_resource_error"
)

var (
	ErrMissingCredential = errors.New("missing API credential")
	ErrEmptyAudio        = errors.New("audio recording is empty")
	ErrEmptyResponse     = errors.New("engine returned no text")
	errStillProcessing   = errors.New("asset still processing")
)

// Error is the single error type returned by Client.Process.
type Error struct {
	Kind  Kind
	Phase Phase // phase the run was in when it failed
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s during %s: %v", e.Kind, e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// APIError is a non-2xx response from the remote engine.
type APIError struct {
	StatusCode int
	Status     string // provider status string, e.g. "INVALID_ARGUMENT"
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("API error (status %d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}
