package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not_found")
	ErrInvalidInput      = errors.New("invalid_input")
	ErrConflict          = errors.New("conflict")
	ErrNotConnected      = errors.New("not_connected")
	ErrUnsupported       = errors.New("unsupported")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrInvalidState      = errors.New("invalid_state")
	ErrForbidden         = errors.New("forbidden")
)

// ErrorClass decides retry eligibility of a remote failure.
type ErrorClass string

const (
	ErrorTransient ErrorClass = "transient"
	ErrorPermanent ErrorClass = "permanent"
)

// Reason codes shared by the provider error types.
const (
	ReasonNotConnected   = "not_connected"
	ReasonAuthRevoked    = "auth_revoked"
	ReasonRateLimited    = "rate_limited"
	ReasonTimeout        = "timeout"
	ReasonUpstream       = "upstream_error"
	ReasonInvalidContent = "invalid_content"
	ReasonRejected       = "rejected"
	ReasonUnsupported    = "unsupported"
	ReasonBadResponse    = "bad_response"
)

type LinkStage string

const (
	StageInitiated        LinkStage = "initiated"
	StageCallbackReceived LinkStage = "callback-received"
	StageExchanged        LinkStage = "exchanged"
	StageProfileFetched   LinkStage = "profile-fetched"
	StagePersisted        LinkStage = "persisted"
)

// LinkError aborts a linking attempt. The user has to start over.
type LinkError struct {
	Stage LinkStage
	Code  string
	Cause error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link failed at %s (%s): %v", e.Stage, e.Code, e.Cause)
}

func (e *LinkError) Unwrap() error { return e.Cause }

// NewLinkError builds a LinkError with a redirect-safe code.
func NewLinkError(stage LinkStage, code string, cause error) *LinkError {
	return &LinkError{Stage: stage, Code: code, Cause: cause}
}

// PublishError is returned by a provider's Publish.
type PublishError struct {
	Class  ErrorClass
	Reason string
	Detail string
	Err    error
}

func (e *PublishError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("publish %s: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("publish %s: %s: %s", e.Class, e.Reason, e.Detail)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Transient reports whether a retry may succeed.
func (e *PublishError) Transient() bool { return e.Class == ErrorTransient }

// MetricsError is returned by a provider's GetMetrics. It never aborts a batch.
type MetricsError struct {
	Class  ErrorClass
	Reason string
	Detail string
	Err    error
}

func (e *MetricsError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("metrics %s: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("metrics %s: %s: %s", e.Class, e.Reason, e.Detail)
}

func (e *MetricsError) Unwrap() error { return e.Err }

// AdError is returned by a provider's CreateAd and surfaced to the caller.
type AdError struct {
	Class  ErrorClass
	Reason string
	Detail string
	Err    error
}

func (e *AdError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ad %s: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("ad %s: %s: %s", e.Class, e.Reason, e.Detail)
}

func (e *AdError) Unwrap() error { return e.Err }

// RemoteFailure is the provider-neutral shape the clients produce before it is
// turned into a PublishError, MetricsError or AdError.
type RemoteFailure struct {
	Class  ErrorClass
	Reason string
	Detail string
	Err    error
}

func (f *RemoteFailure) Error() string {
	return fmt.Sprintf("%s: %s: %s", f.Class, f.Reason, f.Detail)
}

func (f *RemoteFailure) Unwrap() error { return f.Err }

// AsPublishError converts any error into a PublishError, defaulting to transient.
func AsPublishError(err error) *PublishError {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe
	}
	var rf *RemoteFailure
	if errors.As(err, &rf) {
		return &PublishError{Class: rf.Class, Reason: rf.Reason, Detail: rf.Detail, Err: err}
	}
	return &PublishError{Class: ErrorTransient, Reason: ReasonUpstream, Detail: err.Error(), Err: err}
}

// AsMetricsError converts any error into a MetricsError, defaulting to transient.
func AsMetricsError(err error) *MetricsError {
	var me *MetricsError
	if errors.As(err, &me) {
		return me
	}
	var rf *RemoteFailure
	if errors.As(err, &rf) {
		return &MetricsError{Class: rf.Class, Reason: rf.Reason, Detail: rf.Detail, Err: err}
	}
	return &MetricsError{Class: ErrorTransient, Reason: ReasonUpstream, Detail: err.Error(), Err: err}
}

// AsAdError converts any error into an AdError. ErrUnsupported is kept as is.
func AsAdError(err error) error {
	if errors.Is(err, ErrUnsupported) {
		return err
	}
	var ae *AdError
	if errors.As(err, &ae) {
		return ae
	}
	var rf *RemoteFailure
	if errors.As(err, &rf) {
		return &AdError{Class: rf.Class, Reason: rf.Reason, Detail: rf.Detail, Err: err}
	}
	return &AdError{Class: ErrorPermanent, Reason: ReasonUpstream, Detail: err.Error(), Err: err}
}

// IsAuthRevoked reports whether a remote failure means the credential is no longer valid.
func IsAuthRevoked(err error) bool {
	var rf *RemoteFailure
	if errors.As(err, &rf) {
		return rf.Reason == ReasonAuthRevoked
	}
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Reason == ReasonAuthRevoked
	}
	var me *MetricsError
	if errors.As(err, &me) {
		return me.Reason == ReasonAuthRevoked
	}
	var ae *AdError
	if errors.As(err, &ae) {
		return ae.Reason == ReasonAuthRevoked
	}
	return false
}
