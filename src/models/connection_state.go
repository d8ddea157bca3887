package models

import "time"

// ConnectionState is the lifecycle state of the push connection.
type ConnectionState string

const (
	StateConnecting      ConnectionState = "connecting"
	StateOpen            ConnectionState = "open"
	StateReconnecting    ConnectionState = "reconnecting"
	StateFallbackPolling ConnectionState = "fallback_polling"
	StateClosed          ConnectionState = "closed"
)

// FallbackReason says why the manager gave up on push.
type FallbackReason string

const (
	ReasonNone                  FallbackReason = ""
	ReasonReconnectExhausted    FallbackReason = "reconnect_exhausted"
	ReasonTooManyStreams        FallbackReason = "too_many_streams"
	ReasonInvalidSSEContentType FallbackReason = "invalid_sse_content_type"
	ReasonNonRetryableAPIError  FallbackReason = "non_retryable_api_error"
)

// -----------------------------------------------------------------------------

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to ConnectionState) bool {
	switch from {
	case StateConnecting:
		return to == StateOpen || to == StateReconnecting || to == StateFallbackPolling || to == StateClosed
	case StateOpen:
		return to == StateReconnecting || to == StateClosed
	case StateReconnecting:
		return to == StateOpen || to == StateFallbackPolling || to == StateClosed
	case StateFallbackPolling:
		return to == StateClosed
	case StateClosed:
		return false
	}
	return false
}

// -----------------------------------------------------------------------------

// MStateChange is published to observers on every transition.
type MStateChange struct {
	From    ConnectionState `json:"from"`
	To      ConnectionState `json:"to"`
	Reason  FallbackReason  `json:"reason,omitempty"`
	Attempt int             `json:"attempt,omitempty"`
	At      time.Time       `json:"at"`
}
