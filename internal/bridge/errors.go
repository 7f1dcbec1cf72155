package bridge

import "errors"

// Sentinel errors for bridge operations.
var (
	// ErrBrokerUnreachable indicates the broker could not be reached or
	// answered with a server error. Retryable.
	ErrBrokerUnreachable = errors.New("bridge: broker unreachable")

	// ErrBrokerAuthFailed indicates the broker rejected the management
	// API token. Not retryable; retrying with the same credentials
	// cannot succeed.
	ErrBrokerAuthFailed = errors.New("bridge: broker authentication failed")

	// ErrPublishFailed indicates the direct broker publish did not
	// complete.
	ErrPublishFailed = errors.New("bridge: publish failed")
)
