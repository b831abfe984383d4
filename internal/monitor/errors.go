package monitor

import "fmt"

// The monitor distinguishes caller mistakes (configuration, state,
// validation) from upstream flakiness. Configuration, state and validation
// errors surface synchronously from Connect/Subscribe; network and callback
// failures are logged and absorbed so a long-running monitor never takes the
// host process down with it.

// ConfigurationError reports missing or invalid construction inputs, like an
// absent API key or chain context.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// StateError reports an operation attempted in the wrong connection state.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error: %s", e.Reason)
}

// ValidationError reports invalid subscription parameters.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// NetworkError wraps a transient fetch or transport failure. Always
// recoverable by the next poll tick or reconnection attempt.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// CallbackError wraps a failure raised by a subscriber callback. Caught and
// logged during dispatch; never propagated and never disables the
// subscription.
type CallbackError struct {
	SubscriptionKey string
	Err             error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback error for subscription %s: %v", e.SubscriptionKey, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }
