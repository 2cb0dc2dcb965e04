// Package apperrors defines the enactment agent's error taxonomy.
//
// Four sentinel kinds cover the whole agent: TransportError (request/enact
// HTTP failures), StructuralError (malformed inventory payloads, treated as
// a TransportError for the affected class), PredicateError (telemetry
// oracle failures, treated as "not ready"), and FatalConfigError (aborts
// before the first cycle).
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrTransport   = errors.New("admin service transport error")
	ErrStructural  = errors.New("malformed scheduled-change payload")
	ErrPredicate   = errors.New("telemetry oracle failure")
	ErrFatalConfig = errors.New("fatal configuration error")
)

// AgentError wraps one of the sentinel kinds with the operation and any
// identifying context (typically an endpoint or scheduled-change id).
type AgentError struct {
	Op  string
	ID  string
	Err error
}

func (e *AgentError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

func NewTransportError(op, id string, err error) *AgentError {
	return &AgentError{Op: op, ID: id, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
}

func NewStructuralError(op, id string, err error) *AgentError {
	return &AgentError{Op: op, ID: id, Err: fmt.Errorf("%w: %v", ErrStructural, err)}
}

func NewPredicateError(op, id string, err error) *AgentError {
	return &AgentError{Op: op, ID: id, Err: fmt.Errorf("%w: %v", ErrPredicate, err)}
}

func NewFatalConfigError(op string, err error) *AgentError {
	return &AgentError{Op: op, Err: fmt.Errorf("%w: %v", ErrFatalConfig, err)}
}

// IsTransport reports whether err is a TransportError, including
// StructuralError which is treated as one per the agent's error policy.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrStructural)
}

func IsPredicate(err error) bool {
	return errors.Is(err, ErrPredicate)
}

func IsFatalConfig(err error) bool {
	return errors.Is(err, ErrFatalConfig)
}
