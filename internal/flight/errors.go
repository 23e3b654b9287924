package flight

import (
	"errors"
	"fmt"
)

var (
	ErrTransport        = errors.New("transport error")
	ErrParse            = errors.New("parse error")
	ErrValidation       = errors.New("validation error")
	ErrExhaustedRetries = errors.New("retries exhausted")
	ErrConfiguration    = errors.New("configuration error")
)

// Validation reasons.
const (
	ReasonMissingField     = "missing_required_field"
	ReasonInvalidPrice     = "invalid_price"
	ReasonInvalidTimestamp = "invalid_timestamp"
)

// TransportError is a failed network call or a non-2xx response. Status is 0
// when no response was received.
type TransportError struct {
	Provider string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: http %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ParseError marks one malformed raw entry. Siblings keep parsing.
type ParseError struct {
	Provider string
	Entry    int
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: entry %d: %v", e.Provider, e.Entry, e.Err)
}

func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

type ValidationError struct {
	Reason string
	Field  string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Field
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConfigurationError disables one provider for the run.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
