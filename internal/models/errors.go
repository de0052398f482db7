package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for a batch run. Check with errors.Is.
var (
	// ErrConfiguration aborts the whole run before any user is processed
	ErrConfiguration = errors.New("configuration error")
	// ErrNavigation means the login page stayed unreachable after backoff
	ErrNavigation = errors.New("navigation failed")
	// ErrCaptchaExhausted means the solver never produced a valid code
	ErrCaptchaExhausted = errors.New("captcha recognition exhausted")
	// ErrUIInteraction covers locator and timeout failures during fill/click/read
	ErrUIInteraction = errors.New("ui interaction failed")
	// ErrFlowExhausted surfaces as the user's final Failed outcome
	ErrFlowExhausted = errors.New("flow retries exhausted")
)

// StepError records which flow step failed and how it is classified
type StepError struct {
	Kind error
	Step string
	Err  error
}

// NewStepError wraps err as a failure of step, classified by kind
func NewStepError(kind error, step string, err error) *StepError {
	return &StepError{Kind: kind, Step: step, Err: err}
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return e.Step
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// FlowExhaustedError is returned once every attempt for a user failed.
// Its text is the last attempt's error so operators see the root cause.
type FlowExhaustedError struct {
	Attempts int
	Last     error
}

func (e *FlowExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s after %d attempts", ErrFlowExhausted, e.Attempts)
	}
	return e.Last.Error()
}

func (e *FlowExhaustedError) Unwrap() []error {
	return []error{ErrFlowExhausted, e.Last}
}

// ConfigError builds an ErrConfiguration with a formatted reason
func ConfigError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
