package models

import (
	"fmt"
	"time"
)

// MinTimeout is the floor enforced on the per-operation UI timeout
const MinTimeout = 3 * time.Second

// RetryPolicy bounds the three sanctioned retry loops and the UI operation timeout.
// It is process-wide and immutable after load.
type RetryPolicy struct {
	FlowRetries    int           `json:"flow_retries"`
	CaptchaRetries int           `json:"captcha_retries"`
	Timeout        time.Duration `json:"timeout"`
}

// DefaultRetryPolicy returns 2 flow attempts, 3 captcha tries and a 30s timeout
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		FlowRetries:    2,
		CaptchaRetries: 3,
		Timeout:        30 * time.Second,
	}
}

// Validate checks the policy invariants
func (p RetryPolicy) Validate() error {
	if p.FlowRetries < 1 {
		return fmt.Errorf("flow retries must be >= 1, got %d", p.FlowRetries)
	}
	if p.CaptchaRetries < 1 {
		return fmt.Errorf("captcha retries must be >= 1, got %d", p.CaptchaRetries)
	}
	if p.Timeout < MinTimeout {
		return fmt.Errorf("timeout must be >= %s, got %s", MinTimeout, p.Timeout)
	}
	return nil
}

// Attempt identifies one full flow execution for one user
type Attempt struct {
	Number int
	Of     int
}

func (a Attempt) String() string {
	return fmt.Sprintf("%d/%d", a.Number, a.Of)
}

// Last reports whether no attempts remain after this one
func (a Attempt) Last() bool {
	return a.Number >= a.Of
}
