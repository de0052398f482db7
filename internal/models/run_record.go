package models

import "time"

// RunRecord is the persisted outcome of one user within one batch run
type RunRecord struct {
	ID         string      `json:"id"`
	RunID      string      `json:"run_id" badgerhold:"index"`
	Account    string      `json:"account"` // masked
	Kind       OutcomeKind `json:"kind" badgerhold:"index"`
	Message    string      `json:"message,omitempty"`
	Attempts   int         `json:"attempts"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Duration of the user's flow
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
