// Package schema defines records shared between the sweep, the admin API and the CLI.
package schema

import "time"

// AccountFailure records why one account could not be cleared during a sweep.
type AccountFailure struct {
	AccountID int64  `json:"account_id"`
	Stage     string `json:"stage"` // "resolve" or "erase"
	Error     string `json:"error"`
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	RunID      string           `json:"run_id"`
	Enabled    bool             `json:"enabled"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Accounts   int              `json:"accounts"`
	Erased     int              `json:"erased"`
	Failures   []AccountFailure `json:"failures,omitempty"`
}
