package diagnostics

import "time"

// Status indicates whether a single check passed.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// Item is one check result with an optional hint.
type Item struct {
	ID      string `json:"id"               doc:"Stable check identifier"`
	Name    string `json:"name"             doc:"Human readable check name"`
	Status  Status `json:"status"           doc:"Check outcome" enum:"pass,fail"`
	Message string `json:"message"          doc:"Check result detail"`
	Hint    string `json:"hint,omitempty"   doc:"Suggested remedy for a failing check"`
}

// Report aggregates every check.
type Report struct {
	GeneratedAt time.Time `json:"generated_at" doc:"Report creation time (UTC)"`
	HasFailures bool      `json:"has_failures" doc:"True when at least one check failed"`
	Items       []Item    `json:"items"`
}
