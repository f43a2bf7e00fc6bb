package model

import "time"

// Status represents allocation record lifecycle status
type Status string

const (
	StatusCreating     Status = "creating"
	StatusCreated      Status = "created"
	StatusSubmitting   Status = "submitting"
	StatusSubmitted    Status = "submitted"
	StatusCreateFailed Status = "create failed"
	StatusSubmitFailed Status = "submit failed"
)

// IsFailed returns true for failed terminal statuses
func (s Status) IsFailed() bool {
	return s == StatusCreateFailed || s == StatusSubmitFailed
}

// IsTerminal returns true when no further forward transition is expected
func (s Status) IsTerminal() bool {
	return s == StatusSubmitted || s.IsFailed()
}

// AllocationRecord tracks a single allocated chain from placeholder to submitted result
type AllocationRecord struct {
	MatchID       string     `json:"matchId"`
	ChainID       string     `json:"chainId,omitempty"`
	AppID         string     `json:"appId,omitempty"`
	Player1       string     `json:"player1,omitempty"`
	Player2       string     `json:"player2,omitempty"`
	Status        Status     `json:"status"`
	SubmittedOpID string     `json:"submittedOpId,omitempty"`
	SubmittedAt   string     `json:"submittedAt,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

// Clone returns a detached copy
func (r *AllocationRecord) Clone() *AllocationRecord {
	if r == nil {
		return nil
	}
	ret := *r
	if r.CreatedAt != nil {
		createdAt := *r.CreatedAt
		ret.CreatedAt = &createdAt
	}
	return &ret
}

// Participants returns both participant identifiers
func (r *AllocationRecord) Participants() []string {
	return []string{r.Player1, r.Player2}
}

// Timestamp formats t as ISO-8601 UTC with millisecond precision
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
