package model

import "time"

// MatchResult is the submission payload recorded against an allocated chain
type MatchResult struct {
	MatchID         string `json:"matchId,omitempty"`
	Player1Username string `json:"player1Username"`
	Player2Username string `json:"player2Username"`
	WinnerUsername  string `json:"winnerUsername"`
	LoserUsername   string `json:"loserUsername"`
	DurationSeconds int    `json:"durationSeconds"`
	Timestamp       int64  `json:"timestamp"`
	Player1Score    int    `json:"player1Score"`
	Player2Score    int    `json:"player2Score"`
	MapName         string `json:"mapName,omitempty"`
	MatchType       string `json:"matchType,omitempty"`
	Afk             bool   `json:"afk"`
}

// PendingSubmitRequest represents a deferred submission held by the overflow queue
type PendingSubmitRequest struct {
	ID          string       `json:"id"`
	ChainID     string       `json:"chainId"`
	MatchResult *MatchResult `json:"matchResult"`
	Attempts    int          `json:"attempts"`
	LastError   string       `json:"lastError,omitempty"`
	NextTryAt   time.Time    `json:"nextTryAt"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// SubmitReceipt is returned to submit callers
type SubmitReceipt struct {
	ChainID string `json:"chainId"`
	MatchID string `json:"matchId,omitempty"`
	OpID    string `json:"opId,omitempty"`
	Queued  bool   `json:"queued,omitempty"`
	Message string `json:"message,omitempty"`
}

// OpenRequest asks for a chain for two participants
type OpenRequest struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
}

// SubmitRequest carries a result for an allocated chain
type SubmitRequest struct {
	ChainID     string       `json:"chainId"`
	MatchResult *MatchResult `json:"matchResult"`
}
