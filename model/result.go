package model

// Result is the structured outcome returned to external callers
type Result struct {
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
	ChainID string    `json:"chainId,omitempty"`
	MatchID string    `json:"matchId,omitempty"`
	AppID   string    `json:"appId,omitempty"`
	OpID    string    `json:"opId,omitempty"`
	Queued  bool      `json:"queued,omitempty"`
	Message string    `json:"message,omitempty"`
}

// NewErrorResult builds a failed result carrying identifying context
func NewErrorResult(err error, chainID, matchID string) *Result {
	ret := &Result{Success: err == nil, ChainID: chainID, MatchID: matchID}
	if err != nil {
		ret.Error = err.Error()
		ret.Kind = Kind(err)
	}
	return ret
}

// RecordResult builds a successful result from an allocation record
func RecordResult(record *AllocationRecord) *Result {
	if record == nil {
		return &Result{Success: true}
	}
	return &Result{Success: true, ChainID: record.ChainID, MatchID: record.MatchID, AppID: record.AppID, OpID: record.SubmittedOpID}
}

// ReceiptResult builds a successful result from a submit receipt
func ReceiptResult(receipt *SubmitReceipt) *Result {
	if receipt == nil {
		return &Result{Success: true}
	}
	return &Result{Success: true, ChainID: receipt.ChainID, MatchID: receipt.MatchID, OpID: receipt.OpID, Queued: receipt.Queued, Message: receipt.Message}
}
