package models

import "time"

// TransactionStatus tracks a submitted ledger transaction. Pending is not a
// failure: a transaction may confirm after the local polling budget expires.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionConfirmed TransactionStatus = "confirmed"
	TransactionRejected  TransactionStatus = "rejected"
)

// TransactionRecord is the local book-keeping row for one submission.
// Contract and milestone projections only change once the record confirms.
type TransactionRecord struct {
	ID             string            `json:"id" db:"id"`
	TxID           string            `json:"tx_id" db:"tx_id"`
	ContractID     string            `json:"contract_id" db:"contract_id"`
	Operation      string            `json:"operation" db:"operation"`
	MilestoneIndex *uint64           `json:"milestone_index,omitempty" db:"milestone_index"`
	Status         TransactionStatus `json:"status" db:"status"`
	ConfirmedRound uint64            `json:"confirmed_round,omitempty" db:"confirmed_round"`
	Reason         string            `json:"reason,omitempty" db:"reason"`
	SubmittedAt    time.Time         `json:"submitted_at" db:"submitted_at"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty" db:"resolved_at"`
}
