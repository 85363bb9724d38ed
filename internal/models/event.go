package models

import "time"

// EscrowEvent is the immutable audit record emitted by every successful
// escrow operation. Rejected operations emit nothing.
type EscrowEvent struct {
	ID              string           `json:"id" db:"id"`
	ContractID      string           `json:"contract_id" db:"contract_id"`
	Operation       string           `json:"operation" db:"operation"`
	Caller          string           `json:"caller" db:"caller"`
	MilestoneIndex  *uint64          `json:"milestone_index,omitempty" db:"milestone_index"`
	ContractStatus  ContractStatus   `json:"contract_status" db:"contract_status"`
	MilestoneStatus *MilestoneStatus `json:"milestone_status,omitempty" db:"milestone_status"`
	Details         string           `json:"details,omitempty" db:"details"`
	Timestamp       time.Time        `json:"timestamp" db:"timestamp"`
}
