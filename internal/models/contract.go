package models

import "time"

// ContractStatus is the lifecycle state of a procurement contract
type ContractStatus string

const (
	ContractActive     ContractStatus = "active"
	ContractPaused     ContractStatus = "paused"
	ContractCompleted  ContractStatus = "completed"
	ContractTerminated ContractStatus = "terminated"
)

// Contract represents one awarded tender under escrow. The escrow account
// owns the locked funds; government and verifier hold administrative
// capabilities over the contract, not ownership.
type Contract struct {
	ID                string         `json:"id" db:"id"`
	TenderID          string         `json:"tender_id" db:"tender_id"`
	AppID             uint64         `json:"app_id" db:"app_id"`
	EscrowAddress     string         `json:"escrow_address" db:"escrow_address"`
	GovernmentAddress string         `json:"government_address" db:"government_address"`
	ContractorAddress string         `json:"contractor_address" db:"contractor_address"`
	VerifierAddress   string         `json:"verifier_address" db:"verifier_address"`
	TotalAmount       uint64         `json:"total_amount" db:"total_amount"`
	Status            ContractStatus `json:"status" db:"status"`
	VerifierUpdatedAt *time.Time     `json:"verifier_updated_at,omitempty" db:"verifier_updated_at"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether no further mutating operation is legal
func (s ContractStatus) Terminal() bool {
	return s == ContractCompleted || s == ContractTerminated
}
