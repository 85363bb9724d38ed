package models

import "time"

// MilestoneStatus is the lifecycle state of a milestone. Status only
// advances forward through pending -> completed -> verified -> paid.
type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneCompleted MilestoneStatus = "completed"
	MilestoneVerified  MilestoneStatus = "verified"
	MilestonePaid      MilestoneStatus = "paid"
)

// milestoneRank orders statuses for forward-only transition checks
var milestoneRank = map[MilestoneStatus]int{
	MilestonePending:   0,
	MilestoneCompleted: 1,
	MilestoneVerified:  2,
	MilestonePaid:      3,
}

// CanAdvanceTo reports whether moving from s to next is a single legal
// forward step. Skipping and regression are both illegal.
func (s MilestoneStatus) CanAdvanceTo(next MilestoneStatus) bool {
	from, ok := milestoneRank[s]
	if !ok {
		return false
	}
	to, ok := milestoneRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// Milestone is a discrete, independently verifiable and payable unit of
// project work, child of exactly one contract.
type Milestone struct {
	ContractID  string          `json:"contract_id" db:"contract_id"`
	Index       uint64          `json:"index" db:"milestone_index"`
	Amount      uint64          `json:"amount" db:"amount"`
	DueDate     int64           `json:"due_date" db:"due_date"`
	Status      MilestoneStatus `json:"status" db:"status"`
	ProofHash   string          `json:"proof_hash,omitempty" db:"proof_hash"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	VerifiedAt  *time.Time      `json:"verified_at,omitempty" db:"verified_at"`
	PaidAt      *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
}
