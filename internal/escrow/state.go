package escrow

import (
	"github.com/fairlens/escrow-engine/internal/models"
)

// ContractState is the authoritative state of one contract: the contract
// record, its milestones keyed by index, and the escrow account balance.
type ContractState struct {
	Contract      models.Contract
	Milestones    map[uint64]*models.Milestone
	EscrowBalance uint64
}

// NewContractState initializes state for a freshly deployed contract
func NewContractState(contract models.Contract, funding uint64) *ContractState {
	contract.Status = models.ContractActive
	return &ContractState{
		Contract:      contract,
		Milestones:    make(map[uint64]*models.Milestone),
		EscrowBalance: funding,
	}
}

// Clone returns a deep copy so Apply can stay pure: rejected operations
// must leave the caller's state untouched.
func (s *ContractState) Clone() *ContractState {
	clone := &ContractState{
		Contract:      s.Contract,
		Milestones:    make(map[uint64]*models.Milestone, len(s.Milestones)),
		EscrowBalance: s.EscrowBalance,
	}
	if s.Contract.VerifierUpdatedAt != nil {
		t := *s.Contract.VerifierUpdatedAt
		clone.Contract.VerifierUpdatedAt = &t
	}
	for idx, m := range s.Milestones {
		copied := *m
		if m.CompletedAt != nil {
			t := *m.CompletedAt
			copied.CompletedAt = &t
		}
		if m.VerifiedAt != nil {
			t := *m.VerifiedAt
			copied.VerifiedAt = &t
		}
		if m.PaidAt != nil {
			t := *m.PaidAt
			copied.PaidAt = &t
		}
		clone.Milestones[idx] = &copied
	}
	return clone
}

// AllocatedAmount sums the amounts of every milestone regardless of status
func (s *ContractState) AllocatedAmount() uint64 {
	var total uint64
	for _, m := range s.Milestones {
		total += m.Amount
	}
	return total
}

// PaidAmount sums the amounts of paid milestones
func (s *ContractState) PaidAmount() uint64 {
	var total uint64
	for _, m := range s.Milestones {
		if m.Status == models.MilestonePaid {
			total += m.Amount
		}
	}
	return total
}

// hasUnpaidVerified reports whether any milestone is verified but not yet
// paid; termination is blocked while one exists.
func (s *ContractState) hasUnpaidVerified() bool {
	for _, m := range s.Milestones {
		if m.Status == models.MilestoneVerified {
			return true
		}
	}
	return false
}

// fullyPaid reports whether the paid-out total covers the whole contract
// budget, which completes the contract. Milestone amounts are positive, so
// this can only hold once every milestone is paid and the budget is fully
// allocated.
func (s *ContractState) fullyPaid() bool {
	return len(s.Milestones) > 0 && s.PaidAmount() == s.Contract.TotalAmount
}
