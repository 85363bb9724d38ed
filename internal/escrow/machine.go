package escrow

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fairlens/escrow-engine/internal/models"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// MachineConfig tunes deployment policy knobs of the state machine
type MachineConfig struct {
	// VerifierTimelock is the minimum delay between two verifier rotations.
	// The first rotation after deployment is always allowed.
	VerifierTimelock time.Duration
	// AnyPartyRelease allows any party to trigger releasePayment on a
	// verified milestone. Default policy restricts it to the government.
	AnyPartyRelease bool
}

// DefaultMachineConfig mirrors the on-chain defaults (24h rotation timelock,
// government-only release).
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{VerifierTimelock: 24 * time.Hour}
}

// Machine defines the legal transitions and their preconditions for a
// contract and its milestones. Apply is a pure function: it either returns
// a new state plus the audit event, or an error and no mutation.
type Machine struct {
	config MachineConfig
}

// NewMachine creates a state machine with the given policy configuration
func NewMachine(config MachineConfig) *Machine {
	return &Machine{config: config}
}

// Apply evaluates one operation against state. On success it returns the
// successor state and the emitted event; on rejection it returns a typed
// error and the input state is left untouched.
func (m *Machine) Apply(state *ContractState, op Operation, caller string, now time.Time) (*ContractState, *models.EscrowEvent, error) {
	if state == nil {
		return nil, nil, utils.NewAppError(utils.ErrCodeNotFound, "Contract does not exist")
	}

	next := state.Clone()

	var (
		milestoneStatus *models.MilestoneStatus
		details         string
		err             error
	)

	switch op.Kind {
	case OpAddMilestone:
		err = m.addMilestone(next, op, caller)
		if err == nil {
			milestoneStatus = statusRef(models.MilestonePending)
			details = fmt.Sprintf("amount=%d due=%d", op.Amount, op.DueDate)
		}
	case OpSubmitProof:
		err = m.submitProof(next, op, caller, now)
		if err == nil {
			milestoneStatus = statusRef(models.MilestoneCompleted)
			details = "proof=" + op.ProofHash
		}
	case OpVerifyMilestone:
		err = m.verifyMilestone(next, op, caller, now)
		if err == nil {
			milestoneStatus = statusRef(models.MilestoneVerified)
		}
	case OpReleasePayment:
		err = m.releasePayment(next, op, caller, now)
		if err == nil {
			milestoneStatus = statusRef(models.MilestonePaid)
			details = fmt.Sprintf("amount=%d recipient=%s", next.Milestones[op.Index].Amount, next.Contract.ContractorAddress)
		}
	case OpEmergencyPause:
		err = m.setPaused(next, caller, true)
	case OpResumeContract:
		err = m.setPaused(next, caller, false)
	case OpUpdateVerifier:
		err = m.updateVerifier(next, op, caller, now)
		if err == nil {
			details = "verifier=" + op.NewVerifier
		}
	case OpTerminateContract:
		err = m.terminate(next, caller)
	default:
		err = utils.NewAppError(utils.ErrCodeInvalidArgument, "Unknown operation",
			fmt.Sprintf("kind %d", op.Kind))
	}

	if err != nil {
		var idx *uint64
		if op.HasMilestone() {
			i := op.Index
			idx = &i
		}
		if appErr, ok := err.(*utils.AppError); ok {
			appErr.WithContext(op.Kind.Name(), state.Contract.ID, idx)
		}
		return nil, nil, err
	}

	next.Contract.UpdatedAt = now

	event := &models.EscrowEvent{
		ID:              uuid.NewString(),
		ContractID:      next.Contract.ID,
		Operation:       op.Kind.Name(),
		Caller:          caller,
		ContractStatus:  next.Contract.Status,
		MilestoneStatus: milestoneStatus,
		Details:         details,
		Timestamp:       now,
	}
	if op.HasMilestone() {
		idx := op.Index
		event.MilestoneIndex = &idx
	}

	return next, event, nil
}

// addMilestone: government only, contract active and not paused, unique
// index, positive amount within the remaining budget.
func (m *Machine) addMilestone(state *ContractState, op Operation, caller string) error {
	if caller != state.Contract.GovernmentAddress {
		return utils.NewAppError(utils.ErrCodeUnauthorized, "Only the government party can add milestones")
	}
	if state.Contract.Status != models.ContractActive {
		return utils.NewAppError(utils.ErrCodeInvalidState, "Contract is not active",
			string(state.Contract.Status))
	}
	if op.Amount == 0 {
		return utils.NewAppError(utils.ErrCodeInvalidArgument, "Milestone amount must be positive")
	}
	if _, exists := state.Milestones[op.Index]; exists {
		return utils.NewAppError(utils.ErrCodeDuplicateIndex, "Milestone index already exists",
			fmt.Sprintf("index %d", op.Index))
	}
	if state.AllocatedAmount()+op.Amount > state.Contract.TotalAmount {
		return utils.NewAppError(utils.ErrCodeBudgetExceeded, "Cumulative milestone amount exceeds contract budget",
			fmt.Sprintf("allocated %d + %d > total %d", state.AllocatedAmount(), op.Amount, state.Contract.TotalAmount))
	}

	state.Milestones[op.Index] = &models.Milestone{
		ContractID: state.Contract.ID,
		Index:      op.Index,
		Amount:     op.Amount,
		DueDate:    op.DueDate,
		Status:     models.MilestonePending,
	}
	return nil
}

// submitProof: contractor only, milestone pending. Evidence submission stays
// allowed while the contract is paused; only fund movement is frozen.
func (m *Machine) submitProof(state *ContractState, op Operation, caller string, now time.Time) error {
	if state.Contract.Status.Terminal() {
		return utils.NewAppError(utils.ErrCodeInvalidState, "Contract is closed",
			string(state.Contract.Status))
	}
	milestone, ok := state.Milestones[op.Index]
	if !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Milestone does not exist",
			fmt.Sprintf("index %d", op.Index))
	}
	if caller != state.Contract.ContractorAddress {
		return utils.NewAppError(utils.ErrCodeUnauthorized, "Only the contractor can submit proof")
	}
	if !milestone.Status.CanAdvanceTo(models.MilestoneCompleted) {
		return utils.NewAppError(utils.ErrCodeInvalidTransition, "Milestone is not pending",
			string(milestone.Status))
	}

	milestone.Status = models.MilestoneCompleted
	milestone.ProofHash = op.ProofHash
	milestone.CompletedAt = &now
	return nil
}

// verifyMilestone: verifier only, milestone completed, attestation signature
// must validate against the verifier's key. Allowed while paused.
func (m *Machine) verifyMilestone(state *ContractState, op Operation, caller string, now time.Time) error {
	if state.Contract.Status.Terminal() {
		return utils.NewAppError(utils.ErrCodeInvalidState, "Contract is closed",
			string(state.Contract.Status))
	}
	milestone, ok := state.Milestones[op.Index]
	if !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Milestone does not exist",
			fmt.Sprintf("index %d", op.Index))
	}
	if caller != state.Contract.VerifierAddress {
		return utils.NewAppError(utils.ErrCodeUnauthorized, "Only the verifier can verify milestones")
	}
	if !milestone.Status.CanAdvanceTo(models.MilestoneVerified) {
		return utils.NewAppError(utils.ErrCodeInvalidTransition, "Milestone has no verifiable proof",
			string(milestone.Status))
	}

	if len(op.Signature) != ed25519.SignatureSize {
		return utils.NewAppError(utils.ErrCodeSignatureInvalid, "Attestation signature must be 64 bytes",
			fmt.Sprintf("got %d", len(op.Signature)))
	}
	verifierKey, err := utils.DecodePublicKey(state.Contract.VerifierAddress)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeSignatureInvalid, "Verifier address does not encode a valid key", err.Error())
	}
	if !ed25519.Verify(verifierKey, op.Message, op.Signature) {
		return utils.NewAppError(utils.ErrCodeSignatureInvalid, "Attestation signature does not validate")
	}

	milestone.Status = models.MilestoneVerified
	milestone.VerifiedAt = &now
	if op.ProofHash != "" {
		milestone.ProofHash = op.ProofHash
	}
	return nil
}

// releasePayment: government only (unless AnyPartyRelease), contract not
// paused, milestone verified, escrow balance sufficient. Funds release
// exactly once per milestone.
func (m *Machine) releasePayment(state *ContractState, op Operation, caller string, now time.Time) error {
	if state.Contract.Status.Terminal() {
		return utils.NewAppError(utils.ErrCodeInvalidState, "Contract is closed",
			string(state.Contract.Status))
	}
	if state.Contract.Status == models.ContractPaused {
		return utils.NewAppError(utils.ErrCodeInvalidState, "Contract is paused")
	}
	milestone, ok := state.Milestones[op.Index]
	if !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Milestone does not exist",
			fmt.Sprintf("index %d", op.Index))
	}
	if !m.config.AnyPartyRelease && caller != state.Contract.GovernmentAddress {
		return utils.NewAppError(utils.ErrCodeUnauthorized, "Only the government party can release payment")
	}
	if !milestone.Status.CanAdvanceTo(models.MilestonePaid) {
		return utils.NewAppError(utils.ErrCodeInvalidTransition, "Milestone is not verified",
			string(milestone.Status))
	}
	// A transfer must never be attempted against an underfunded escrow.
	if state.EscrowBalance < milestone.Amount {
		return utils.NewAppError(utils.ErrCodeInsufficientEscrow, "Escrow balance below milestone amount",
			fmt.Sprintf("balance %d < amount %d", state.EscrowBalance, milestone.Amount))
	}

	state.EscrowBalance -= milestone.Amount
	milestone.Status = models.MilestonePaid
	milestone.PaidAt = &now

	if state.fullyPaid() {
		state.Contract.Status = models.ContractCompleted
	}
	return nil
}

// setPaused toggles active<->paused; disallowed once the contract is closed
func (m *Machine) setPaused(state *ContractState, caller string, paused bool) error {
	if caller != state.Contract.GovernmentAddress {
		return utils.NewAppError(utils.ErrCodeUnauthorized, "Only the government party can pause or resume")
	}
	if state.Contract.Status.Terminal() {
		return utils.NewAppError(utils.ErrCodeInvalidState, "Contract is closed",
			string(state.Contract.Status))
	}
	if paused {
		if state.Contract.Status != models.ContractActive {
			return utils.NewAppError(utils.ErrCodeInvalidState, "Contract is not active",
				string(state.Contract.Status))
		}
		state.Contract.Status = models.ContractPaused
	} else {
		if state.Contract.Status != models.ContractPaused {
			return utils.NewAppError(utils.ErrCodeInvalidState, "Contract is not paused",
				string(state.Contract.Status))
		}
		state.Contract.Status = models.ContractActive
	}
	return nil
}

// updateVerifier: government only, subject to the rotation timelock. Already
// verified milestones are unaffected.
func (m *Machine) updateVerifier(state *ContractState, op Operation, caller string, now time.Time) error {
	if caller != state.Contract.GovernmentAddress {
		return utils.NewAppError(utils.ErrCodeUnauthorized, "Only the government party can rotate the verifier")
	}
	if state.Contract.Status.Terminal() {
		return utils.NewAppError(utils.ErrCodeInvalidState, "Contract is closed",
			string(state.Contract.Status))
	}
	if !utils.IsValidAddress(op.NewVerifier) {
		return utils.NewAppError(utils.ErrCodeInvalidArgument, "New verifier address is malformed")
	}
	if last := state.Contract.VerifierUpdatedAt; last != nil && m.config.VerifierTimelock > 0 {
		unlockAt := last.Add(m.config.VerifierTimelock)
		if now.Before(unlockAt) {
			return utils.NewAppError(utils.ErrCodeInvalidState, "Verifier rotation timelock active",
				fmt.Sprintf("unlocks at %s", unlockAt.UTC().Format(time.RFC3339)))
		}
	}

	state.Contract.VerifierAddress = op.NewVerifier
	state.Contract.VerifierUpdatedAt = &now
	return nil
}

// terminate: government only; blocked while a verified milestone awaits
// payment. Remaining escrow refunds to the government account.
func (m *Machine) terminate(state *ContractState, caller string) error {
	if caller != state.Contract.GovernmentAddress {
		return utils.NewAppError(utils.ErrCodeUnauthorized, "Only the government party can terminate")
	}
	if state.Contract.Status.Terminal() {
		return utils.NewAppError(utils.ErrCodeInvalidState, "Contract is closed",
			string(state.Contract.Status))
	}
	if state.hasUnpaidVerified() {
		return utils.NewAppError(utils.ErrCodeInvalidState, "Verified milestones await payment")
	}

	state.EscrowBalance = 0
	state.Contract.Status = models.ContractTerminated
	return nil
}

func statusRef(s models.MilestoneStatus) *models.MilestoneStatus {
	return &s
}
