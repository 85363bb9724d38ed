package txbuilder

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/fairlens/escrow-engine/internal/escrow"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// Method identifiers routed by the escrow application. 1-6 match the
// original deployment; 7 and 8 extend the dispatch table for proof
// submission and termination.
const (
	MethodAddMilestone      = 1
	MethodVerifyMilestone   = 2
	MethodReleasePayment    = 3
	MethodEmergencyPause    = 4
	MethodResumeContract    = 5
	MethodUpdateVerifier    = 6
	MethodSubmitProof       = 7
	MethodTerminateContract = 8
)

// SuggestedParams are the current network parameters attached to every
// built transaction.
type SuggestedParams struct {
	Fee         uint64 `json:"fee"`
	MinFee      uint64 `json:"min_fee"`
	FirstValid  uint64 `json:"first_valid"`
	LastValid   uint64 `json:"last_valid"`
	GenesisID   string `json:"genesis_id"`
	GenesisHash []byte `json:"genesis_hash"`
}

// ParamsSource supplies suggested parameters; implemented by the ledger node
type ParamsSource interface {
	SuggestedParams(ctx context.Context) (*SuggestedParams, error)
}

// Transaction is an unsigned application-call transaction
type Transaction struct {
	Sender      string
	AppID       uint64
	Fee         uint64
	FirstValid  uint64
	LastValid   uint64
	GenesisID   string
	GenesisHash []byte
	AppArgs     [][]byte
}

// Builder constructs unsigned transactions for escrow operations. Argument
// validation happens locally, before any network interaction.
type Builder struct {
	params ParamsSource
}

// NewBuilder creates a transaction builder backed by a params source
func NewBuilder(params ParamsSource) *Builder {
	return &Builder{params: params}
}

// Build constructs the unsigned transaction for an operation. It fails with
// INVALID_ARGUMENT before touching the network when local validation fails.
func (b *Builder) Build(ctx context.Context, sender string, appID uint64, op escrow.Operation) (*Transaction, error) {
	appArgs, err := buildAppArgs(op)
	if err != nil {
		return nil, err
	}
	if !utils.IsValidAddress(sender) {
		return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Sender address is malformed")
	}
	if appID == 0 {
		return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Application id is required")
	}

	params, err := b.params.SuggestedParams(ctx)
	if err != nil {
		return nil, err
	}
	if params.LastValid <= params.FirstValid {
		return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Suggested validity window is empty",
			fmt.Sprintf("first=%d last=%d", params.FirstValid, params.LastValid))
	}

	fee := params.Fee
	if fee < params.MinFee {
		fee = params.MinFee
	}

	return &Transaction{
		Sender:      sender,
		AppID:       appID,
		Fee:         fee,
		FirstValid:  params.FirstValid,
		LastValid:   params.LastValid,
		GenesisID:   params.GenesisID,
		GenesisHash: params.GenesisHash,
		AppArgs:     appArgs,
	}, nil
}

// buildAppArgs serializes the operation into the method-ID-tagged argument
// vector: arg 0 is the one-byte method selector, numeric fields are 8-byte
// big-endian, addresses/hashes/signatures travel as raw bytes.
func buildAppArgs(op escrow.Operation) ([][]byte, error) {
	switch op.Kind {
	case escrow.OpAddMilestone:
		if op.Amount == 0 {
			return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Milestone amount must be positive")
		}
		if op.DueDate <= 0 {
			return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Milestone due date is required")
		}
		return [][]byte{
			{MethodAddMilestone},
			EncodeUint64(op.Index),
			EncodeUint64(op.Amount),
			EncodeUint64(uint64(op.DueDate)),
		}, nil

	case escrow.OpSubmitProof:
		if op.ProofHash == "" {
			return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Proof hash is required")
		}
		return [][]byte{
			{MethodSubmitProof},
			EncodeUint64(op.Index),
			[]byte(op.ProofHash),
		}, nil

	case escrow.OpVerifyMilestone:
		if len(op.Signature) != ed25519.SignatureSize {
			return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Attestation signature must be 64 bytes",
				fmt.Sprintf("got %d", len(op.Signature)))
		}
		if len(op.Message) == 0 {
			return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Attestation message is required")
		}
		args := [][]byte{
			{MethodVerifyMilestone},
			EncodeUint64(op.Index),
			op.Signature,
			op.Message,
		}
		if op.ProofHash != "" {
			args = append(args, []byte(op.ProofHash))
		}
		return args, nil

	case escrow.OpReleasePayment:
		return [][]byte{
			{MethodReleasePayment},
			EncodeUint64(op.Index),
		}, nil

	case escrow.OpEmergencyPause:
		return [][]byte{{MethodEmergencyPause}}, nil

	case escrow.OpResumeContract:
		return [][]byte{{MethodResumeContract}}, nil

	case escrow.OpUpdateVerifier:
		if !utils.IsValidAddress(op.NewVerifier) {
			return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "New verifier address is malformed")
		}
		return [][]byte{
			{MethodUpdateVerifier},
			[]byte(op.NewVerifier),
		}, nil

	case escrow.OpTerminateContract:
		return [][]byte{{MethodTerminateContract}}, nil

	default:
		return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Unknown operation",
			fmt.Sprintf("kind %d", op.Kind))
	}
}

// ParseOperation decodes a method-ID-tagged argument vector back into an
// operation; the ledger side of the wire contract.
func ParseOperation(appArgs [][]byte) (escrow.Operation, error) {
	var op escrow.Operation
	if len(appArgs) == 0 || len(appArgs[0]) != 1 {
		return op, utils.NewAppError(utils.ErrCodeRejected, "Missing method selector")
	}

	requireArgs := func(n int) error {
		if len(appArgs) < n {
			return utils.NewAppError(utils.ErrCodeRejected, "Too few application arguments",
				fmt.Sprintf("method %d wants %d, got %d", appArgs[0][0], n, len(appArgs)))
		}
		return nil
	}

	switch appArgs[0][0] {
	case MethodAddMilestone:
		if err := requireArgs(4); err != nil {
			return op, err
		}
		op.Kind = escrow.OpAddMilestone
		var err error
		if op.Index, err = DecodeUint64(appArgs[1]); err != nil {
			return op, err
		}
		if op.Amount, err = DecodeUint64(appArgs[2]); err != nil {
			return op, err
		}
		due, err := DecodeUint64(appArgs[3])
		if err != nil {
			return op, err
		}
		op.DueDate = int64(due)

	case MethodSubmitProof:
		if err := requireArgs(3); err != nil {
			return op, err
		}
		op.Kind = escrow.OpSubmitProof
		var err error
		if op.Index, err = DecodeUint64(appArgs[1]); err != nil {
			return op, err
		}
		op.ProofHash = string(appArgs[2])

	case MethodVerifyMilestone:
		if err := requireArgs(4); err != nil {
			return op, err
		}
		op.Kind = escrow.OpVerifyMilestone
		var err error
		if op.Index, err = DecodeUint64(appArgs[1]); err != nil {
			return op, err
		}
		op.Signature = appArgs[2]
		op.Message = appArgs[3]
		if len(appArgs) > 4 {
			op.ProofHash = string(appArgs[4])
		}

	case MethodReleasePayment:
		if err := requireArgs(2); err != nil {
			return op, err
		}
		op.Kind = escrow.OpReleasePayment
		var err error
		if op.Index, err = DecodeUint64(appArgs[1]); err != nil {
			return op, err
		}

	case MethodEmergencyPause:
		op.Kind = escrow.OpEmergencyPause

	case MethodResumeContract:
		op.Kind = escrow.OpResumeContract

	case MethodUpdateVerifier:
		if err := requireArgs(2); err != nil {
			return op, err
		}
		op.Kind = escrow.OpUpdateVerifier
		op.NewVerifier = string(appArgs[1])

	case MethodTerminateContract:
		op.Kind = escrow.OpTerminateContract

	default:
		return op, utils.NewAppError(utils.ErrCodeRejected, "Unknown method selector",
			fmt.Sprintf("id %d", appArgs[0][0]))
	}

	return op, nil
}
