package ledger

import (
	"context"

	"github.com/fairlens/escrow-engine/internal/escrow"
	"github.com/fairlens/escrow-engine/internal/models"
	"github.com/fairlens/escrow-engine/internal/txbuilder"
)

// PendingTxInfo reports what the node knows about a submitted transaction.
// ConfirmedRound > 0 means durably included; a non-empty PoolError means the
// node evaluated and refused it; otherwise the transaction is still pending.
type PendingTxInfo struct {
	TxID           string              `json:"tx_id"`
	ConfirmedRound uint64              `json:"confirmed_round"`
	PoolError      string              `json:"pool_error,omitempty"`
	Event          *models.EscrowEvent `json:"event,omitempty"`
}

// Account is the ledger view of an address
type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// NodeStatus is the node liveness snapshot
type NodeStatus struct {
	LastRound uint64 `json:"last_round"`
	GenesisID string `json:"genesis_id"`
}

// Node is the ledger collaborator boundary: parameter discovery, raw
// submission, confirmation lookup and account queries.
type Node interface {
	txbuilder.ParamsSource
	SubmitRawTransaction(ctx context.Context, signed []byte) (string, error)
	PendingTransactionInfo(ctx context.Context, txID string) (*PendingTxInfo, error)
	AccountInfo(ctx context.Context, address string) (*Account, error)
	Status(ctx context.Context) (*NodeStatus, error)
}

// Deployer creates escrow applications on the ledger
type Deployer interface {
	CreateApplication(ctx context.Context, contract *models.Contract, funding uint64) (appID uint64, escrowAddress string, err error)
}

// StateReader exposes the authoritative contract state for reconciliation
// and read-only queries.
type StateReader interface {
	ApplicationState(ctx context.Context, appID uint64) (*escrow.ContractState, error)
}
