package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fairlens/escrow-engine/internal/escrow"
	"github.com/fairlens/escrow-engine/internal/models"
	"github.com/fairlens/escrow-engine/internal/txbuilder"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

const (
	minFee         = 1000
	validityWindow = 1000
)

// EmbeddedLedger is an in-process ledger simulation implementing Node. It
// executes the escrow state machine as its application layer, so the client
// contract (build, sign, submit, poll) exercises exactly the semantics the
// on-chain deployment enforces. Once a transaction confirms, every
// subsequent query observes the post-transition state.
type EmbeddedLedger struct {
	mu          sync.Mutex
	round       uint64
	genesisID   string
	genesisHash []byte
	machine     *escrow.Machine
	accounts    map[string]uint64
	apps        map[uint64]*escrow.ContractState
	txns        map[string]*PendingTxInfo
	queue       []queuedTxn
	nextAppID   uint64
	autoConfirm bool
	logger      *logrus.Logger
}

type queuedTxn struct {
	txID   string
	txn    *txbuilder.Transaction
	op     escrow.Operation
	caller string
}

// NewEmbeddedLedger creates an embedded ledger for the given genesis id
func NewEmbeddedLedger(genesisID string, machine *escrow.Machine) *EmbeddedLedger {
	hash := make([]byte, 32)
	rand.Read(hash)

	return &EmbeddedLedger{
		round:       1,
		genesisID:   genesisID,
		genesisHash: hash,
		machine:     machine,
		accounts:    make(map[string]uint64),
		apps:        make(map[uint64]*escrow.ContractState),
		txns:        make(map[string]*PendingTxInfo),
		nextAppID:   1000,
		autoConfirm: true,
		logger:      utils.GetLogger(),
	}
}

// SetAutoConfirm controls whether submissions confirm immediately or wait
// for AdvanceRound. Manual mode drives pending-path tests and demos.
func (l *EmbeddedLedger) SetAutoConfirm(auto bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoConfirm = auto
}

// Fund credits an account; the simulation's faucet
func (l *EmbeddedLedger) Fund(address string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[address] += amount
}

// SuggestedParams returns current network parameters
func (l *EmbeddedLedger) SuggestedParams(ctx context.Context) (*txbuilder.SuggestedParams, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return &txbuilder.SuggestedParams{
		Fee:         minFee,
		MinFee:      minFee,
		FirstValid:  l.round,
		LastValid:   l.round + validityWindow,
		GenesisID:   l.genesisID,
		GenesisHash: l.genesisHash,
	}, nil
}

// CreateApplication deploys an escrow application and funds its account
// from the government party's balance.
func (l *EmbeddedLedger) CreateApplication(ctx context.Context, contract *models.Contract, funding uint64) (uint64, string, error) {
	for _, addr := range []string{contract.GovernmentAddress, contract.ContractorAddress, contract.VerifierAddress} {
		if !utils.IsValidAddress(addr) {
			return 0, "", utils.NewAppError(utils.ErrCodeInvalidArgument, "Party address is malformed", addr)
		}
	}
	if funding < contract.TotalAmount {
		return 0, "", utils.NewAppError(utils.ErrCodeInvalidArgument, "Escrow funding below contract total",
			fmt.Sprintf("funding %d < total %d", funding, contract.TotalAmount))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.accounts[contract.GovernmentAddress] < funding {
		return 0, "", utils.NewAppError(utils.ErrCodeInsufficientEscrow, "Government account cannot fund the escrow",
			fmt.Sprintf("balance %d < funding %d", l.accounts[contract.GovernmentAddress], funding))
	}

	appID := l.nextAppID
	l.nextAppID++
	escrowAddress := applicationAddress(appID)

	l.accounts[contract.GovernmentAddress] -= funding
	l.accounts[escrowAddress] += funding

	c := *contract
	c.AppID = appID
	c.EscrowAddress = escrowAddress
	l.apps[appID] = escrow.NewContractState(c, funding)
	l.round++

	l.logger.WithFields(logrus.Fields{
		"app_id":  appID,
		"escrow":  escrowAddress,
		"funding": funding,
	}).Info("Escrow application created")

	return appID, escrowAddress, nil
}

// SubmitRawTransaction validates and executes one signed transaction.
// Malformed payloads, bad signatures and dead validity windows are refused
// synchronously; state machine rejections surface through the pool error.
func (l *EmbeddedLedger) SubmitRawTransaction(ctx context.Context, signed []byte) (string, error) {
	stx, err := txbuilder.DecodeSignedTransaction(signed)
	if err != nil {
		return "", err
	}
	txn, err := txbuilder.DecodeTransaction(stx.TxnBytes)
	if err != nil {
		return "", err
	}

	senderKey, err := utils.DecodePublicKey(txn.Sender)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeRejected, "Sender address is malformed", err.Error())
	}
	if !ed25519.Verify(senderKey, stx.TxnBytes, stx.Signature) {
		return "", utils.NewAppError(utils.ErrCodeRejected, "Transaction signature does not validate")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if txn.GenesisID != l.genesisID {
		return "", utils.NewAppError(utils.ErrCodeRejected, "Genesis mismatch", txn.GenesisID)
	}
	if l.round > txn.LastValid {
		return "", utils.NewAppError(utils.ErrCodeRejected, "Transaction validity window expired",
			fmt.Sprintf("round %d > last valid %d", l.round, txn.LastValid))
	}
	if txn.FirstValid > txn.LastValid {
		return "", utils.NewAppError(utils.ErrCodeRejected, "Invalid validity window")
	}

	op, err := txbuilder.ParseOperation(txn.AppArgs)
	if err != nil {
		return "", err
	}

	txID := utils.TransactionID(signed)
	if _, seen := l.txns[txID]; seen {
		return txID, nil
	}
	l.txns[txID] = &PendingTxInfo{TxID: txID}

	entry := queuedTxn{txID: txID, txn: txn, op: op, caller: txn.Sender}
	if l.autoConfirm {
		l.execute(entry)
	} else {
		l.queue = append(l.queue, entry)
	}

	return txID, nil
}

// AdvanceRound executes queued transactions and bumps the round; a no-op
// beyond the round bump when auto-confirm is on.
func (l *EmbeddedLedger) AdvanceRound() {
	l.mu.Lock()
	defer l.mu.Unlock()

	queue := l.queue
	l.queue = nil
	for _, entry := range queue {
		l.execute(entry)
	}
	l.round++
}

// execute applies one transaction under l.mu
func (l *EmbeddedLedger) execute(entry queuedTxn) {
	info := l.txns[entry.txID]

	state, ok := l.apps[entry.txn.AppID]
	if !ok {
		info.PoolError = utils.ErrCodeNotFound + ": application does not exist"
		return
	}

	priorEscrow := state.EscrowBalance
	next, event, err := l.machine.Apply(state, entry.op, entry.caller, time.Now().UTC())
	if err != nil {
		info.PoolError = err.Error()
		l.logger.WithFields(logrus.Fields{
			"tx_id":     entry.txID,
			"operation": entry.op.Kind.Name(),
			"error":     err.Error(),
		}).Debug("Transaction refused by application")
		return
	}

	// Settle fund movement implied by the transition.
	switch entry.op.Kind {
	case escrow.OpReleasePayment:
		released := priorEscrow - next.EscrowBalance
		l.accounts[next.Contract.ContractorAddress] += released
	case escrow.OpTerminateContract:
		l.accounts[next.Contract.GovernmentAddress] += priorEscrow
	}
	l.accounts[next.Contract.EscrowAddress] = next.EscrowBalance

	l.apps[entry.txn.AppID] = next
	l.round++
	info.ConfirmedRound = l.round
	info.Event = event
}

// PendingTransactionInfo reports confirmation status for a transaction
func (l *EmbeddedLedger) PendingTransactionInfo(ctx context.Context, txID string) (*PendingTxInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.txns[txID]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Unknown transaction", txID)
	}
	copied := *info
	return &copied, nil
}

// AccountInfo returns the balance of an address
func (l *EmbeddedLedger) AccountInfo(ctx context.Context, address string) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Account{Address: address, Balance: l.accounts[address]}, nil
}

// Status returns the node liveness snapshot
func (l *EmbeddedLedger) Status(ctx context.Context) (*NodeStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &NodeStatus{LastRound: l.round, GenesisID: l.genesisID}, nil
}

// ApplicationState returns a copy of the authoritative contract state
func (l *EmbeddedLedger) ApplicationState(ctx context.Context, appID uint64) (*escrow.ContractState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.apps[appID]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Application does not exist",
			fmt.Sprintf("app %d", appID))
	}
	return state.Clone(), nil
}

// applicationAddress derives the escrow account address owned by an
// application, analogous to hashing the application id on chain.
func applicationAddress(appID uint64) string {
	seed := append([]byte("fairlens/app"), txbuilder.EncodeUint64(appID)...)
	return utils.AddressFromDigest(seed)
}
