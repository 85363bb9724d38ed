package facade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fairlens/escrow-engine/internal/confirm"
	"github.com/fairlens/escrow-engine/internal/escrow"
	"github.com/fairlens/escrow-engine/internal/ledger"
	"github.com/fairlens/escrow-engine/internal/metrics"
	"github.com/fairlens/escrow-engine/internal/models"
	"github.com/fairlens/escrow-engine/internal/notify"
	"github.com/fairlens/escrow-engine/internal/storage"
	"github.com/fairlens/escrow-engine/internal/txbuilder"
	"github.com/fairlens/escrow-engine/internal/wallet"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// ResultStatus classifies the outcome of one escrow operation attempt
type ResultStatus string

const (
	ResultConfirmed ResultStatus = "confirmed"
	ResultRejected  ResultStatus = "rejected"
	ResultCancelled ResultStatus = "cancelled"
	// ResultPending means the transaction may still land; the caller should
	// re-query the transaction record rather than assume failure.
	ResultPending ResultStatus = "pending"
)

// TransactionResult is the user-facing outcome of an operation attempt
type TransactionResult struct {
	Status         ResultStatus        `json:"status"`
	TxID           string              `json:"tx_id,omitempty"`
	ConfirmedRound uint64              `json:"confirmed_round,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	Event          *models.EscrowEvent `json:"event,omitempty"`
}

// DeployRequest carries everything needed to create a funded escrow contract
type DeployRequest struct {
	TenderID          string `json:"tender_id"`
	GovernmentAddress string `json:"government_address"`
	ContractorAddress string `json:"contractor_address"`
	VerifierAddress   string `json:"verifier_address"`
	TotalAmount       uint64 `json:"total_amount"`
	Funding           uint64 `json:"funding"`
}

// Facade drives the full operation pipeline: build the transaction, obtain
// the user's signature, submit, await confirmation, then reconcile the local
// projection against the authoritative state. Local rows never change on an
// unconfirmed outcome.
type Facade struct {
	machine   *escrow.Machine
	builder   *txbuilder.Builder
	wallet    wallet.Wallet
	deployer  ledger.Deployer
	state     ledger.StateReader
	submitter *confirm.Submitter
	store     storage.Storage
	notifier  *notify.Manager
	metrics   *metrics.PrometheusMetrics
	logger    *logrus.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// Options bundles the facade's collaborators
type Options struct {
	Machine   *escrow.Machine
	Builder   *txbuilder.Builder
	Wallet    wallet.Wallet
	Deployer  ledger.Deployer
	State     ledger.StateReader
	Submitter *confirm.Submitter
	Store     storage.Storage
	Notifier  *notify.Manager
	Metrics   *metrics.PrometheusMetrics
}

// New creates the escrow facade
func New(opts Options) *Facade {
	return &Facade{
		machine:   opts.Machine,
		builder:   opts.Builder,
		wallet:    opts.Wallet,
		deployer:  opts.Deployer,
		state:     opts.State,
		submitter: opts.Submitter,
		store:     opts.Store,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		logger:    utils.GetLogger(),
		inflight:  make(map[string]bool),
	}
}

// DeployContract creates and funds a new escrow application, then persists
// the contract projection.
func (f *Facade) DeployContract(ctx context.Context, req *DeployRequest) (*models.Contract, error) {
	if req.TenderID == "" {
		return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Tender id is required")
	}
	if req.TotalAmount == 0 {
		return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Contract total amount must be positive")
	}
	for _, addr := range []string{req.GovernmentAddress, req.ContractorAddress, req.VerifierAddress} {
		if !utils.IsValidAddress(addr) {
			return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Party address is malformed", addr)
		}
	}
	funding := req.Funding
	if funding == 0 {
		funding = req.TotalAmount
	}

	now := time.Now().UTC()
	contract := &models.Contract{
		ID:                uuid.NewString(),
		TenderID:          req.TenderID,
		GovernmentAddress: req.GovernmentAddress,
		ContractorAddress: req.ContractorAddress,
		VerifierAddress:   req.VerifierAddress,
		TotalAmount:       req.TotalAmount,
		Status:            models.ContractActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	appID, escrowAddress, err := f.deployer.CreateApplication(ctx, contract, funding)
	if err != nil {
		return nil, err
	}
	contract.AppID = appID
	contract.EscrowAddress = escrowAddress

	if err := f.store.SaveContract(ctx, contract); err != nil {
		return nil, err
	}

	event := &models.EscrowEvent{
		ID:             uuid.NewString(),
		ContractID:     contract.ID,
		Operation:      "deployContract",
		Caller:         contract.GovernmentAddress,
		ContractStatus: contract.Status,
		Details:        fmt.Sprintf("app_id=%d funding=%d", appID, funding),
		Timestamp:      now,
	}
	if err := f.store.SaveEvent(ctx, event); err != nil {
		f.logger.WithField("contract_id", contract.ID).WithError(err).Warn("Failed to persist deployment event")
	}
	f.publish(event)

	f.logger.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"tender_id":   contract.TenderID,
		"app_id":      appID,
	}).Info("Escrow contract deployed")

	return contract, nil
}

// PerformOperation runs one escrow operation end to end for the connected
// wallet. Deterministic rejections surface before any network interaction
// when the advisory pre-check already refuses the transition.
func (f *Facade) PerformOperation(ctx context.Context, contractID string, op escrow.Operation) (*TransactionResult, error) {
	start := time.Now()

	contract, err := f.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Contract not found", contractID)
	}

	caller := f.wallet.Address()
	if caller == "" {
		return nil, utils.NewAppError(utils.ErrCodeUnauthorized, "Wallet not connected")
	}

	key := inflightKey(contractID, op)
	if !f.acquire(key) {
		return nil, utils.NewAppError(utils.ErrCodeInvalidState, "Operation already in flight", key)
	}
	defer f.release(key)

	// Advisory pre-check against the authoritative state: a transition the
	// application would refuse fails fast with its typed error. The ledger
	// remains the arbiter; confirmation still decides the real outcome.
	if current, err := f.state.ApplicationState(ctx, contract.AppID); err == nil {
		if _, _, err := f.machine.Apply(current, op, caller, time.Now().UTC()); err != nil {
			f.recordRejection(op, err)
			return nil, err
		}
	}

	txn, err := f.builder.Build(ctx, caller, contract.AppID, op)
	if err != nil {
		f.recordRejection(op, err)
		return nil, err
	}

	signed, err := f.wallet.SignTransactions(ctx, [][]byte{txn.Encode()}, []int{0})
	if err != nil {
		if utils.IsCode(err, utils.ErrCodeSigningCancelled) {
			f.metrics.RecordOperation(op.Kind.Name(), string(ResultCancelled), time.Since(start))
			f.logger.WithFields(logrus.Fields{
				"contract_id": contractID,
				"operation":   op.Kind.Name(),
			}).Info("Operation cancelled at the signing prompt")
			return &TransactionResult{Status: ResultCancelled, Reason: err.Error()}, nil
		}
		return nil, err
	}

	record := f.newRecord(contract.ID, op, utils.TransactionID(signed[0]))
	if err := f.store.SaveTransaction(ctx, record); err != nil {
		f.logger.WithField("tx_id", record.TxID).WithError(err).Warn("Failed to persist transaction record")
	}

	outcome, err := f.submitter.SubmitAndWait(ctx, signed[0])
	if err != nil {
		f.resolveRecord(ctx, record.TxID, models.TransactionRejected, 0, err.Error())
		f.recordRejection(op, err)
		return nil, err
	}

	result := f.settleOutcome(ctx, contract, op, record, outcome)
	f.metrics.RecordOperation(op.Kind.Name(), string(result.Status), time.Since(start))
	return result, nil
}

// settleOutcome reconciles storage and book-keeping for a submission outcome
func (f *Facade) settleOutcome(ctx context.Context, contract *models.Contract, op escrow.Operation, record *models.TransactionRecord, outcome *confirm.Outcome) *TransactionResult {
	switch outcome.Status {
	case confirm.OutcomeConfirmed:
		f.resolveRecord(ctx, record.TxID, models.TransactionConfirmed, outcome.ConfirmedRound, "")
		if err := f.reconcile(ctx, contract.AppID, outcome.Event); err != nil {
			f.logger.WithField("contract_id", contract.ID).WithError(err).Error("Failed to reconcile confirmed state")
		}
		if outcome.Event != nil && outcome.Event.MilestoneStatus != nil {
			f.metrics.TransitionsTotal.WithLabelValues(string(*outcome.Event.MilestoneStatus)).Inc()
		}
		f.publish(outcome.Event)
		return &TransactionResult{
			Status:         ResultConfirmed,
			TxID:           outcome.TxID,
			ConfirmedRound: outcome.ConfirmedRound,
			Event:          outcome.Event,
		}

	case confirm.OutcomeRejected:
		f.resolveRecord(ctx, record.TxID, models.TransactionRejected, 0, outcome.Reason)
		f.metrics.RecordRejection(op.Kind.Name(), utils.ErrCodeRejected)
		return &TransactionResult{Status: ResultRejected, TxID: outcome.TxID, Reason: outcome.Reason}

	default:
		// Undetermined: the record stays pending for a later re-query.
		f.metrics.PendingOutcomesTotal.Inc()
		f.logger.WithFields(logrus.Fields{
			"contract_id": contract.ID,
			"tx_id":       record.TxID,
			"operation":   op.Kind.Name(),
		}).Info("Operation outcome undetermined, transaction left pending")
		return &TransactionResult{Status: ResultPending, TxID: record.TxID}
	}
}

// SyncContract refreshes the local projection from the authoritative state
func (f *Facade) SyncContract(ctx context.Context, contractID string) error {
	contract, err := f.store.GetContract(ctx, contractID)
	if err != nil {
		return err
	}
	if contract == nil {
		return utils.NewAppError(utils.ErrCodeNotFound, "Contract not found", contractID)
	}
	return f.reconcile(ctx, contract.AppID, nil)
}

// ResolvePendingTransactions re-polls transactions whose outcome was left
// undetermined and settles any that have since confirmed or been refused.
func (f *Facade) ResolvePendingTransactions(ctx context.Context, limit int) (int, error) {
	pending, err := f.store.GetPendingTransactions(ctx, limit)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, record := range pending {
		outcome := f.submitter.WaitForConfirmation(ctx, record.TxID)
		switch outcome.Status {
		case confirm.OutcomeConfirmed:
			f.resolveRecord(ctx, record.TxID, models.TransactionConfirmed, outcome.ConfirmedRound, "")
			if contract, err := f.store.GetContract(ctx, record.ContractID); err == nil && contract != nil {
				if err := f.reconcile(ctx, contract.AppID, outcome.Event); err != nil {
					f.logger.WithField("tx_id", record.TxID).WithError(err).Error("Failed to reconcile confirmed state")
				}
			}
			f.publish(outcome.Event)
			resolved++
		case confirm.OutcomeRejected:
			f.resolveRecord(ctx, record.TxID, models.TransactionRejected, 0, outcome.Reason)
			resolved++
		}
	}
	return resolved, nil
}

// reconcile writes the authoritative contract state into local storage and,
// when the transition carries an audit event, appends it.
func (f *Facade) reconcile(ctx context.Context, appID uint64, event *models.EscrowEvent) error {
	state, err := f.state.ApplicationState(ctx, appID)
	if err != nil {
		return err
	}

	if err := f.store.SaveContract(ctx, &state.Contract); err != nil {
		return err
	}
	for _, milestone := range state.Milestones {
		if err := f.store.SaveMilestone(ctx, milestone); err != nil {
			return err
		}
	}
	if event != nil {
		if err := f.store.SaveEvent(ctx, event); err != nil {
			return err
		}
	}

	f.metrics.EscrowBalance.WithLabelValues(state.Contract.ID).Set(float64(state.EscrowBalance))
	return nil
}

func (f *Facade) newRecord(contractID string, op escrow.Operation, txID string) *models.TransactionRecord {
	record := &models.TransactionRecord{
		ID:          uuid.NewString(),
		TxID:        txID,
		ContractID:  contractID,
		Operation:   op.Kind.Name(),
		Status:      models.TransactionPending,
		SubmittedAt: time.Now().UTC(),
	}
	if op.HasMilestone() {
		idx := op.Index
		record.MilestoneIndex = &idx
	}
	return record
}

func (f *Facade) resolveRecord(ctx context.Context, txID string, status models.TransactionStatus, round uint64, reason string) {
	if err := f.store.ResolveTransaction(ctx, txID, status, round, reason); err != nil {
		f.logger.WithField("tx_id", txID).WithError(err).Warn("Failed to resolve transaction record")
	}
}

func (f *Facade) recordRejection(op escrow.Operation, err error) {
	f.metrics.RecordRejection(op.Kind.Name(), utils.ErrorCode(err))
}

func (f *Facade) publish(event *models.EscrowEvent) {
	if event == nil || f.notifier == nil {
		return
	}
	f.notifier.Publish(event)
}

func (f *Facade) acquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inflight[key] {
		return false
	}
	f.inflight[key] = true
	return true
}

func (f *Facade) release(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inflight, key)
}

func inflightKey(contractID string, op escrow.Operation) string {
	if op.HasMilestone() {
		return fmt.Sprintf("%s/%d", contractID, op.Index)
	}
	return contractID
}
