package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairlens/escrow-engine/internal/escrow"
	"github.com/fairlens/escrow-engine/internal/models"
	"github.com/fairlens/escrow-engine/internal/txbuilder"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

const testGenesis = "test-net"

type testParty struct {
	address string
	key     ed25519.PrivateKey
}

func newTestParty(t *testing.T) testParty {
	t.Helper()
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return testParty{address: utils.EncodeAddress(pub), key: key}
}

type ledgerFixture struct {
	ledger     *EmbeddedLedger
	builder    *txbuilder.Builder
	gov        testParty
	contractor testParty
	verifier   testParty
	appID      uint64
	escrowAddr string
}

func newLedgerFixture(t *testing.T, total uint64) *ledgerFixture {
	t.Helper()

	f := &ledgerFixture{
		ledger:     NewEmbeddedLedger(testGenesis, escrow.NewMachine(escrow.DefaultMachineConfig())),
		gov:        newTestParty(t),
		contractor: newTestParty(t),
		verifier:   newTestParty(t),
	}
	f.builder = txbuilder.NewBuilder(f.ledger)
	f.ledger.Fund(f.gov.address, total*10)

	contract := &models.Contract{
		ID:                "contract-1",
		TenderID:          "tender-1",
		GovernmentAddress: f.gov.address,
		ContractorAddress: f.contractor.address,
		VerifierAddress:   f.verifier.address,
		TotalAmount:       total,
		CreatedAt:         time.Now().UTC(),
	}

	appID, escrowAddr, err := f.ledger.CreateApplication(context.Background(), contract, total)
	require.NoError(t, err)
	f.appID = appID
	f.escrowAddr = escrowAddr
	return f
}

// sign builds and signs an operation transaction as the given party
func (f *ledgerFixture) sign(t *testing.T, party testParty, op escrow.Operation) []byte {
	t.Helper()
	txn, err := f.builder.Build(context.Background(), party.address, f.appID, op)
	require.NoError(t, err)

	canonical := txn.Encode()
	stx := &txbuilder.SignedTransaction{
		TxnBytes:  canonical,
		Signature: ed25519.Sign(party.key, canonical),
	}
	return stx.Encode()
}

func (f *ledgerFixture) submit(t *testing.T, party testParty, op escrow.Operation) *PendingTxInfo {
	t.Helper()
	txID, err := f.ledger.SubmitRawTransaction(context.Background(), f.sign(t, party, op))
	require.NoError(t, err)

	info, err := f.ledger.PendingTransactionInfo(context.Background(), txID)
	require.NoError(t, err)
	return info
}

func (f *ledgerFixture) attestation(index uint64) escrow.Operation {
	message := []byte("verify milestone")
	return escrow.Operation{
		Kind:      escrow.OpVerifyMilestone,
		Index:     index,
		Message:   message,
		Signature: ed25519.Sign(f.verifier.key, message),
	}
}

func TestCreateApplication(t *testing.T) {
	t.Run("deducts funding from the government account", func(t *testing.T) {
		f := newLedgerFixture(t, 1000)

		gov, err := f.ledger.AccountInfo(context.Background(), f.gov.address)
		require.NoError(t, err)
		assert.Equal(t, uint64(9000), gov.Balance)

		escrowAcct, err := f.ledger.AccountInfo(context.Background(), f.escrowAddr)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), escrowAcct.Balance)
	})

	t.Run("refuses underfunded escrow", func(t *testing.T) {
		l := NewEmbeddedLedger(testGenesis, escrow.NewMachine(escrow.DefaultMachineConfig()))
		gov := newTestParty(t)
		l.Fund(gov.address, 10_000)

		contract := &models.Contract{
			GovernmentAddress: gov.address,
			ContractorAddress: newTestParty(t).address,
			VerifierAddress:   newTestParty(t).address,
			TotalAmount:       1000,
		}
		_, _, err := l.CreateApplication(context.Background(), contract, 500)
		assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument))
	})

	t.Run("refuses a government account that cannot pay", func(t *testing.T) {
		l := NewEmbeddedLedger(testGenesis, escrow.NewMachine(escrow.DefaultMachineConfig()))
		gov := newTestParty(t)

		contract := &models.Contract{
			GovernmentAddress: gov.address,
			ContractorAddress: newTestParty(t).address,
			VerifierAddress:   newTestParty(t).address,
			TotalAmount:       1000,
		}
		_, _, err := l.CreateApplication(context.Background(), contract, 1000)
		assert.True(t, utils.IsCode(err, utils.ErrCodeInsufficientEscrow))
	})

	t.Run("refuses malformed party addresses", func(t *testing.T) {
		l := NewEmbeddedLedger(testGenesis, escrow.NewMachine(escrow.DefaultMachineConfig()))
		contract := &models.Contract{
			GovernmentAddress: "bogus",
			ContractorAddress: newTestParty(t).address,
			VerifierAddress:   newTestParty(t).address,
			TotalAmount:       100,
		}
		_, _, err := l.CreateApplication(context.Background(), contract, 100)
		assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument))
	})
}

func TestFullEscrowLifecycle(t *testing.T) {
	f := newLedgerFixture(t, 1000)
	ctx := context.Background()

	info := f.submit(t, f.gov, escrow.Operation{Kind: escrow.OpAddMilestone, Index: 0, Amount: 600, DueDate: time.Now().Unix()})
	require.Empty(t, info.PoolError)
	assert.Positive(t, info.ConfirmedRound)
	require.NotNil(t, info.Event)
	assert.Equal(t, "addMilestone", info.Event.Operation)

	// Read-after-write: the confirmed transition is immediately visible.
	state, err := f.ledger.ApplicationState(ctx, f.appID)
	require.NoError(t, err)
	assert.Equal(t, models.MilestonePending, state.Milestones[0].Status)

	info = f.submit(t, f.contractor, escrow.Operation{Kind: escrow.OpSubmitProof, Index: 0, ProofHash: "sha256:proof"})
	require.Empty(t, info.PoolError)

	info = f.submit(t, f.verifier, f.attestation(0))
	require.Empty(t, info.PoolError)

	info = f.submit(t, f.gov, escrow.Operation{Kind: escrow.OpReleasePayment, Index: 0})
	require.Empty(t, info.PoolError)

	// Funds moved from escrow to the contractor.
	contractorAcct, err := f.ledger.AccountInfo(ctx, f.contractor.address)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), contractorAcct.Balance)

	escrowAcct, err := f.ledger.AccountInfo(ctx, f.escrowAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), escrowAcct.Balance)

	state, err = f.ledger.ApplicationState(ctx, f.appID)
	require.NoError(t, err)
	assert.Equal(t, models.MilestonePaid, state.Milestones[0].Status)
}

func TestTerminateRefundsGovernment(t *testing.T) {
	f := newLedgerFixture(t, 1000)
	ctx := context.Background()

	info := f.submit(t, f.gov, escrow.Operation{Kind: escrow.OpTerminateContract})
	require.Empty(t, info.PoolError)

	gov, err := f.ledger.AccountInfo(ctx, f.gov.address)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), gov.Balance)

	escrowAcct, err := f.ledger.AccountInfo(ctx, f.escrowAddr)
	require.NoError(t, err)
	assert.Zero(t, escrowAcct.Balance)
}

func TestSubmitRejections(t *testing.T) {
	f := newLedgerFixture(t, 1000)
	ctx := context.Background()

	t.Run("forged signature", func(t *testing.T) {
		txn, err := f.builder.Build(ctx, f.gov.address, f.appID, escrow.Operation{Kind: escrow.OpEmergencyPause})
		require.NoError(t, err)

		canonical := txn.Encode()
		stx := &txbuilder.SignedTransaction{
			TxnBytes:  canonical,
			Signature: ed25519.Sign(f.contractor.key, canonical), // wrong key
		}
		_, err = f.ledger.SubmitRawTransaction(ctx, stx.Encode())
		assert.True(t, utils.IsCode(err, utils.ErrCodeRejected))
	})

	t.Run("genesis mismatch", func(t *testing.T) {
		txn, err := f.builder.Build(ctx, f.gov.address, f.appID, escrow.Operation{Kind: escrow.OpEmergencyPause})
		require.NoError(t, err)
		txn.GenesisID = "other-net"

		canonical := txn.Encode()
		stx := &txbuilder.SignedTransaction{TxnBytes: canonical, Signature: ed25519.Sign(f.gov.key, canonical)}
		_, err = f.ledger.SubmitRawTransaction(ctx, stx.Encode())
		assert.True(t, utils.IsCode(err, utils.ErrCodeRejected))
	})

	t.Run("expired validity window", func(t *testing.T) {
		txn, err := f.builder.Build(ctx, f.gov.address, f.appID, escrow.Operation{Kind: escrow.OpEmergencyPause})
		require.NoError(t, err)
		txn.FirstValid = 1
		txn.LastValid = 1 // long past after the deployment round bumps

		canonical := txn.Encode()
		stx := &txbuilder.SignedTransaction{TxnBytes: canonical, Signature: ed25519.Sign(f.gov.key, canonical)}
		_, err = f.ledger.SubmitRawTransaction(ctx, stx.Encode())
		assert.True(t, utils.IsCode(err, utils.ErrCodeRejected))
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := f.ledger.SubmitRawTransaction(ctx, []byte("garbage"))
		assert.True(t, utils.IsCode(err, utils.ErrCodeRejected))
	})

	t.Run("state machine refusal surfaces as pool error", func(t *testing.T) {
		info := f.submit(t, f.contractor, escrow.Operation{Kind: escrow.OpAddMilestone, Index: 0, Amount: 100, DueDate: time.Now().Unix()})
		assert.Zero(t, info.ConfirmedRound)
		assert.Contains(t, info.PoolError, utils.ErrCodeUnauthorized)
		assert.Nil(t, info.Event, "refused operations emit no event")
	})
}

func TestDuplicateSubmissionIsIdempotent(t *testing.T) {
	f := newLedgerFixture(t, 1000)
	ctx := context.Background()

	signed := f.sign(t, f.gov, escrow.Operation{Kind: escrow.OpAddMilestone, Index: 0, Amount: 100, DueDate: time.Now().Unix()})

	first, err := f.ledger.SubmitRawTransaction(ctx, signed)
	require.NoError(t, err)
	second, err := f.ledger.SubmitRawTransaction(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	state, err := f.ledger.ApplicationState(ctx, f.appID)
	require.NoError(t, err)
	assert.Len(t, state.Milestones, 1, "replay must not apply the transition twice")
}

func TestManualConfirmationMode(t *testing.T) {
	f := newLedgerFixture(t, 1000)
	ctx := context.Background()
	f.ledger.SetAutoConfirm(false)

	txID, err := f.ledger.SubmitRawTransaction(ctx, f.sign(t, f.gov, escrow.Operation{Kind: escrow.OpAddMilestone, Index: 0, Amount: 100, DueDate: time.Now().Unix()}))
	require.NoError(t, err)

	info, err := f.ledger.PendingTransactionInfo(ctx, txID)
	require.NoError(t, err)
	assert.Zero(t, info.ConfirmedRound)
	assert.Empty(t, info.PoolError)

	f.ledger.AdvanceRound()

	info, err = f.ledger.PendingTransactionInfo(ctx, txID)
	require.NoError(t, err)
	assert.Positive(t, info.ConfirmedRound)
}

func TestPendingTransactionInfoUnknown(t *testing.T) {
	f := newLedgerFixture(t, 1000)
	_, err := f.ledger.PendingTransactionInfo(context.Background(), "missing")
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
}

func TestApplicationStateIsACopy(t *testing.T) {
	f := newLedgerFixture(t, 1000)
	ctx := context.Background()

	state, err := f.ledger.ApplicationState(ctx, f.appID)
	require.NoError(t, err)
	state.EscrowBalance = 0 // mutating the copy must not affect the ledger

	fresh, err := f.ledger.ApplicationState(ctx, f.appID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), fresh.EscrowBalance)
}

func TestNodeManager(t *testing.T) {
	f := newLedgerFixture(t, 1000)
	manager := NewNodeManager(f.ledger, time.Minute)

	require.NoError(t, manager.HealthCheck(context.Background()))
	assert.True(t, manager.IsHealthy())

	stats := manager.Stats()
	assert.Equal(t, testGenesis, stats.GenesisID)
	assert.Positive(t, stats.LastRound)

	node, err := manager.Node(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, node)
}
