package txbuilder

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairlens/escrow-engine/internal/escrow"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

type fakeParams struct {
	params *SuggestedParams
	err    error
	calls  int
}

func (f *fakeParams) SuggestedParams(ctx context.Context) (*SuggestedParams, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.params, nil
}

func testAddress(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return utils.EncodeAddress(pub)
}

func defaultParams() *SuggestedParams {
	return &SuggestedParams{
		Fee:         1000,
		MinFee:      1000,
		FirstValid:  10,
		LastValid:   1010,
		GenesisID:   "test-net",
		GenesisHash: make([]byte, 32),
	}
}

func TestBuild(t *testing.T) {
	sender := testAddress(t)

	t.Run("attaches suggested params", func(t *testing.T) {
		source := &fakeParams{params: defaultParams()}
		builder := NewBuilder(source)

		txn, err := builder.Build(context.Background(), sender, 1000, escrow.Operation{
			Kind: escrow.OpAddMilestone, Index: 0, Amount: 500, DueDate: 1700000000,
		})
		require.NoError(t, err)

		assert.Equal(t, sender, txn.Sender)
		assert.Equal(t, uint64(1000), txn.AppID)
		assert.Equal(t, uint64(1000), txn.Fee)
		assert.Equal(t, uint64(10), txn.FirstValid)
		assert.Equal(t, uint64(1010), txn.LastValid)
		assert.Equal(t, "test-net", txn.GenesisID)
		require.Len(t, txn.AppArgs, 4)
		assert.Equal(t, []byte{MethodAddMilestone}, txn.AppArgs[0])
	})

	t.Run("fee floors at min fee", func(t *testing.T) {
		params := defaultParams()
		params.Fee = 1
		builder := NewBuilder(&fakeParams{params: params})

		txn, err := builder.Build(context.Background(), sender, 1000, escrow.Operation{Kind: escrow.OpEmergencyPause})
		require.NoError(t, err)
		assert.Equal(t, params.MinFee, txn.Fee)
	})

	t.Run("validates before touching the network", func(t *testing.T) {
		source := &fakeParams{params: defaultParams()}
		builder := NewBuilder(source)

		_, err := builder.Build(context.Background(), sender, 1000, escrow.Operation{
			Kind: escrow.OpAddMilestone, Index: 0, Amount: 0, DueDate: 1700000000,
		})
		assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument))
		assert.Zero(t, source.calls, "params must not be fetched for an invalid operation")
	})

	t.Run("rejects malformed sender", func(t *testing.T) {
		builder := NewBuilder(&fakeParams{params: defaultParams()})
		_, err := builder.Build(context.Background(), "bogus", 1000, escrow.Operation{Kind: escrow.OpEmergencyPause})
		assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument))
	})

	t.Run("rejects zero app id", func(t *testing.T) {
		builder := NewBuilder(&fakeParams{params: defaultParams()})
		_, err := builder.Build(context.Background(), sender, 0, escrow.Operation{Kind: escrow.OpEmergencyPause})
		assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument))
	})

	t.Run("rejects empty validity window", func(t *testing.T) {
		params := defaultParams()
		params.LastValid = params.FirstValid
		builder := NewBuilder(&fakeParams{params: params})
		_, err := builder.Build(context.Background(), sender, 1000, escrow.Operation{Kind: escrow.OpEmergencyPause})
		assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument))
	})
}

func TestBuildAppArgsValidation(t *testing.T) {
	verifier := testAddress(t)

	cases := []struct {
		name string
		op   escrow.Operation
	}{
		{"proof without hash", escrow.Operation{Kind: escrow.OpSubmitProof, Index: 0}},
		{"verify without signature", escrow.Operation{Kind: escrow.OpVerifyMilestone, Index: 0, Message: []byte("m")}},
		{"verify without message", escrow.Operation{Kind: escrow.OpVerifyMilestone, Index: 0, Signature: make([]byte, 64)}},
		{"verifier rotation to bogus address", escrow.Operation{Kind: escrow.OpUpdateVerifier, NewVerifier: "nope"}},
		{"unknown kind", escrow.Operation{Kind: escrow.OpKind(99)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := buildAppArgs(tc.op)
			assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument))
		})
	}

	t.Run("valid rotation passes", func(t *testing.T) {
		args, err := buildAppArgs(escrow.Operation{Kind: escrow.OpUpdateVerifier, NewVerifier: verifier})
		require.NoError(t, err)
		assert.Equal(t, []byte{MethodUpdateVerifier}, args[0])
		assert.Equal(t, verifier, string(args[1]))
	})
}

func TestParseOperationRoundTrip(t *testing.T) {
	verifier := testAddress(t)

	ops := []escrow.Operation{
		{Kind: escrow.OpAddMilestone, Index: 3, Amount: 750, DueDate: 1700000000},
		{Kind: escrow.OpSubmitProof, Index: 1, ProofHash: "sha256:deadbeef"},
		{Kind: escrow.OpVerifyMilestone, Index: 2, Signature: make([]byte, 64), Message: []byte("attest")},
		{Kind: escrow.OpReleasePayment, Index: 5},
		{Kind: escrow.OpEmergencyPause},
		{Kind: escrow.OpResumeContract},
		{Kind: escrow.OpUpdateVerifier, NewVerifier: verifier},
		{Kind: escrow.OpTerminateContract},
	}

	for _, op := range ops {
		t.Run(op.Kind.Name(), func(t *testing.T) {
			args, err := buildAppArgs(op)
			require.NoError(t, err)

			parsed, err := ParseOperation(args)
			require.NoError(t, err)
			assert.Equal(t, op.Kind, parsed.Kind)
			assert.Equal(t, op.Index, parsed.Index)
			assert.Equal(t, op.Amount, parsed.Amount)
			assert.Equal(t, op.DueDate, parsed.DueDate)
			assert.Equal(t, op.ProofHash, parsed.ProofHash)
			assert.Equal(t, op.NewVerifier, parsed.NewVerifier)
		})
	}

	t.Run("missing selector", func(t *testing.T) {
		_, err := ParseOperation(nil)
		assert.True(t, utils.IsCode(err, utils.ErrCodeRejected))
	})

	t.Run("unknown selector", func(t *testing.T) {
		_, err := ParseOperation([][]byte{{42}})
		assert.True(t, utils.IsCode(err, utils.ErrCodeRejected))
	})

	t.Run("too few arguments", func(t *testing.T) {
		_, err := ParseOperation([][]byte{{MethodAddMilestone}})
		assert.True(t, utils.IsCode(err, utils.ErrCodeRejected))
	})
}

func TestTransactionEncoding(t *testing.T) {
	sender := testAddress(t)

	txn := &Transaction{
		Sender:      sender,
		AppID:       1234,
		Fee:         1000,
		FirstValid:  7,
		LastValid:   1007,
		GenesisID:   "test-net",
		GenesisHash: []byte{1, 2, 3, 4},
		AppArgs:     [][]byte{{MethodReleasePayment}, EncodeUint64(9)},
	}

	decoded, err := DecodeTransaction(txn.Encode())
	require.NoError(t, err)
	assert.Equal(t, txn, decoded)

	t.Run("rejects foreign payloads", func(t *testing.T) {
		_, err := DecodeTransaction([]byte("not a transaction"))
		assert.True(t, utils.IsCode(err, utils.ErrCodeRejected))
	})

	t.Run("rejects truncated payloads", func(t *testing.T) {
		raw := txn.Encode()
		_, err := DecodeTransaction(raw[:len(raw)-3])
		assert.True(t, utils.IsCode(err, utils.ErrCodeRejected))
	})
}

func TestSignedTransactionEncoding(t *testing.T) {
	stx := &SignedTransaction{
		TxnBytes:  []byte("canonical bytes"),
		Signature: make([]byte, 64),
	}

	decoded, err := DecodeSignedTransaction(stx.Encode())
	require.NoError(t, err)
	assert.Equal(t, stx, decoded)

	t.Run("rejects short signature", func(t *testing.T) {
		bad := &SignedTransaction{TxnBytes: []byte("x"), Signature: make([]byte, 10)}
		_, err := DecodeSignedTransaction(bad.Encode())
		assert.True(t, utils.IsCode(err, utils.ErrCodeRejected))
	})
}
