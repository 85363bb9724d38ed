package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairlens/escrow-engine/internal/txbuilder"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

type scriptedApprover struct {
	approve bool
	err     error
}

func (a scriptedApprover) Approve(ctx context.Context, txns [][]byte) (bool, error) {
	return a.approve, a.err
}

func newTestSigner(t *testing.T, ttl time.Duration, approver Approver) *LocalSigner {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return NewLocalSigner(key, ttl, approver)
}

func TestConnectLifecycle(t *testing.T) {
	ctx := context.Background()
	signer := newTestSigner(t, time.Hour, nil)

	assert.Empty(t, signer.Address(), "address must be empty before connect")

	address, err := signer.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, utils.IsValidAddress(address))
	assert.Equal(t, address, signer.Address())

	reconnected, err := signer.Reconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, address, reconnected)

	require.NoError(t, signer.Disconnect())
	assert.Empty(t, signer.Address())

	_, err = signer.Reconnect(ctx)
	assert.True(t, utils.IsCode(err, utils.ErrCodeUnauthorized))
}

func TestReconnectAfterExpiry(t *testing.T) {
	ctx := context.Background()
	signer := newTestSigner(t, time.Millisecond, nil)

	_, err := signer.Connect(ctx)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = signer.Reconnect(ctx)
	assert.True(t, utils.IsCode(err, utils.ErrCodeUnauthorized))
}

func TestSignTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("signs selected indices only", func(t *testing.T) {
		signer := newTestSigner(t, time.Hour, nil)
		address, err := signer.Connect(ctx)
		require.NoError(t, err)

		payload := []byte("canonical transaction bytes")
		passthrough := []byte("someone else signs this")

		out, err := signer.SignTransactions(ctx, [][]byte{payload, passthrough}, []int{0})
		require.NoError(t, err)
		require.Len(t, out, 2)

		stx, err := txbuilder.DecodeSignedTransaction(out[0])
		require.NoError(t, err)
		assert.Equal(t, payload, stx.TxnBytes)

		pub, err := utils.DecodePublicKey(address)
		require.NoError(t, err)
		assert.True(t, ed25519.Verify(pub, stx.TxnBytes, stx.Signature))

		// Non-selected transactions pass through untouched.
		assert.Equal(t, passthrough, out[1])
	})

	t.Run("user decline is terminal", func(t *testing.T) {
		signer := newTestSigner(t, time.Hour, scriptedApprover{approve: false})
		_, err := signer.Connect(ctx)
		require.NoError(t, err)

		_, err = signer.SignTransactions(ctx, [][]byte{[]byte("x")}, []int{0})
		assert.True(t, utils.IsCode(err, utils.ErrCodeSigningCancelled))
	})

	t.Run("prompt failure is a transport error", func(t *testing.T) {
		signer := newTestSigner(t, time.Hour, scriptedApprover{err: errors.New("prompt unreachable")})
		_, err := signer.Connect(ctx)
		require.NoError(t, err)

		_, err = signer.SignTransactions(ctx, [][]byte{[]byte("x")}, []int{0})
		assert.True(t, utils.IsCode(err, utils.ErrCodeTransport))
	})

	t.Run("requires connected session", func(t *testing.T) {
		signer := newTestSigner(t, time.Hour, nil)
		_, err := signer.SignTransactions(ctx, [][]byte{[]byte("x")}, []int{0})
		assert.True(t, utils.IsCode(err, utils.ErrCodeUnauthorized))
	})

	t.Run("index out of range", func(t *testing.T) {
		signer := newTestSigner(t, time.Hour, nil)
		_, err := signer.Connect(ctx)
		require.NoError(t, err)

		_, err = signer.SignTransactions(ctx, [][]byte{[]byte("x")}, []int{3})
		assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument))
	})
}
