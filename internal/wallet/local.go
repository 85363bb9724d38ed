package wallet

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fairlens/escrow-engine/internal/txbuilder"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// LocalSigner implements Wallet with an in-memory ed25519 key. The private
// key is never persisted or transmitted; signing happens in-process behind
// the Approver prompt.
type LocalSigner struct {
	key        ed25519.PrivateKey
	address    string
	approver   Approver
	sessionTTL time.Duration

	mu          sync.Mutex
	connected   bool
	connectedAt time.Time
	logger      *logrus.Logger
}

// NewLocalSigner creates a signer bound to the given private key
func NewLocalSigner(key ed25519.PrivateKey, sessionTTL time.Duration, approver Approver) *LocalSigner {
	if approver == nil {
		approver = AutoApprover{}
	}
	return &LocalSigner{
		key:        key,
		address:    utils.EncodeAddress(key.Public().(ed25519.PublicKey)),
		approver:   approver,
		sessionTTL: sessionTTL,
		logger:     utils.GetLogger(),
	}
}

// Connect opens a new signing session
func (s *LocalSigner) Connect(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = true
	s.connectedAt = time.Now()
	s.logger.WithField("address", s.address).Info("Wallet connected")
	return s.address, nil
}

// Reconnect recovers the session if it has not expired
func (s *LocalSigner) Reconnect(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || (s.sessionTTL > 0 && time.Since(s.connectedAt) > s.sessionTTL) {
		s.connected = false
		return "", utils.NewAppError(utils.ErrCodeUnauthorized, "Wallet session expired",
			"explicit reconnect required")
	}
	return s.address, nil
}

// Address returns the connected address
func (s *LocalSigner) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ""
	}
	return s.address
}

// SignTransactions presents the batch to the approver and signs the
// selected indices. Non-selected transactions pass through unsigned.
func (s *LocalSigner) SignTransactions(ctx context.Context, txns [][]byte, signerIndices []int) ([][]byte, error) {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return nil, utils.NewAppError(utils.ErrCodeUnauthorized, "Wallet not connected")
	}

	approved, err := s.approver.Approve(ctx, txns)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeTransport, "Signing prompt failed", err.Error())
	}
	if !approved {
		s.logger.WithField("address", s.address).Warn("Signing request declined")
		return nil, utils.NewAppError(utils.ErrCodeSigningCancelled, "User declined the signing request")
	}

	selected := make(map[int]bool, len(signerIndices))
	for _, idx := range signerIndices {
		if idx < 0 || idx >= len(txns) {
			return nil, utils.NewAppError(utils.ErrCodeInvalidArgument, "Signer index out of range")
		}
		selected[idx] = true
	}

	out := make([][]byte, len(txns))
	for i, txn := range txns {
		if !selected[i] {
			out[i] = txn
			continue
		}
		signed := &txbuilder.SignedTransaction{
			TxnBytes:  txn,
			Signature: ed25519.Sign(s.key, txn),
		}
		out[i] = signed.Encode()
	}
	return out, nil
}

// Disconnect ends the session
func (s *LocalSigner) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.logger.WithField("address", s.address).Info("Wallet disconnected")
	return nil
}
