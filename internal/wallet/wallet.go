package wallet

import "context"

// Wallet is the externally-held signing capability. The engine never sees
// raw key material beyond what the concrete implementation keeps in memory;
// the facade receives a Wallet by injection, never as ambient global state.
type Wallet interface {
	// Connect establishes a signing session and returns the caller address.
	Connect(ctx context.Context) (string, error)
	// Reconnect recovers a previously connected address while the session
	// is still valid; otherwise it fails and an explicit Connect is needed.
	Reconnect(ctx context.Context) (string, error)
	// Address returns the connected address, or "" when disconnected.
	Address() string
	// SignTransactions signs the transactions at signerIndices and passes
	// the rest through unsigned, returning exactly len(txns) byte strings.
	// A user decline fails with SIGNING_CANCELLED and must not be retried.
	SignTransactions(ctx context.Context, txns [][]byte, signerIndices []int) ([][]byte, error)
	// Disconnect ends the session.
	Disconnect() error
}

// Approver models the user-facing signing prompt. The wait is user-paced
// and has no system-imposed bound.
type Approver interface {
	Approve(ctx context.Context, txns [][]byte) (bool, error)
}

// AutoApprover approves every request; the default for non-interactive use
type AutoApprover struct{}

func (AutoApprover) Approve(ctx context.Context, txns [][]byte) (bool, error) {
	return true, nil
}
