package confirm

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fairlens/escrow-engine/internal/ledger"
	"github.com/fairlens/escrow-engine/internal/models"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// Config bounds the submission retry and confirmation polling behavior
type Config struct {
	PollInterval  time.Duration `json:"poll_interval"`
	MaxPolls      int           `json:"max_polls"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
	MaxRetryDelay time.Duration `json:"max_retry_delay"`
}

// DefaultConfig returns sane polling bounds
func DefaultConfig() Config {
	return Config{
		PollInterval:  2 * time.Second,
		MaxPolls:      10,
		RetryAttempts: 3,
		RetryDelay:    500 * time.Millisecond,
		MaxRetryDelay: 8 * time.Second,
	}
}

// OutcomeStatus classifies a submission outcome
type OutcomeStatus string

const (
	OutcomeConfirmed OutcomeStatus = "confirmed"
	OutcomeRejected  OutcomeStatus = "rejected"
	// OutcomePending means confirmation is undetermined: the transaction may
	// still land after the local polling budget, so the caller re-queries
	// later instead of assuming failure.
	OutcomePending OutcomeStatus = "pending"
)

// Outcome is the discriminated result of submit-and-confirm
type Outcome struct {
	Status         OutcomeStatus
	TxID           string
	ConfirmedRound uint64
	Reason         string
	Event          *models.EscrowEvent
}

// Submitter sends signed transactions and polls for inclusion. Transport
// errors retry with bounded exponential backoff; deterministic rejections
// surface unchanged, never retried.
type Submitter struct {
	node   ledger.Node
	config Config
	logger *logrus.Logger
}

// NewSubmitter creates a submitter over the given node
func NewSubmitter(node ledger.Node, config Config) *Submitter {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.MaxPolls <= 0 {
		config.MaxPolls = DefaultConfig().MaxPolls
	}
	return &Submitter{
		node:   node,
		config: config,
		logger: utils.GetLogger(),
	}
}

// Submit sends raw signed bytes, retrying transport failures with backoff.
// After exhaustion the error carries CONFIRMATION_PENDING semantics: the
// transaction may or may not have reached the network.
func (s *Submitter) Submit(ctx context.Context, signed []byte) (string, error) {
	delay := s.config.RetryDelay
	var lastErr error

	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		txID, err := s.node.SubmitRawTransaction(ctx, signed)
		if err == nil {
			return txID, nil
		}
		if !utils.IsRetryable(err) {
			return "", err
		}
		lastErr = err

		s.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("Transaction submission transport failure")

		if attempt == s.config.RetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", utils.NewAppError(utils.ErrCodeTransport, "Submission cancelled", ctx.Err().Error())
		case <-time.After(delay):
		}
		delay *= 2
		if s.config.MaxRetryDelay > 0 && delay > s.config.MaxRetryDelay {
			delay = s.config.MaxRetryDelay
		}
	}

	return "", utils.NewAppError(utils.ErrCodePending, "Submission outcome unknown after retries", lastErr.Error())
}

// WaitForConfirmation polls the node up to the configured budget. A timeout
// is not a failure: the outcome is Pending and the caller may poll again.
func (s *Submitter) WaitForConfirmation(ctx context.Context, txID string) *Outcome {
	for poll := 0; poll < s.config.MaxPolls; poll++ {
		info, err := s.node.PendingTransactionInfo(ctx, txID)
		if err != nil {
			// Unknown or unreachable: keep polling, the transaction may not
			// have propagated yet.
			if !utils.IsRetryable(err) && !utils.IsCode(err, utils.ErrCodeNotFound) {
				return &Outcome{Status: OutcomeRejected, TxID: txID, Reason: err.Error()}
			}
		} else if info.PoolError != "" {
			return &Outcome{Status: OutcomeRejected, TxID: txID, Reason: info.PoolError}
		} else if info.ConfirmedRound > 0 {
			return &Outcome{
				Status:         OutcomeConfirmed,
				TxID:           txID,
				ConfirmedRound: info.ConfirmedRound,
				Event:          info.Event,
			}
		}

		select {
		case <-ctx.Done():
			return &Outcome{Status: OutcomePending, TxID: txID}
		case <-time.After(s.config.PollInterval):
		}
	}

	s.logger.WithField("tx_id", txID).Info("Confirmation polling budget exhausted, leaving transaction pending")
	return &Outcome{Status: OutcomePending, TxID: txID}
}

// SubmitAndWait is the full submit-then-poll pipeline
func (s *Submitter) SubmitAndWait(ctx context.Context, signed []byte) (*Outcome, error) {
	txID, err := s.Submit(ctx, signed)
	if err != nil {
		if utils.IsCode(err, utils.ErrCodePending) {
			return &Outcome{Status: OutcomePending}, nil
		}
		return nil, err
	}
	return s.WaitForConfirmation(ctx, txID), nil
}
