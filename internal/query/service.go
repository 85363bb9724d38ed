package query

import (
	"context"

	"github.com/fairlens/escrow-engine/internal/models"
	"github.com/fairlens/escrow-engine/internal/storage"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// Service is the read-only projection of escrow state for display and
// decision-making. Pure reads, no side effects; a contract that does not
// exist yet (e.g. queried right after an unconfirmed deployment) is a
// NOT_FOUND result, not a fault.
type Service struct {
	store storage.Storage
}

// NewService creates a query service over the storage projection
func NewService(store storage.Storage) *Service {
	return &Service{store: store}
}

// GetContract returns one contract
func (s *Service) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	contract, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Contract not found", id)
	}
	return contract, nil
}

// GetContracts lists all contracts
func (s *Service) GetContracts(ctx context.Context) ([]*models.Contract, error) {
	return s.store.GetContracts(ctx)
}

// GetMilestones lists a contract's milestones in index order
func (s *Service) GetMilestones(ctx context.Context, contractID string) ([]*models.Milestone, error) {
	if _, err := s.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	return s.store.GetMilestones(ctx, contractID)
}

// GetMilestone returns one milestone
func (s *Service) GetMilestone(ctx context.Context, contractID string, index uint64) (*models.Milestone, error) {
	milestone, err := s.store.GetMilestone(ctx, contractID, index)
	if err != nil {
		return nil, err
	}
	if milestone == nil {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Milestone not found")
	}
	return milestone, nil
}

// GetEvents lists the newest audit events for a contract
func (s *Service) GetEvents(ctx context.Context, contractID string, limit int) ([]*models.EscrowEvent, error) {
	if _, err := s.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	return s.store.GetEvents(ctx, contractID, limit)
}

// GetTransaction returns one submission record
func (s *Service) GetTransaction(ctx context.Context, txID string) (*models.TransactionRecord, error) {
	record, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Transaction not found", txID)
	}
	return record, nil
}
