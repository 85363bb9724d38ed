package storage

import (
	"context"
	"time"

	"github.com/fairlens/escrow-engine/internal/models"
)

// Storage is the local projection of confirmed escrow state plus the
// submission book-keeping. Rows only change when the authoritative store
// confirms; pending submissions live in the transactions table.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Contract operations
	SaveContract(ctx context.Context, contract *models.Contract) error
	GetContract(ctx context.Context, id string) (*models.Contract, error)
	GetContracts(ctx context.Context) ([]*models.Contract, error)

	// Milestone operations
	SaveMilestone(ctx context.Context, milestone *models.Milestone) error
	GetMilestone(ctx context.Context, contractID string, index uint64) (*models.Milestone, error)
	GetMilestones(ctx context.Context, contractID string) ([]*models.Milestone, error)

	// Audit events
	SaveEvent(ctx context.Context, event *models.EscrowEvent) error
	GetEvents(ctx context.Context, contractID string, limit int) ([]*models.EscrowEvent, error)

	// Transaction records
	SaveTransaction(ctx context.Context, record *models.TransactionRecord) error
	GetTransaction(ctx context.Context, txID string) (*models.TransactionRecord, error)
	GetPendingTransactions(ctx context.Context, limit int) ([]*models.TransactionRecord, error)
	ResolveTransaction(ctx context.Context, txID string, status models.TransactionStatus, confirmedRound uint64, reason string) error

	// Statistics
	GetStats(ctx context.Context) (*Stats, error)
}

// Stats provides storage statistics
type Stats struct {
	TotalContracts      int64      `json:"total_contracts"`
	TotalMilestones     int64      `json:"total_milestones"`
	TotalEvents         int64      `json:"total_events"`
	PendingTransactions int64      `json:"pending_transactions"`
	LatestEvent         *time.Time `json:"latest_event,omitempty"`
}

// Config holds storage configuration
type Config struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
