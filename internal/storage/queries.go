package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fairlens/escrow-engine/internal/models"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// sqlBackend implements the query surface shared by both SQL dialects.
// Queries are written with ? placeholders; rebind rewrites them to $n for
// PostgreSQL.
type sqlBackend struct {
	db       *sql.DB
	postgres bool
}

func (b *sqlBackend) rebind(query string) string {
	if !b.postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (b *sqlBackend) ping() error {
	if b.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return b.db.Ping()
}

// SaveContract upserts a contract projection row
func (b *sqlBackend) SaveContract(ctx context.Context, contract *models.Contract) error {
	query := b.rebind(`
		INSERT INTO contracts
		(id, tender_id, app_id, escrow_address, government_address, contractor_address,
		 verifier_address, total_amount, status, verifier_updated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			verifier_address = excluded.verifier_address,
			verifier_updated_at = excluded.verifier_updated_at,
			updated_at = excluded.updated_at
	`)

	_, err := b.db.ExecContext(ctx, query,
		contract.ID, contract.TenderID, contract.AppID, contract.EscrowAddress,
		contract.GovernmentAddress, contract.ContractorAddress, contract.VerifierAddress,
		contract.TotalAmount, contract.Status, contract.VerifierUpdatedAt,
		contract.CreatedAt, contract.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save contract", err.Error())
	}
	return nil
}

func scanContract(row interface{ Scan(...interface{}) error }) (*models.Contract, error) {
	var c models.Contract
	var verifierUpdated sql.NullTime
	err := row.Scan(&c.ID, &c.TenderID, &c.AppID, &c.EscrowAddress,
		&c.GovernmentAddress, &c.ContractorAddress, &c.VerifierAddress,
		&c.TotalAmount, &c.Status, &verifierUpdated, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if verifierUpdated.Valid {
		c.VerifierUpdatedAt = &verifierUpdated.Time
	}
	return &c, nil
}

const contractColumns = `id, tender_id, app_id, escrow_address, government_address,
	contractor_address, verifier_address, total_amount, status, verifier_updated_at,
	created_at, updated_at`

// GetContract returns a contract by id, or nil when absent
func (b *sqlBackend) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	query := b.rebind(`SELECT ` + contractColumns + ` FROM contracts WHERE id = ?`)
	contract, err := scanContract(b.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to load contract", err.Error())
	}
	return contract, nil
}

// GetContracts returns all contract projections
func (b *sqlBackend) GetContracts(ctx context.Context) ([]*models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts ORDER BY created_at DESC`
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list contracts", err.Error())
	}
	defer rows.Close()

	var contracts []*models.Contract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan contract", err.Error())
		}
		contracts = append(contracts, contract)
	}
	return contracts, rows.Err()
}

// SaveMilestone upserts a milestone projection row
func (b *sqlBackend) SaveMilestone(ctx context.Context, m *models.Milestone) error {
	query := b.rebind(`
		INSERT INTO milestones
		(contract_id, milestone_index, amount, due_date, status, proof_hash,
		 completed_at, verified_at, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contract_id, milestone_index) DO UPDATE SET
			status = excluded.status,
			proof_hash = excluded.proof_hash,
			completed_at = excluded.completed_at,
			verified_at = excluded.verified_at,
			paid_at = excluded.paid_at
	`)

	_, err := b.db.ExecContext(ctx, query,
		m.ContractID, m.Index, m.Amount, m.DueDate, m.Status, m.ProofHash,
		m.CompletedAt, m.VerifiedAt, m.PaidAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save milestone", err.Error())
	}
	return nil
}

func scanMilestone(row interface{ Scan(...interface{}) error }) (*models.Milestone, error) {
	var m models.Milestone
	var completed, verified, paid sql.NullTime
	err := row.Scan(&m.ContractID, &m.Index, &m.Amount, &m.DueDate, &m.Status,
		&m.ProofHash, &completed, &verified, &paid)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		m.CompletedAt = &completed.Time
	}
	if verified.Valid {
		m.VerifiedAt = &verified.Time
	}
	if paid.Valid {
		m.PaidAt = &paid.Time
	}
	return &m, nil
}

const milestoneColumns = `contract_id, milestone_index, amount, due_date, status,
	proof_hash, completed_at, verified_at, paid_at`

// GetMilestone returns one milestone, or nil when absent
func (b *sqlBackend) GetMilestone(ctx context.Context, contractID string, index uint64) (*models.Milestone, error) {
	query := b.rebind(`SELECT ` + milestoneColumns + ` FROM milestones WHERE contract_id = ? AND milestone_index = ?`)
	milestone, err := scanMilestone(b.db.QueryRowContext(ctx, query, contractID, index))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to load milestone", err.Error())
	}
	return milestone, nil
}

// GetMilestones returns a contract's milestones in index order
func (b *sqlBackend) GetMilestones(ctx context.Context, contractID string) ([]*models.Milestone, error) {
	query := b.rebind(`SELECT ` + milestoneColumns + ` FROM milestones WHERE contract_id = ? ORDER BY milestone_index`)
	rows, err := b.db.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list milestones", err.Error())
	}
	defer rows.Close()

	var milestones []*models.Milestone
	for rows.Next() {
		milestone, err := scanMilestone(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan milestone", err.Error())
		}
		milestones = append(milestones, milestone)
	}
	return milestones, rows.Err()
}

// SaveEvent appends an immutable audit event
func (b *sqlBackend) SaveEvent(ctx context.Context, event *models.EscrowEvent) error {
	query := b.rebind(`
		INSERT INTO escrow_events
		(id, contract_id, operation, caller, milestone_index, contract_status,
		 milestone_status, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	var milestoneIndex sql.NullInt64
	if event.MilestoneIndex != nil {
		milestoneIndex = sql.NullInt64{Int64: int64(*event.MilestoneIndex), Valid: true}
	}
	var milestoneStatus sql.NullString
	if event.MilestoneStatus != nil {
		milestoneStatus = sql.NullString{String: string(*event.MilestoneStatus), Valid: true}
	}

	_, err := b.db.ExecContext(ctx, query,
		event.ID, event.ContractID, event.Operation, event.Caller,
		milestoneIndex, event.ContractStatus, milestoneStatus, event.Details, event.Timestamp)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save event", err.Error())
	}
	return nil
}

// GetEvents returns the newest events for a contract
func (b *sqlBackend) GetEvents(ctx context.Context, contractID string, limit int) ([]*models.EscrowEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := b.rebind(`
		SELECT id, contract_id, operation, caller, milestone_index, contract_status,
		       milestone_status, details, timestamp
		FROM escrow_events WHERE contract_id = ?
		ORDER BY timestamp DESC LIMIT ?
	`)
	rows, err := b.db.QueryContext(ctx, query, contractID, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list events", err.Error())
	}
	defer rows.Close()

	var events []*models.EscrowEvent
	for rows.Next() {
		var e models.EscrowEvent
		var milestoneIndex sql.NullInt64
		var milestoneStatus sql.NullString
		if err := rows.Scan(&e.ID, &e.ContractID, &e.Operation, &e.Caller,
			&milestoneIndex, &e.ContractStatus, &milestoneStatus, &e.Details, &e.Timestamp); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event", err.Error())
		}
		if milestoneIndex.Valid {
			idx := uint64(milestoneIndex.Int64)
			e.MilestoneIndex = &idx
		}
		if milestoneStatus.Valid {
			status := models.MilestoneStatus(milestoneStatus.String)
			e.MilestoneStatus = &status
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// SaveTransaction records a submission
func (b *sqlBackend) SaveTransaction(ctx context.Context, record *models.TransactionRecord) error {
	query := b.rebind(`
		INSERT INTO transactions
		(id, tx_id, contract_id, operation, milestone_index, status, confirmed_round,
		 reason, submitted_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_id) DO UPDATE SET
			status = excluded.status,
			confirmed_round = excluded.confirmed_round,
			reason = excluded.reason,
			resolved_at = excluded.resolved_at
	`)

	var milestoneIndex sql.NullInt64
	if record.MilestoneIndex != nil {
		milestoneIndex = sql.NullInt64{Int64: int64(*record.MilestoneIndex), Valid: true}
	}

	_, err := b.db.ExecContext(ctx, query,
		record.ID, record.TxID, record.ContractID, record.Operation, milestoneIndex,
		record.Status, record.ConfirmedRound, record.Reason, record.SubmittedAt, record.ResolvedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save transaction", err.Error())
	}
	return nil
}

func scanTransaction(row interface{ Scan(...interface{}) error }) (*models.TransactionRecord, error) {
	var r models.TransactionRecord
	var milestoneIndex sql.NullInt64
	var resolved sql.NullTime
	err := row.Scan(&r.ID, &r.TxID, &r.ContractID, &r.Operation, &milestoneIndex,
		&r.Status, &r.ConfirmedRound, &r.Reason, &r.SubmittedAt, &resolved)
	if err != nil {
		return nil, err
	}
	if milestoneIndex.Valid {
		idx := uint64(milestoneIndex.Int64)
		r.MilestoneIndex = &idx
	}
	if resolved.Valid {
		r.ResolvedAt = &resolved.Time
	}
	return &r, nil
}

const transactionColumns = `id, tx_id, contract_id, operation, milestone_index, status,
	confirmed_round, reason, submitted_at, resolved_at`

// GetTransaction returns one submission record, or nil when absent
func (b *sqlBackend) GetTransaction(ctx context.Context, txID string) (*models.TransactionRecord, error) {
	query := b.rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE tx_id = ?`)
	record, err := scanTransaction(b.db.QueryRowContext(ctx, query, txID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to load transaction", err.Error())
	}
	return record, nil
}

// GetPendingTransactions returns unresolved submissions oldest-first
func (b *sqlBackend) GetPendingTransactions(ctx context.Context, limit int) ([]*models.TransactionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := b.rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE status = ? ORDER BY submitted_at LIMIT ?`)
	rows, err := b.db.QueryContext(ctx, query, models.TransactionPending, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list pending transactions", err.Error())
	}
	defer rows.Close()

	var records []*models.TransactionRecord
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan transaction", err.Error())
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ResolveTransaction marks a submission confirmed or rejected
func (b *sqlBackend) ResolveTransaction(ctx context.Context, txID string, status models.TransactionStatus, confirmedRound uint64, reason string) error {
	query := b.rebind(`
		UPDATE transactions SET status = ?, confirmed_round = ?, reason = ?, resolved_at = ?
		WHERE tx_id = ?
	`)
	result, err := b.db.ExecContext(ctx, query, status, confirmedRound, reason, time.Now().UTC(), txID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to resolve transaction", err.Error())
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Transaction record not found", txID)
	}
	return nil
}

// GetStats returns storage statistics
func (b *sqlBackend) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		query string
		dst   *int64
	}{
		{`SELECT COUNT(*) FROM contracts`, &stats.TotalContracts},
		{`SELECT COUNT(*) FROM milestones`, &stats.TotalMilestones},
		{`SELECT COUNT(*) FROM escrow_events`, &stats.TotalEvents},
	}
	for _, c := range counts {
		if err := b.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to collect stats", err.Error())
		}
	}

	query := b.rebind(`SELECT COUNT(*) FROM transactions WHERE status = ?`)
	if err := b.db.QueryRowContext(ctx, query, models.TransactionPending).Scan(&stats.PendingTransactions); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to collect stats", err.Error())
	}

	// An aggregate like MAX(timestamp) loses the column decltype, so the
	// sqlite driver hands back raw text instead of a time. Select the
	// column itself and let LIMIT do the aggregation.
	var latest time.Time
	err := b.db.QueryRowContext(ctx, `SELECT timestamp FROM escrow_events ORDER BY timestamp DESC LIMIT 1`).Scan(&latest)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to collect stats", err.Error())
	default:
		stats.LatestEvent = &latest
	}

	return stats, nil
}
