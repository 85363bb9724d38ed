package storage

// Migration represents a single schema migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns the SQLite schema migrations
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create contracts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS contracts (
					id TEXT PRIMARY KEY,
					tender_id TEXT NOT NULL,
					app_id INTEGER NOT NULL,
					escrow_address TEXT NOT NULL,
					government_address TEXT NOT NULL,
					contractor_address TEXT NOT NULL,
					verifier_address TEXT NOT NULL,
					total_amount INTEGER NOT NULL,
					status TEXT NOT NULL,
					verifier_updated_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_contracts_app_id ON contracts(app_id);
				CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);
			`,
		},
		{
			Version:     "002",
			Description: "Create milestones table",
			SQL: `
				CREATE TABLE IF NOT EXISTS milestones (
					contract_id TEXT NOT NULL,
					milestone_index INTEGER NOT NULL,
					amount INTEGER NOT NULL,
					due_date INTEGER NOT NULL,
					status TEXT NOT NULL,
					proof_hash TEXT NOT NULL DEFAULT '',
					completed_at TIMESTAMP,
					verified_at TIMESTAMP,
					paid_at TIMESTAMP,
					PRIMARY KEY (contract_id, milestone_index),
					FOREIGN KEY (contract_id) REFERENCES contracts(id)
				);
				CREATE INDEX IF NOT EXISTS idx_milestones_status ON milestones(status);
			`,
		},
		{
			Version:     "003",
			Description: "Create escrow events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS escrow_events (
					id TEXT PRIMARY KEY,
					contract_id TEXT NOT NULL,
					operation TEXT NOT NULL,
					caller TEXT NOT NULL,
					milestone_index INTEGER,
					contract_status TEXT NOT NULL,
					milestone_status TEXT,
					details TEXT NOT NULL DEFAULT '',
					timestamp TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_events_contract ON escrow_events(contract_id, timestamp);
			`,
		},
		{
			Version:     "004",
			Description: "Create transactions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					tx_id TEXT NOT NULL UNIQUE,
					contract_id TEXT NOT NULL,
					operation TEXT NOT NULL,
					milestone_index INTEGER,
					status TEXT NOT NULL,
					confirmed_round INTEGER NOT NULL DEFAULT 0,
					reason TEXT NOT NULL DEFAULT '',
					submitted_at TIMESTAMP NOT NULL,
					resolved_at TIMESTAMP
				);
				CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
				CREATE INDEX IF NOT EXISTS idx_transactions_contract ON transactions(contract_id);
			`,
		},
	}
}

// GetPostgreSQLMigrations returns the PostgreSQL schema migrations
func GetPostgreSQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create contracts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS contracts (
					id TEXT PRIMARY KEY,
					tender_id TEXT NOT NULL,
					app_id BIGINT NOT NULL,
					escrow_address TEXT NOT NULL,
					government_address TEXT NOT NULL,
					contractor_address TEXT NOT NULL,
					verifier_address TEXT NOT NULL,
					total_amount BIGINT NOT NULL,
					status TEXT NOT NULL,
					verifier_updated_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_contracts_app_id ON contracts(app_id);
				CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);
			`,
		},
		{
			Version:     "002",
			Description: "Create milestones table",
			SQL: `
				CREATE TABLE IF NOT EXISTS milestones (
					contract_id TEXT NOT NULL,
					milestone_index BIGINT NOT NULL,
					amount BIGINT NOT NULL,
					due_date BIGINT NOT NULL,
					status TEXT NOT NULL,
					proof_hash TEXT NOT NULL DEFAULT '',
					completed_at TIMESTAMPTZ,
					verified_at TIMESTAMPTZ,
					paid_at TIMESTAMPTZ,
					PRIMARY KEY (contract_id, milestone_index),
					FOREIGN KEY (contract_id) REFERENCES contracts(id)
				);
				CREATE INDEX IF NOT EXISTS idx_milestones_status ON milestones(status);
			`,
		},
		{
			Version:     "003",
			Description: "Create escrow events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS escrow_events (
					id TEXT PRIMARY KEY,
					contract_id TEXT NOT NULL,
					operation TEXT NOT NULL,
					caller TEXT NOT NULL,
					milestone_index BIGINT,
					contract_status TEXT NOT NULL,
					milestone_status TEXT,
					details TEXT NOT NULL DEFAULT '',
					timestamp TIMESTAMPTZ NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_events_contract ON escrow_events(contract_id, timestamp);
			`,
		},
		{
			Version:     "004",
			Description: "Create transactions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					tx_id TEXT NOT NULL UNIQUE,
					contract_id TEXT NOT NULL,
					operation TEXT NOT NULL,
					milestone_index BIGINT,
					status TEXT NOT NULL,
					confirmed_round BIGINT NOT NULL DEFAULT 0,
					reason TEXT NOT NULL DEFAULT '',
					submitted_at TIMESTAMPTZ NOT NULL,
					resolved_at TIMESTAMPTZ
				);
				CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
				CREATE INDEX IF NOT EXISTS idx_transactions_contract ON transactions(contract_id);
			`,
		},
	}
}
