package repository

// Schema definitions for the kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaCredits = `
CREATE TABLE IF NOT EXISTS credits (
    id TEXT PRIMARY KEY,
    producer_id TEXT NOT NULL,
    amount REAL NOT NULL,
    status TEXT NOT NULL,
    facility_name TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    method TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_credits_producer ON credits(producer_id);
CREATE INDEX IF NOT EXISTS idx_credits_status ON credits(status);
CREATE INDEX IF NOT EXISTS idx_credits_created ON credits(created_at);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    from_user_id TEXT NOT NULL DEFAULT '',
    to_user_id TEXT NOT NULL DEFAULT '',
    amount REAL NOT NULL,
    type TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(to_user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
`

const schemaListings = `
CREATE TABLE IF NOT EXISTS listings (
    id TEXT PRIMARY KEY,
    credit_type TEXT NOT NULL,
    price_per_credit REAL NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_type ON listings(credit_type);
CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
`

const schemaStats = `
CREATE TABLE IF NOT EXISTS stats (
    name TEXT PRIMARY KEY,
    value REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// schemaAlertResolutions stores auditor resolutions keyed by the
// deterministic alert id, so they survive recomputation.
const schemaAlertResolutions = `
CREATE TABLE IF NOT EXISTS alert_resolutions (
    alert_id TEXT PRIMARY KEY,
    resolution TEXT NOT NULL,
    resolved_at TIMESTAMP NOT NULL
);
`

const schemaScreeningRules = `
CREATE TABLE IF NOT EXISTS screening_rules (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    kind TEXT NOT NULL,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    risk_score REAL NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_screening_rules_enabled ON screening_rules(enabled);
CREATE INDEX IF NOT EXISTS idx_screening_rules_kind ON screening_rules(kind);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCredits,
		schemaTransactions,
		schemaListings,
		schemaStats,
		schemaAlertResolutions,
		schemaScreeningRules,
	}
}
