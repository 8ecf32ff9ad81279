package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. The four Fetch
// methods are the source collections of one refresh; each can fail
// independently without blocking the others.
type Repository interface {
	// Source collections
	FetchCredits(ctx context.Context) ([]Credit, error)
	FetchTransactions(ctx context.Context) ([]Transaction, error)
	FetchListings(ctx context.Context) ([]Listing, error)
	FetchStats(ctx context.Context) (map[string]float64, error)

	// Ingest operations (used by the registry's write path and tests)
	SaveCredit(ctx context.Context, c *Credit) error
	SaveTransaction(ctx context.Context, tx *Transaction) error
	SaveListing(ctx context.Context, l *Listing) error
	SetStat(ctx context.Context, name string, value float64) error

	// Alert resolutions persist across refreshes, keyed by the
	// deterministic alert id.
	SaveResolution(ctx context.Context, res *AlertResolution) error
	ListResolutions(ctx context.Context) ([]AlertResolution, error)

	// Screening rule configuration
	SaveScreeningRule(ctx context.Context, rule *ScreeningRule) error
	ListScreeningRules(ctx context.Context) ([]*ScreeningRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AlertResolution records an auditor's resolution of an alert. Because
// alert ids are deterministic, a resolution re-attaches to the same
// finding when the next refresh recomputes it.
type AlertResolution struct {
	AlertID    string    `json:"alertId"`
	Resolution string    `json:"resolution"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
