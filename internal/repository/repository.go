// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opencredit/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// FetchCredits returns every credit, oldest first.
func (r *SQLRepository) FetchCredits(ctx context.Context) ([]domain.Credit, error) {
	query := `
		SELECT id, producer_id, amount, status,
			   facility_name, location, method,
			   created_at, updated_at
		FROM credits
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var credits []domain.Credit
	for rows.Next() {
		var c domain.Credit
		if err := rows.Scan(
			&c.ID, &c.ProducerID, &c.Amount, &c.Status,
			&c.ProductionDetails.FacilityName,
			&c.ProductionDetails.Location,
			&c.ProductionDetails.Method,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		credits = append(credits, c)
	}

	return credits, rows.Err()
}

// FetchTransactions returns every transaction, oldest first.
func (r *SQLRepository) FetchTransactions(ctx context.Context) ([]domain.Transaction, error) {
	query := `
		SELECT id, from_user_id, to_user_id, amount, type, status, created_at
		FROM transactions
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(
			&tx.ID, &tx.FromUserID, &tx.ToUserID,
			&tx.Amount, &tx.Type, &tx.Status, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// FetchListings returns every listing, oldest first.
func (r *SQLRepository) FetchListings(ctx context.Context) ([]domain.Listing, error) {
	query := `
		SELECT id, credit_type, price_per_credit, status, created_at
		FROM listings
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		var l domain.Listing
		if err := rows.Scan(
			&l.ID, &l.CreditType, &l.PricePerCredit, &l.Status, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

// FetchStats returns the precomputed platform statistics.
func (r *SQLRepository) FetchStats(ctx context.Context) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, value FROM stats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		stats[name] = value
	}

	return stats, rows.Err()
}

// SaveCredit stores or replaces a credit.
func (r *SQLRepository) SaveCredit(ctx context.Context, c *domain.Credit) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: credit id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO credits (
			id, producer_id, amount, status,
			facility_name, location, method,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			producer_id = excluded.producer_id,
			amount = excluded.amount,
			status = excluded.status,
			facility_name = excluded.facility_name,
			location = excluded.location,
			method = excluded.method,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.ProducerID, c.Amount, c.Status,
		c.ProductionDetails.FacilityName,
		c.ProductionDetails.Location,
		c.ProductionDetails.Method,
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// SaveTransaction stores or replaces a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, from_user_id, to_user_id, amount, type, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			from_user_id = excluded.from_user_id,
			to_user_id = excluded.to_user_id,
			amount = excluded.amount,
			type = excluded.type,
			status = excluded.status
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.FromUserID, tx.ToUserID,
		tx.Amount, tx.Type, tx.Status, tx.CreatedAt,
	)
	return err
}

// SaveListing stores or replaces a listing.
func (r *SQLRepository) SaveListing(ctx context.Context, l *domain.Listing) error {
	if l == nil || l.ID == "" {
		return fmt.Errorf("%w: listing id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO listings (
			id, credit_type, price_per_credit, status, created_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			credit_type = excluded.credit_type,
			price_per_credit = excluded.price_per_credit,
			status = excluded.status
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		l.ID, l.CreditType, l.PricePerCredit, l.Status, l.CreatedAt,
	)
	return err
}

// SetStat stores or replaces one precomputed statistic.
func (r *SQLRepository) SetStat(ctx context.Context, name string, value float64) error {
	if name == "" {
		return fmt.Errorf("%w: stat name is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO stats (name, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), name, value, time.Now().UTC())
	return err
}

// SaveResolution stores or replaces an alert resolution.
func (r *SQLRepository) SaveResolution(ctx context.Context, res *domain.AlertResolution) error {
	if res == nil || res.AlertID == "" {
		return fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alert_resolutions (alert_id, resolution, resolved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(alert_id) DO UPDATE SET
			resolution = excluded.resolution,
			resolved_at = excluded.resolved_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		res.AlertID, res.Resolution, res.ResolvedAt,
	)
	return err
}

// ListResolutions returns every stored alert resolution.
func (r *SQLRepository) ListResolutions(ctx context.Context) ([]domain.AlertResolution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT alert_id, resolution, resolved_at
		FROM alert_resolutions
		ORDER BY resolved_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resolutions []domain.AlertResolution
	for rows.Next() {
		var res domain.AlertResolution
		if err := rows.Scan(&res.AlertID, &res.Resolution, &res.ResolvedAt); err != nil {
			return nil, err
		}
		resolutions = append(resolutions, res)
	}

	return resolutions, rows.Err()
}

// SaveScreeningRule stores a screening rule version.
func (r *SQLRepository) SaveScreeningRule(ctx context.Context, rule *domain.ScreeningRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screening_rules (
			id, name, description, version, kind, expression,
			severity, risk_score, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			kind = excluded.kind,
			expression = excluded.expression,
			severity = excluded.severity,
			risk_score = excluded.risk_score,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Version,
		rule.Kind, rule.Expression, rule.Severity, rule.RiskScore,
		enabled, now, now,
	)
	return err
}

// ListScreeningRules returns every enabled screening rule, latest
// version per id.
func (r *SQLRepository) ListScreeningRules(ctx context.Context) ([]*domain.ScreeningRule, error) {
	query := `
		SELECT id, name, description, version, kind, expression,
			   severity, risk_score, enabled
		FROM screening_rules
		WHERE enabled = 1
		ORDER BY id, version DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreeningRule
	seen := make(map[string]bool)
	for rows.Next() {
		var rule domain.ScreeningRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Version,
			&rule.Kind, &rule.Expression, &rule.Severity, &rule.RiskScore,
			&enabled,
		); err != nil {
			return nil, err
		}

		if seen[rule.ID] {
			continue
		}
		seen[rule.ID] = true

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
