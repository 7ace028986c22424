package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/zabbix-web/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const memoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a distinct database.
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database. File databases use WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path
	if dsn != memoryPath {
		dsn += "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return engine.NewTransientError("failed to open database", err).WithCode(engine.ErrCodeStore)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return engine.NewTransientError("failed to ping database", err).WithCode(engine.ErrCodeStore)
	}

	// Connection-level setting; the DSN pragma covers pooled file connections.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return engine.NewPermanentError("failed to run migrations", err).WithCode(engine.ErrCodeStore)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// SaveCompilation stores a compilation with its resources and findings in
// one transaction. Resources keep their slice order.
func (s *SQLiteStore) SaveCompilation(ctx context.Context, c *Compilation) error {
	if c.ID == "" {
		return engine.NewPermanentError("compilation has no ID", nil).WithCode(engine.ErrCodeValidation)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO compilations (id, node, family, supported, params_digest, resource_count, allowed, compiled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.Node,
		c.Family,
		c.Supported,
		c.ParamsDigest,
		len(c.Resources),
		c.Allowed,
		formatTime(c.CompiledAt),
	)
	if err != nil {
		return engine.NewConflictError("failed to create compilation", err).
			WithCode(engine.ErrCodeStore).
			WithResource(c.ID)
	}

	for i, res := range c.Resources {
		deps, err := json.Marshal(res.Dependencies)
		if err != nil {
			return fmt.Errorf("failed to encode dependencies of %s: %w", res.ID, err)
		}
		config := string(res.Config)
		if config == "" {
			config = "{}"
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO compiled_resources (compilation_id, position, resource_id, kind, title, config, dependencies)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.ID, i, res.ID, res.Type, res.Name, config, string(deps))
		if err != nil {
			return fmt.Errorf("failed to store resource %s: %w", res.ID, err)
		}
	}

	for _, f := range c.Findings {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO policy_findings (compilation_id, policy, resource, severity, message)
			VALUES (?, ?, ?, ?, ?)
		`, c.ID, f.Policy, f.Resource, f.Severity, f.Message)
		if err != nil {
			return fmt.Errorf("failed to store finding of %s: %w", f.Policy, err)
		}
		if f.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get finding ID: %w", err)
		}
		f.CompilationID = c.ID
	}

	if err := tx.Commit(); err != nil {
		return engine.NewTransientError("failed to commit compilation", err).WithCode(engine.ErrCodeStore)
	}

	c.ResourceCount = len(c.Resources)
	return nil
}

// GetCompilation retrieves a compilation with its resources and findings.
func (s *SQLiteStore) GetCompilation(ctx context.Context, id string) (*Compilation, error) {
	query := `
		SELECT id, node, family, supported, params_digest, resource_count, allowed, compiled_at
		FROM compilations
		WHERE id = ?
	`

	c, err := scanCompilation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.NewPermanentError(fmt.Sprintf("compilation not found: %s", id), nil).
			WithCode(engine.ErrCodeNotFound).
			WithResource(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compilation: %w", err)
	}

	if c.Resources, err = s.listResources(ctx, id); err != nil {
		return nil, err
	}
	if c.Findings, err = s.ListFindings(ctx, id); err != nil {
		return nil, err
	}

	return c, nil
}

// ListCompilations lists compilation headers, newest first, optionally for one node.
func (s *SQLiteStore) ListCompilations(ctx context.Context, node *string, limit, offset int) ([]*Compilation, error) {
	query := `
		SELECT id, node, family, supported, params_digest, resource_count, allowed, compiled_at
		FROM compilations
		WHERE (? IS NULL OR node = ?)
		ORDER BY compiled_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, node, node, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list compilations: %w", err)
	}
	defer rows.Close()

	compilations := []*Compilation{}
	for rows.Next() {
		c, err := scanCompilation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan compilation: %w", err)
		}
		compilations = append(compilations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating compilations: %w", err)
	}

	return compilations, nil
}

// LatestCompilations returns up to n full compilations for node, newest first.
func (s *SQLiteStore) LatestCompilations(ctx context.Context, node string, n int) ([]*Compilation, error) {
	headers, err := s.ListCompilations(ctx, &node, n, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*Compilation, 0, len(headers))
	for _, h := range headers {
		c, err := s.GetCompilation(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// DeleteCompilation deletes a compilation; resources and findings cascade.
func (s *SQLiteStore) DeleteCompilation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM compilations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete compilation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return engine.NewPermanentError(fmt.Sprintf("compilation not found: %s", id), nil).
			WithCode(engine.ErrCodeNotFound).
			WithResource(id)
	}

	return nil
}

// PruneCompilations keeps the newest keep compilations of node and deletes the rest.
func (s *SQLiteStore) PruneCompilations(ctx context.Context, node string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	query := `
		DELETE FROM compilations
		WHERE node = ?
		  AND id NOT IN (
			SELECT id FROM compilations
			WHERE node = ?
			ORDER BY compiled_at DESC, rowid DESC
			LIMIT ?
		  )
	`

	result, err := s.db.ExecContext(ctx, query, node, node, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune compilations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// ListFindings lists the findings of a compilation in insertion order.
func (s *SQLiteStore) ListFindings(ctx context.Context, compilationID string) ([]*Finding, error) {
	query := `
		SELECT id, compilation_id, policy, resource, severity, message
		FROM policy_findings
		WHERE compilation_id = ?
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, compilationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	findings := []*Finding{}
	for rows.Next() {
		f := &Finding{}
		if err := rows.Scan(&f.ID, &f.CompilationID, &f.Policy, &f.Resource, &f.Severity, &f.Message); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating findings: %w", err)
	}

	return findings, nil
}

func (s *SQLiteStore) listResources(ctx context.Context, compilationID string) ([]engine.Resource, error) {
	query := `
		SELECT resource_id, kind, title, config, dependencies
		FROM compiled_resources
		WHERE compilation_id = ?
		ORDER BY position
	`

	rows, err := s.db.QueryContext(ctx, query, compilationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	resources := []engine.Resource{}
	for rows.Next() {
		var (
			res    engine.Resource
			config string
			deps   string
		)
		if err := rows.Scan(&res.ID, &res.Type, &res.Name, &config, &deps); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		res.Config = json.RawMessage(config)
		if err := json.Unmarshal([]byte(deps), &res.Dependencies); err != nil {
			return nil, fmt.Errorf("failed to decode dependencies of %s: %w", res.ID, err)
		}
		resources = append(resources, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}

	return resources, nil
}

var _ Store = (*SQLiteStore)(nil)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompilation(row rowScanner) (*Compilation, error) {
	c := &Compilation{}
	var compiledAt string
	err := row.Scan(
		&c.ID,
		&c.Node,
		&c.Family,
		&c.Supported,
		&c.ParamsDigest,
		&c.ResourceCount,
		&c.Allowed,
		&compiledAt,
	)
	if err != nil {
		return nil, err
	}

	if c.CompiledAt, err = time.Parse(timeLayout, compiledAt); err != nil {
		return nil, fmt.Errorf("invalid compiled_at %q: %w", compiledAt, err)
	}
	return c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
