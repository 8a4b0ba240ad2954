// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/dealboard/internal/model"
	"github.com/alfredjeanlab/dealboard/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already-open database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateDeal(ctx context.Context, deal *model.Deal) error {
	return queryCreateDeal(ctx, s.db, deal)
}

func (s *PostgresStore) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	return queryGetDeal(ctx, s.db, id)
}

func (s *PostgresStore) LockDeal(ctx context.Context, id int64) (*model.Deal, error) {
	return queryLockDeal(ctx, s.db, id)
}

func (s *PostgresStore) ListDeals(ctx context.Context, filter model.DealFilter) ([]*model.Deal, int, error) {
	return queryListDeals(ctx, s.db, filter)
}

func (s *PostgresStore) UpdateDealStage(ctx context.Context, id int64, stage string, at time.Time) error {
	return queryUpdateDealStage(ctx, s.db, id, stage, at)
}

func (s *PostgresStore) CreateStage(ctx context.Context, stage *model.Stage) error {
	return queryCreateStage(ctx, s.db, stage)
}

func (s *PostgresStore) GetStage(ctx context.Context, id int64) (*model.Stage, error) {
	return queryGetStage(ctx, s.db, id)
}

func (s *PostgresStore) ListStages(ctx context.Context, companyID int64, includeInactive bool) ([]*model.Stage, error) {
	return queryListStages(ctx, s.db, companyID, includeInactive)
}

func (s *PostgresStore) RecordStageChange(ctx context.Context, change *model.StageChange) error {
	return queryRecordStageChange(ctx, s.db, change)
}

func (s *PostgresStore) GetStageHistory(ctx context.Context, dealID int64) ([]*model.StageChange, error) {
	return queryGetStageHistory(ctx, s.db, dealID)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateDeal(ctx context.Context, deal *model.Deal) error {
	return queryCreateDeal(ctx, s.tx, deal)
}

func (s *txStore) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	return queryGetDeal(ctx, s.tx, id)
}

func (s *txStore) LockDeal(ctx context.Context, id int64) (*model.Deal, error) {
	return queryLockDeal(ctx, s.tx, id)
}

func (s *txStore) ListDeals(ctx context.Context, filter model.DealFilter) ([]*model.Deal, int, error) {
	return queryListDeals(ctx, s.tx, filter)
}

func (s *txStore) UpdateDealStage(ctx context.Context, id int64, stage string, at time.Time) error {
	return queryUpdateDealStage(ctx, s.tx, id, stage, at)
}

func (s *txStore) CreateStage(ctx context.Context, stage *model.Stage) error {
	return queryCreateStage(ctx, s.tx, stage)
}

func (s *txStore) GetStage(ctx context.Context, id int64) (*model.Stage, error) {
	return queryGetStage(ctx, s.tx, id)
}

func (s *txStore) ListStages(ctx context.Context, companyID int64, includeInactive bool) ([]*model.Stage, error) {
	return queryListStages(ctx, s.tx, companyID, includeInactive)
}

func (s *txStore) RecordStageChange(ctx context.Context, change *model.StageChange) error {
	return queryRecordStageChange(ctx, s.tx, change)
}

func (s *txStore) GetStageHistory(ctx context.Context, dealID int64) ([]*model.StageChange, error) {
	return queryGetStageHistory(ctx, s.tx, dealID)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
