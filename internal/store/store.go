package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"distribution-service/config"
	"distribution-service/internal/models"
	"distribution-service/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Store is the PostgreSQL implementation of Repository
type Store struct {
	db *sqlx.DB
}

var _ Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an existing connection
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside a READ COMMITTED transaction. Row locks taken with
// FOR UPDATE and guarded single-statement updates keep counters consistent.
func (s *Store) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	start := time.Now()
	defer func() {
		result := "committed"
		if err != nil {
			result = "rolled_back"
		}
		util.TransactionDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", models.ErrTransactionFailure, err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if mapped := mapError(err, "commit"); models.Kind(mapped) != nil {
			return mapped
		}
		return fmt.Errorf("%w: commit: %v", models.ErrTransactionFailure, err)
	}
	return nil
}

// sqlTx implements Tx on top of *sqlx.Tx
type sqlTx struct {
	tx *sqlx.Tx
}

var _ Tx = (*sqlTx)(nil)

// mapError translates driver errors into the models taxonomy
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, what)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s: %s", models.ErrConflict, what, pqErr.Constraint)
		case "23514":
			return fmt.Errorf("%w: %s: %s", ErrCounterUnderflow, what, pqErr.Constraint)
		case "23503":
			return fmt.Errorf("%w: %s: %s", models.ErrNotFound, what, pqErr.Detail)
		case "40001", "40P01":
			return fmt.Errorf("%w: %s: %s", models.ErrTransactionFailure, what, pqErr.Message)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", models.ErrTransactionFailure, what, err)
	}

	return fmt.Errorf("%s: %w", what, err)
}

// nullable stores empty strings as NULL so unique keys only bind real values
func nullable(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
