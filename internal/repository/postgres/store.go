// Package postgres implements the repository interfaces declared next
// to each service, on top of database/sql and lib/pq.
package postgres

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/vintner-crm/internal/config"
	"github.com/ignite/vintner-crm/internal/domain"
)

// Store is the shared Postgres-backed implementation of every
// repository surface: loader, metrics, reco, dispatch, export and the
// data-quality audit.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for the advisory lock fallback.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Open connects to Postgres and applies the pool settings.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// classify maps driver errors onto the domain error kinds. Postgres
// class 23 (integrity constraint violation) becomes IntegrityError;
// everything else unexpected is a StorageError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.E(domain.KindNotFound, op, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && len(pqErr.Code) >= 2 && pqErr.Code[:2] == "23" {
		return domain.E(domain.KindIntegrityError, op, err)
	}
	return domain.E(domain.KindStorageError, op, err)
}
