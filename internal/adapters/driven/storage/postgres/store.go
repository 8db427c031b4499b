// Package postgres provides the metadata store on PostgreSQL through
// lib/pq, for deployments where several ingestion hosts share one
// database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/custodia-labs/legalvault/internal/adapters/driven/storage/postgres/migrations"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/storage/sqlstore"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

var dialect = sqlstore.Dialect{
	Name:     "postgres",
	Numbered: true,
	IsUniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
	},
}

// Store is a PostgreSQL-backed metadata store.
type Store struct {
	*sqlstore.Store
}

// NewStore connects to dsn, verifies the connection and runs migrations.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := sqlstore.Migrate(db, migrations.FS, true); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{Store: sqlstore.New(db, dialect)}, nil
}
