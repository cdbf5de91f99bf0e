// Package pg is the PostgreSQL storage layer. All coordination besides the
// in-process per-feed lock is pushed down here: unique constraints act as
// idempotency guards and per-entry writes run in single transactions.
package pg

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(pool *ConnectionPool) *Store {
	return &Store{db: pool.conn}
}
