package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/one-folder-app/onefolder-api/internal/domain"
	"github.com/one-folder-app/onefolder-api/internal/store"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = domain.ErrNotFound

// ErrDuplicate indicates a unique constraint rejected the write.
var ErrDuplicate = domain.ErrDuplicate

const (
	pgUniqueViolation           = "23505"
	pgInvalidTextRepresentation = "22P02"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Users    *UsersRepository
	Ratings  *RatingsRepository
	Comments *EntityRepository
	Folders  *EntityRepository
	Software *EntityRepository

	pool *pgxpool.Pool
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	r := build(pool)
	r.pool = pool
	return r
}

func build(q querier) *Repository {
	return &Repository{
		Users:    &UsersRepository{q: q},
		Ratings:  &RatingsRepository{q: q},
		Comments: newEntityRepository(q, domain.KindComment),
		Folders:  newEntityRepository(q, domain.KindFolder),
		Software: newEntityRepository(q, domain.KindSoftware),
	}
}

// InTx runs fn with a Repository bound to a single READ COMMITTED
// transaction. The transaction commits when fn returns nil and rolls back
// otherwise. Calling InTx on a transaction-bound Repository reuses it.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(build(tx))
	})
}

// mapError translates driver errors into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicate
		case pgInvalidTextRepresentation:
			// A malformed uuid can never match a row.
			return ErrNotFound
		}
	}
	return err
}
