package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/one-folder-app/onefolder-api/internal/domain"
)

// EntityRepository reads and maintains the cached average of one rateable
// table. The table is fixed at construction from the entity kind.
type EntityRepository struct {
	q           querier
	kind        domain.Kind
	table       string
	titleColumn string
}

func newEntityRepository(q querier, kind domain.Kind) *EntityRepository {
	repo := &EntityRepository{q: q, kind: kind}
	switch kind {
	case domain.KindComment:
		repo.table, repo.titleColumn = "comments", "content"
	case domain.KindFolder:
		repo.table, repo.titleColumn = "folders", "name"
	case domain.KindSoftware:
		repo.table, repo.titleColumn = "software", "name"
	default:
		panic(fmt.Sprintf("repository: unknown entity kind %q", kind))
	}
	return repo
}

func (r *EntityRepository) columns() string {
	return fmt.Sprintf("id::text, author_id::text, %s, average_rating, created_at, updated_at", r.titleColumn)
}

// FindByID fetches the entity by identifier.
func (r *EntityRepository) FindByID(ctx context.Context, id string) (domain.Entity, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, r.columns(), r.table)
	return r.scan(r.q.QueryRow(ctx, query, id))
}

// LockByID fetches the entity and holds a row lock until the surrounding
// transaction ends. Outside a transaction the lock is released immediately.
func (r *EntityRepository) LockByID(ctx context.Context, id string) (domain.Entity, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, r.columns(), r.table)
	return r.scan(r.q.QueryRow(ctx, query, id))
}

// SetAverageRating stores the cached average. A nil average clears it.
func (r *EntityRepository) SetAverageRating(ctx context.Context, id string, average *float64) (domain.Entity, error) {
	query := fmt.Sprintf(`
        UPDATE %s
        SET average_rating = $2,
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, r.table, r.columns())
	return r.scan(r.q.QueryRow(ctx, query, id, average))
}

func (r *EntityRepository) scan(row pgx.Row) (domain.Entity, error) {
	var (
		entity    domain.Entity
		average   *float64
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&entity.ID, &entity.AuthorID, &entity.Title, &average, &createdAt, &updatedAt)
	if err != nil {
		return domain.Entity{}, mapError(err)
	}
	entity.Kind = r.kind
	entity.AverageRating = average
	entity.CreatedAt = createdAt
	entity.UpdatedAt = updatedAt
	return entity, nil
}
