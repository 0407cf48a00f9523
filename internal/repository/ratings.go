package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/one-folder-app/onefolder-api/internal/domain"
)

// RatingsRepository provides persistence helpers for ratings.
type RatingsRepository struct {
	q querier
}

const ratingColumns = `
    id::text,
    author_id::text,
    parent_kind,
    parent_id::text,
    rating,
    created_at,
    updated_at
`

// RatingOrder is a sortable rating column.
type RatingOrder string

const (
	OrderCreatedAt RatingOrder = "createdAt"
	OrderUpdatedAt RatingOrder = "updatedAt"
	OrderScore     RatingOrder = "rating"
)

var ratingOrderColumns = map[RatingOrder]string{
	OrderCreatedAt: "created_at",
	OrderUpdatedAt: "updated_at",
	OrderScore:     "rating",
}

// ValidRatingOrder reports whether o names a sortable column.
func ValidRatingOrder(o RatingOrder) bool {
	_, ok := ratingOrderColumns[o]
	return ok
}

// RatingCreateParams bundles the fields required to create a rating.
type RatingCreateParams struct {
	AuthorID string
	Score    int
	Parent   domain.ParentRef
}

// RatingListParams encapsulates offset pagination and ordering.
type RatingListParams struct {
	Limit   int
	Offset  int
	OrderBy RatingOrder
	Desc    bool
}

// Create inserts a new rating row. A second rating by the same author on the
// same parent fails with ErrDuplicate.
func (r *RatingsRepository) Create(ctx context.Context, params RatingCreateParams) (domain.Rating, error) {
	query := fmt.Sprintf(`
        INSERT INTO ratings (id, author_id, parent_kind, parent_id, rating)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING %s
    `, ratingColumns)

	row := r.q.QueryRow(ctx, query, uuid.NewString(), params.AuthorID, string(params.Parent.Kind), params.Parent.ID, params.Score)
	return scanRating(row)
}

// GetByID fetches a rating by its identifier.
func (r *RatingsRepository) GetByID(ctx context.Context, id string) (domain.Rating, error) {
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE id = $1`, ratingColumns)
	return scanRating(r.q.QueryRow(ctx, query, id))
}

// GetByAuthorAndParent fetches the rating an author left on a parent.
func (r *RatingsRepository) GetByAuthorAndParent(ctx context.Context, authorID string, parent domain.ParentRef) (domain.Rating, error) {
	query := fmt.Sprintf(`
        SELECT %s
        FROM ratings
        WHERE author_id = $1 AND parent_kind = $2 AND parent_id = $3
    `, ratingColumns)
	return scanRating(r.q.QueryRow(ctx, query, authorID, string(parent.Kind), parent.ID))
}

// UpdateScore changes the score of an existing rating. The parent is never
// touched.
func (r *RatingsRepository) UpdateScore(ctx context.Context, id string, score int) (domain.Rating, error) {
	query := fmt.Sprintf(`
        UPDATE ratings
        SET rating = $2,
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, ratingColumns)
	return scanRating(r.q.QueryRow(ctx, query, id, score))
}

// Delete removes a rating row.
func (r *RatingsRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM ratings WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of ratings.
func (r *RatingsRepository) List(ctx context.Context, params RatingListParams) ([]domain.Rating, error) {
	if params.Limit <= 0 {
		params.Limit = 10
	} else if params.Limit > 100 {
		params.Limit = 100
	}
	if params.Offset < 0 {
		params.Offset = 0
	}
	column, ok := ratingOrderColumns[params.OrderBy]
	if !ok {
		column = ratingOrderColumns[OrderCreatedAt]
	}
	direction := "ASC"
	if params.Desc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
        SELECT %s
        FROM ratings
        ORDER BY %s %s, id %s
        LIMIT $1 OFFSET $2
    `, ratingColumns, column, direction, direction)

	rows, err := r.q.Query(ctx, query, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Rating, 0, params.Limit)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Count returns the total number of ratings.
func (r *RatingsRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*)::int8 FROM ratings`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count ratings: %w", err)
	}
	return total, nil
}

// Aggregate returns the rating average and count for a parent.
func (r *RatingsRepository) Aggregate(ctx context.Context, parent domain.ParentRef) (domain.RatingAggregate, error) {
	const query = `
        SELECT AVG(rating)::float8 AS average,
               COUNT(*)::int8 AS count
        FROM ratings
        WHERE parent_kind = $1 AND parent_id = $2
    `

	var agg domain.RatingAggregate
	err := r.q.QueryRow(ctx, query, string(parent.Kind), parent.ID).Scan(&agg.Average, &agg.Count)
	if err != nil {
		if mapped := mapError(err); mapped == ErrNotFound {
			return domain.RatingAggregate{}, nil
		}
		return domain.RatingAggregate{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	return agg, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var (
		rating domain.Rating
		kind   string
	)
	err := row.Scan(
		&rating.ID,
		&rating.AuthorID,
		&kind,
		&rating.Parent.ID,
		&rating.Score,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	if err != nil {
		return domain.Rating{}, mapError(err)
	}
	rating.Parent.Kind = domain.Kind(kind)
	return rating, nil
}
