package rating

import (
	"context"

	"github.com/one-folder-app/onefolder-api/internal/domain"
	"github.com/one-folder-app/onefolder-api/internal/entity"
	"github.com/one-folder-app/onefolder-api/internal/repository"
)

// UserLookup validates rating authorship.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
}

// RatingRepository persists rating rows.
type RatingRepository interface {
	GetByID(ctx context.Context, id string) (domain.Rating, error)
	GetByAuthorAndParent(ctx context.Context, authorID string, parent domain.ParentRef) (domain.Rating, error)
	List(ctx context.Context, params repository.RatingListParams) ([]domain.Rating, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, params repository.RatingCreateParams) (domain.Rating, error)
	UpdateScore(ctx context.Context, id string, score int) (domain.Rating, error)
	Delete(ctx context.Context, id string) error
	Aggregate(ctx context.Context, parent domain.ParentRef) (domain.RatingAggregate, error)
}

// Repos groups the collaborators one unit of work talks to.
type Repos interface {
	Users() UserLookup
	Ratings() RatingRepository
	Entities() entity.Resolver
}

// Store exposes Repos outside and inside a transaction.
type Store interface {
	Repos
	InTx(ctx context.Context, fn func(tx Repos) error) error
}

type postgresStore struct {
	repo *repository.Repository
}

// NewPostgresStore adapts the pgx repositories to Store.
func NewPostgresStore(repo *repository.Repository) Store {
	return postgresStore{repo: repo}
}

func (s postgresStore) Users() UserLookup         { return s.repo.Users }
func (s postgresStore) Ratings() RatingRepository { return s.repo.Ratings }

func (s postgresStore) Entities() entity.Resolver {
	return entity.Resolver{
		Comments: s.repo.Comments,
		Folders:  s.repo.Folders,
		Software: s.repo.Software,
	}
}

func (s postgresStore) InTx(ctx context.Context, fn func(tx Repos) error) error {
	return s.repo.InTx(ctx, func(tx *repository.Repository) error {
		return fn(postgresStore{repo: tx})
	})
}
