// Package rating owns rating records and the cached average rating of the
// comment, folder or software entry each rating belongs to.
package rating

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/one-folder-app/onefolder-api/internal/domain"
	"github.com/one-folder-app/onefolder-api/internal/entity"
	"github.com/one-folder-app/onefolder-api/internal/repository"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Service implements rating CRUD and average maintenance.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService constructs a Service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger.Named("rating")}
}

// CreateParams describes a new rating.
type CreateParams struct {
	AuthorID string
	Score    int
	Parent   domain.ParentRef
}

// UpdateParams describes a score change. A nil Score keeps the stored one.
type UpdateParams struct {
	RatingID string
	Score    *int
	CallerID string
}

// Result pairs a rating with its parent after the average was refreshed.
type Result struct {
	Rating domain.Rating
	Entity domain.Entity
}

// DeleteResult carries the parent after a delete. Entity is nil when the
// parent no longer exists.
type DeleteResult struct {
	Rating domain.Rating
	Entity *domain.Entity
}

// ListParams selects one page of ratings.
type ListParams struct {
	Limit     int
	PageIndex int
	OrderBy   repository.RatingOrder
	Desc      bool
}

// Page is one page of ratings plus totals.
type Page struct {
	Items      []domain.Rating
	Limit      int
	PageIndex  int
	Total      int64
	TotalPages int
}

// GetRatingByID returns the rating with id.
func (s *Service) GetRatingByID(ctx context.Context, id string) (domain.Rating, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Rating{}, invalid("ratingId is required", nil)
	}
	r, err := s.store.Ratings().GetByID(ctx, id)
	if err != nil {
		return domain.Rating{}, lookupError(err, "Rating not found")
	}
	return r, nil
}

// GetRatingByAuthorAndEntity returns the rating authorID left on parent, if
// any.
func (s *Service) GetRatingByAuthorAndEntity(ctx context.Context, authorID string, parent domain.ParentRef) (domain.Rating, bool, error) {
	if err := validateParent(parent); err != nil {
		return domain.Rating{}, false, err
	}
	r, err := s.store.Ratings().GetByAuthorAndParent(ctx, authorID, parent)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Rating{}, false, nil
		}
		return domain.Rating{}, false, internal(err)
	}
	return r, true, nil
}

// ListRatings returns one page using offset pagination
// (skip = PageIndex*Limit, take = Limit).
func (s *Service) ListRatings(ctx context.Context, params ListParams) (Page, error) {
	if params.Limit <= 0 {
		params.Limit = defaultPageSize
	} else if params.Limit > maxPageSize {
		params.Limit = maxPageSize
	}
	if params.PageIndex < 0 || params.PageIndex > math.MaxInt32/params.Limit {
		return Page{}, invalid("Invalid page", nil)
	}
	if params.OrderBy == "" {
		params.OrderBy = repository.OrderCreatedAt
	}
	if !repository.ValidRatingOrder(params.OrderBy) {
		return Page{}, invalid(fmt.Sprintf("cannot order ratings by %q", params.OrderBy), nil)
	}

	items, err := s.store.Ratings().List(ctx, repository.RatingListParams{
		Limit:   params.Limit,
		Offset:  params.PageIndex * params.Limit,
		OrderBy: params.OrderBy,
		Desc:    params.Desc,
	})
	if err != nil {
		return Page{}, internal(err)
	}
	total, err := s.store.Ratings().Count(ctx)
	if err != nil {
		return Page{}, internal(err)
	}

	return Page{
		Items:      items,
		Limit:      params.Limit,
		PageIndex:  params.PageIndex,
		Total:      total,
		TotalPages: int((total + int64(params.Limit) - 1) / int64(params.Limit)),
	}, nil
}

// CountRatings returns the number of stored ratings.
func (s *Service) CountRatings(ctx context.Context) (int64, error) {
	total, err := s.store.Ratings().Count(ctx)
	if err != nil {
		return 0, internal(err)
	}
	return total, nil
}

// CreateRating stores a new rating and refreshes the parent's average.
func (s *Service) CreateRating(ctx context.Context, params CreateParams) (Result, error) {
	if strings.TrimSpace(params.AuthorID) == "" {
		return Result{}, invalid("userId is required", nil)
	}

	var result Result
	err := s.store.InTx(ctx, func(tx Repos) error {
		if _, err := tx.Users().GetByID(ctx, params.AuthorID); err != nil {
			return lookupError(err, "User not found")
		}
		if err := validateParent(params.Parent); err != nil {
			return err
		}
		// The parent row lock serialises writers on the same entity for
		// both the duplicate check and the average recomputation.
		if _, err := tx.Entities().Lock(ctx, params.Parent); err != nil {
			return parentError(err, params.Parent.Kind)
		}

		_, err := tx.Ratings().GetByAuthorAndParent(ctx, params.AuthorID, params.Parent)
		switch {
		case err == nil:
			return conflict(fmt.Sprintf("%s already rated", params.Parent.Kind))
		case !errors.Is(err, domain.ErrNotFound):
			return internal(err)
		}

		created, err := tx.Ratings().Create(ctx, repository.RatingCreateParams{
			AuthorID: params.AuthorID,
			Score:    params.Score,
			Parent:   params.Parent,
		})
		if err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return conflict(fmt.Sprintf("%s already rated", params.Parent.Kind))
			}
			return internal(err)
		}

		updated, err := refreshAverage(ctx, tx, params.Parent, true)
		if err != nil {
			return err
		}
		result = Result{Rating: created, Entity: *updated}
		return nil
	})
	if err != nil {
		return Result{}, internal(err)
	}

	s.logger.Info("rating created",
		zap.String("rating_id", result.Rating.ID),
		zap.String("parent", params.Parent.String()),
		zap.Int("score", params.Score),
	)
	return result, nil
}

// UpdateRating changes a rating's score and refreshes the parent's average.
// The parent association never changes.
func (s *Service) UpdateRating(ctx context.Context, params UpdateParams) (Result, error) {
	if strings.TrimSpace(params.RatingID) == "" {
		return Result{}, invalid("ratingId is required", nil)
	}
	if strings.TrimSpace(params.CallerID) == "" {
		return Result{}, invalid("userId is required", nil)
	}

	var result Result
	err := s.store.InTx(ctx, func(tx Repos) error {
		if _, err := tx.Users().GetByID(ctx, params.CallerID); err != nil {
			return lookupError(err, "User not found")
		}
		existing, err := tx.Ratings().GetByID(ctx, params.RatingID)
		if err != nil {
			return lookupError(err, "Rating not found")
		}
		if _, err := tx.Entities().Lock(ctx, existing.Parent); err != nil {
			return parentError(err, existing.Parent.Kind)
		}

		updated := existing
		if params.Score != nil {
			updated, err = tx.Ratings().UpdateScore(ctx, existing.ID, *params.Score)
			if err != nil {
				return lookupError(err, "Rating not found")
			}
		}

		parent, err := refreshAverage(ctx, tx, existing.Parent, true)
		if err != nil {
			return err
		}
		result = Result{Rating: updated, Entity: *parent}
		return nil
	})
	if err != nil {
		return Result{}, internal(err)
	}

	s.logger.Info("rating updated",
		zap.String("rating_id", result.Rating.ID),
		zap.String("parent", result.Rating.Parent.String()),
		zap.Int("score", result.Rating.Score),
	)
	return result, nil
}

// DeleteRating removes a rating and refreshes the parent's average, which
// becomes nil once the last rating is gone.
func (s *Service) DeleteRating(ctx context.Context, id string) (DeleteResult, error) {
	if strings.TrimSpace(id) == "" {
		return DeleteResult{}, invalid("ratingId is required", nil)
	}

	var result DeleteResult
	err := s.store.InTx(ctx, func(tx Repos) error {
		existing, err := tx.Ratings().GetByID(ctx, id)
		if err != nil {
			return lookupError(err, "Rating not found")
		}
		result.Rating = existing

		parentExists := true
		if _, err := tx.Entities().Lock(ctx, existing.Parent); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return internal(err)
			}
			parentExists = false
		}

		if err := tx.Ratings().Delete(ctx, existing.ID); err != nil {
			return lookupError(err, "Rating not found")
		}
		if !parentExists {
			return nil
		}

		parent, err := refreshAverage(ctx, tx, existing.Parent, false)
		if err != nil {
			return err
		}
		result.Entity = parent
		return nil
	})
	if err != nil {
		return DeleteResult{}, internal(err)
	}

	s.logger.Info("rating deleted",
		zap.String("rating_id", id),
		zap.String("parent", result.Rating.Parent.String()),
	)
	return result, nil
}

// GetAverageRating returns the mean score of parent's ratings, or nil when
// it has none.
func (s *Service) GetAverageRating(ctx context.Context, parent domain.ParentRef) (*float64, error) {
	agg, err := s.GetRatingAggregate(ctx, parent)
	if err != nil {
		return nil, err
	}
	return agg.Average, nil
}

// GetRatingAggregate returns the mean and count of parent's ratings.
func (s *Service) GetRatingAggregate(ctx context.Context, parent domain.ParentRef) (domain.RatingAggregate, error) {
	if err := validateParent(parent); err != nil {
		return domain.RatingAggregate{}, err
	}
	agg, err := s.store.Ratings().Aggregate(ctx, parent)
	if err != nil {
		return domain.RatingAggregate{}, internal(err)
	}
	return agg, nil
}

// refreshAverage recomputes parent's mean from the rating table and writes it
// into the parent's cached field. requireValue marks paths that just wrote a
// rating, where an empty aggregate means the write was lost.
func refreshAverage(ctx context.Context, tx Repos, parent domain.ParentRef, requireValue bool) (*domain.Entity, error) {
	agg, err := tx.Ratings().Aggregate(ctx, parent)
	if err != nil {
		return nil, internal(err)
	}
	if requireValue && agg.Average == nil {
		return nil, internal(fmt.Errorf("no ratings found for %s after write", parent))
	}
	updated, err := tx.Entities().SetAverage(ctx, parent, agg.Average)
	if err != nil {
		return nil, parentError(err, parent.Kind)
	}
	return &updated, nil
}

func validateParent(parent domain.ParentRef) error {
	if _, err := domain.ParseKind(string(parent.Kind)); err != nil {
		return invalid("Please provide a comment, folder or software id", err)
	}
	if strings.TrimSpace(parent.ID) == "" {
		return invalid("Please provide a comment, folder or software id", domain.ErrInvalidParent)
	}
	return nil
}

func lookupError(err error, message string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return notFound(message, err)
	}
	return internal(err)
}

func parentError(err error, kind domain.Kind) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return notFound(fmt.Sprintf("%s not found", kind), err)
	case errors.Is(err, entity.ErrUnknownKind):
		return invalid("Please provide a comment, folder or software id", err)
	default:
		return internal(err)
	}
}
