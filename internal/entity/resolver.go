// Package entity resolves a rating's parent reference to the repository that
// owns that kind of entity.
package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/one-folder-app/onefolder-api/internal/domain"
)

// ErrUnknownKind is returned for a ParentRef whose kind has no repository.
var ErrUnknownKind = errors.New("entity: unknown kind")

// Repository is the per-table view the rating subsystem needs.
type Repository interface {
	FindByID(ctx context.Context, id string) (domain.Entity, error)
	LockByID(ctx context.Context, id string) (domain.Entity, error)
	SetAverageRating(ctx context.Context, id string, average *float64) (domain.Entity, error)
}

// Resolver maps each entity kind to its repository.
type Resolver struct {
	Comments Repository
	Folders  Repository
	Software Repository
}

// For returns the repository serving kind.
func (r Resolver) For(kind domain.Kind) (Repository, error) {
	var repo Repository
	switch kind {
	case domain.KindComment:
		repo = r.Comments
	case domain.KindFolder:
		repo = r.Folders
	case domain.KindSoftware:
		repo = r.Software
	}
	if repo == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return repo, nil
}

// Find fetches the entity ref points at.
func (r Resolver) Find(ctx context.Context, ref domain.ParentRef) (domain.Entity, error) {
	repo, err := r.For(ref.Kind)
	if err != nil {
		return domain.Entity{}, err
	}
	return repo.FindByID(ctx, ref.ID)
}

// Lock fetches the entity ref points at and row-locks it for the rest of the
// surrounding transaction.
func (r Resolver) Lock(ctx context.Context, ref domain.ParentRef) (domain.Entity, error) {
	repo, err := r.For(ref.Kind)
	if err != nil {
		return domain.Entity{}, err
	}
	return repo.LockByID(ctx, ref.ID)
}

// SetAverage writes the cached average rating of the entity ref points at.
func (r Resolver) SetAverage(ctx context.Context, ref domain.ParentRef, average *float64) (domain.Entity, error) {
	repo, err := r.For(ref.Kind)
	if err != nil {
		return domain.Entity{}, err
	}
	return repo.SetAverageRating(ctx, ref.ID, average)
}
