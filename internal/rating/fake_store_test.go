package rating

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/one-folder-app/onefolder-api/internal/domain"
	"github.com/one-folder-app/onefolder-api/internal/entity"
	"github.com/one-folder-app/onefolder-api/internal/repository"
)

// memStore is an in-memory Store. InTx holds mu for the whole unit of work
// and restores a snapshot when fn fails; calls outside InTx take mu per call.
type memStore struct {
	mu       sync.Mutex
	users    map[string]domain.User
	entities map[domain.ParentRef]domain.Entity
	ratings  map[string]domain.Rating
	seq      int
	clock    time.Time

	failAggregate bool
	dropAverage   bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]domain.User),
		entities: make(map[domain.ParentRef]domain.Entity),
		ratings:  make(map[string]domain.Rating),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) addUser(id string) {
	m.users[id] = domain.User{ID: id, Username: id}
}

func (m *memStore) addEntity(kind domain.Kind, id string) domain.ParentRef {
	ref := domain.ParentRef{Kind: kind, ID: id}
	m.entities[ref] = domain.Entity{Kind: kind, ID: id, Title: id}
	return ref
}

func (m *memStore) entity(ref domain.ParentRef) domain.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entities[ref]
}

func (m *memStore) removeEntity(ref domain.ParentRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, ref)
}

func (m *memStore) Users() UserLookup         { return lockedUsers{m} }
func (m *memStore) Ratings() RatingRepository { return lockedRatings{m} }
func (m *memStore) Entities() entity.Resolver { return resolver(m, true) }

func (m *memStore) InTx(_ context.Context, fn func(tx Repos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entities := make(map[domain.ParentRef]domain.Entity, len(m.entities))
	for k, v := range m.entities {
		entities[k] = v
	}
	ratings := make(map[string]domain.Rating, len(m.ratings))
	for k, v := range m.ratings {
		ratings[k] = v
	}
	seq, clock := m.seq, m.clock

	if err := fn(memTx{m}); err != nil {
		m.entities, m.ratings, m.seq, m.clock = entities, ratings, seq, clock
		return err
	}
	return nil
}

type memTx struct{ m *memStore }

func (t memTx) Users() UserLookup         { return memUsers{t.m} }
func (t memTx) Ratings() RatingRepository { return memRatings{t.m} }
func (t memTx) Entities() entity.Resolver { return resolver(t.m, false) }

func resolver(m *memStore, locked bool) entity.Resolver {
	repo := func(kind domain.Kind) entity.Repository {
		if locked {
			return lockedEntities{memEntities{m: m, kind: kind}}
		}
		return memEntities{m: m, kind: kind}
	}
	return entity.Resolver{
		Comments: repo(domain.KindComment),
		Folders:  repo(domain.KindFolder),
		Software: repo(domain.KindSoftware),
	}
}

// Unlocked implementations; callers hold m.mu.

type memUsers struct{ m *memStore }

func (u memUsers) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := u.m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

type memRatings struct{ m *memStore }

func (r memRatings) GetByID(_ context.Context, id string) (domain.Rating, error) {
	rating, ok := r.m.ratings[id]
	if !ok {
		return domain.Rating{}, domain.ErrNotFound
	}
	return rating, nil
}

func (r memRatings) GetByAuthorAndParent(_ context.Context, authorID string, parent domain.ParentRef) (domain.Rating, error) {
	for _, rating := range r.m.ratings {
		if rating.AuthorID == authorID && rating.Parent == parent {
			return rating, nil
		}
	}
	return domain.Rating{}, domain.ErrNotFound
}

func (r memRatings) List(_ context.Context, params repository.RatingListParams) ([]domain.Rating, error) {
	all := make([]domain.Rating, 0, len(r.m.ratings))
	for _, rating := range r.m.ratings {
		all = append(all, rating)
	}
	sort.Slice(all, func(i, j int) bool {
		less := all[i].CreatedAt.Before(all[j].CreatedAt)
		if params.OrderBy == repository.OrderScore && all[i].Score != all[j].Score {
			less = all[i].Score < all[j].Score
		}
		if params.Desc {
			return !less
		}
		return less
	})
	if params.Offset >= len(all) {
		return []domain.Rating{}, nil
	}
	end := params.Offset + params.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[params.Offset:end], nil
}

func (r memRatings) Count(context.Context) (int64, error) {
	return int64(len(r.m.ratings)), nil
}

func (r memRatings) Create(_ context.Context, params repository.RatingCreateParams) (domain.Rating, error) {
	for _, rating := range r.m.ratings {
		if rating.AuthorID == params.AuthorID && rating.Parent == params.Parent {
			return domain.Rating{}, domain.ErrDuplicate
		}
	}
	r.m.seq++
	r.m.clock = r.m.clock.Add(time.Second)
	rating := domain.Rating{
		ID:        fmt.Sprintf("rating-%d", r.m.seq),
		AuthorID:  params.AuthorID,
		Score:     params.Score,
		Parent:    params.Parent,
		CreatedAt: r.m.clock,
		UpdatedAt: r.m.clock,
	}
	r.m.ratings[rating.ID] = rating
	return rating, nil
}

func (r memRatings) UpdateScore(_ context.Context, id string, score int) (domain.Rating, error) {
	rating, ok := r.m.ratings[id]
	if !ok {
		return domain.Rating{}, domain.ErrNotFound
	}
	r.m.clock = r.m.clock.Add(time.Second)
	rating.Score = score
	rating.UpdatedAt = r.m.clock
	r.m.ratings[id] = rating
	return rating, nil
}

func (r memRatings) Delete(_ context.Context, id string) error {
	if _, ok := r.m.ratings[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.m.ratings, id)
	return nil
}

func (r memRatings) Aggregate(_ context.Context, parent domain.ParentRef) (domain.RatingAggregate, error) {
	if r.m.failAggregate {
		return domain.RatingAggregate{}, fmt.Errorf("aggregate: connection reset")
	}
	var (
		sum   int
		count int64
	)
	for _, rating := range r.m.ratings {
		if rating.Parent == parent {
			sum += rating.Score
			count++
		}
	}
	if count == 0 || r.m.dropAverage {
		return domain.RatingAggregate{Count: count}, nil
	}
	avg := float64(sum) / float64(count)
	return domain.RatingAggregate{Average: &avg, Count: count}, nil
}

type memEntities struct {
	m    *memStore
	kind domain.Kind
}

func (e memEntities) FindByID(_ context.Context, id string) (domain.Entity, error) {
	found, ok := e.m.entities[domain.ParentRef{Kind: e.kind, ID: id}]
	if !ok {
		return domain.Entity{}, domain.ErrNotFound
	}
	return found, nil
}

func (e memEntities) LockByID(ctx context.Context, id string) (domain.Entity, error) {
	return e.FindByID(ctx, id)
}

func (e memEntities) SetAverageRating(_ context.Context, id string, average *float64) (domain.Entity, error) {
	ref := domain.ParentRef{Kind: e.kind, ID: id}
	found, ok := e.m.entities[ref]
	if !ok {
		return domain.Entity{}, domain.ErrNotFound
	}
	if average != nil {
		v := *average
		average = &v
	}
	found.AverageRating = average
	e.m.entities[ref] = found
	return found, nil
}

// Locked wrappers used outside InTx.

type lockedUsers struct{ m *memStore }

func (l lockedUsers) GetByID(ctx context.Context, id string) (domain.User, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return memUsers(l).GetByID(ctx, id)
}

type lockedRatings struct{ m *memStore }

func (l lockedRatings) inner() (memRatings, func()) {
	l.m.mu.Lock()
	return memRatings(l), l.m.mu.Unlock
}

func (l lockedRatings) GetByID(ctx context.Context, id string) (domain.Rating, error) {
	r, unlock := l.inner()
	defer unlock()
	return r.GetByID(ctx, id)
}

func (l lockedRatings) GetByAuthorAndParent(ctx context.Context, authorID string, parent domain.ParentRef) (domain.Rating, error) {
	r, unlock := l.inner()
	defer unlock()
	return r.GetByAuthorAndParent(ctx, authorID, parent)
}

func (l lockedRatings) List(ctx context.Context, params repository.RatingListParams) ([]domain.Rating, error) {
	r, unlock := l.inner()
	defer unlock()
	return r.List(ctx, params)
}

func (l lockedRatings) Count(ctx context.Context) (int64, error) {
	r, unlock := l.inner()
	defer unlock()
	return r.Count(ctx)
}

func (l lockedRatings) Create(ctx context.Context, params repository.RatingCreateParams) (domain.Rating, error) {
	r, unlock := l.inner()
	defer unlock()
	return r.Create(ctx, params)
}

func (l lockedRatings) UpdateScore(ctx context.Context, id string, score int) (domain.Rating, error) {
	r, unlock := l.inner()
	defer unlock()
	return r.UpdateScore(ctx, id, score)
}

func (l lockedRatings) Delete(ctx context.Context, id string) error {
	r, unlock := l.inner()
	defer unlock()
	return r.Delete(ctx, id)
}

func (l lockedRatings) Aggregate(ctx context.Context, parent domain.ParentRef) (domain.RatingAggregate, error) {
	r, unlock := l.inner()
	defer unlock()
	return r.Aggregate(ctx, parent)
}

type lockedEntities struct{ inner memEntities }

func (l lockedEntities) FindByID(ctx context.Context, id string) (domain.Entity, error) {
	l.inner.m.mu.Lock()
	defer l.inner.m.mu.Unlock()
	return l.inner.FindByID(ctx, id)
}

func (l lockedEntities) LockByID(ctx context.Context, id string) (domain.Entity, error) {
	return l.FindByID(ctx, id)
}

func (l lockedEntities) SetAverageRating(ctx context.Context, id string, average *float64) (domain.Entity, error) {
	l.inner.m.mu.Lock()
	defer l.inner.m.mu.Unlock()
	return l.inner.SetAverageRating(ctx, id, average)
}
