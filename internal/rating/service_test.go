package rating

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/one-folder-app/onefolder-api/internal/domain"
	"github.com/one-folder-app/onefolder-api/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	st := newMemStore()
	return NewService(st, zap.NewNop()), st
}

func intPtr(v int) *int { return &v }

func requireAverage(t *testing.T, want float64, got *float64) {
	t.Helper()
	require.NotNil(t, got, "average should be set")
	assert.InDelta(t, want, *got, 1e-9)
}

func TestCreateRating_SetsAverageAndRejectsDuplicate(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	st.addUser("alice")
	folder := st.addEntity(domain.KindFolder, "f1")

	_, found, err := svc.GetRatingByAuthorAndEntity(ctx, "alice", folder)
	require.NoError(t, err)
	assert.False(t, found)

	res, err := svc.CreateRating(ctx, CreateParams{AuthorID: "alice", Score: 4, Parent: folder})
	require.NoError(t, err)
	assert.Equal(t, folder, res.Rating.Parent)
	assert.Equal(t, domain.KindFolder, res.Entity.Kind)
	requireAverage(t, 4, res.Entity.AverageRating)

	got, found, err := svc.GetRatingByAuthorAndEntity(ctx, "alice", folder)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, res.Rating.ID, got.ID)

	avg, err := svc.GetAverageRating(ctx, folder)
	require.NoError(t, err)
	requireAverage(t, 4, avg)

	_, err = svc.CreateRating(ctx, CreateParams{AuthorID: "alice", Score: 1, Parent: folder})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, "folder already rated", MessageOf(err))

	total, err := svc.CountRatings(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestCreateRating_Preconditions(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	st.addUser("alice")
	folder := st.addEntity(domain.KindFolder, "f1")

	tests := []struct {
		name    string
		params  CreateParams
		kind    ErrorKind
		message string
	}{
		{
			name:    "unknown author",
			params:  CreateParams{AuthorID: "ghost", Score: 3, Parent: folder},
			kind:    KindNotFound,
			message: "User not found",
		},
		{
			name:    "missing parent entity",
			params:  CreateParams{AuthorID: "alice", Score: 3, Parent: domain.ParentRef{Kind: domain.KindSoftware, ID: "nope"}},
			kind:    KindNotFound,
			message: "software not found",
		},
		{
			name:    "same id under another kind",
			params:  CreateParams{AuthorID: "alice", Score: 3, Parent: domain.ParentRef{Kind: domain.KindComment, ID: folder.ID}},
			kind:    KindNotFound,
			message: "comment not found",
		},
		{
			name:   "no parent",
			params: CreateParams{AuthorID: "alice", Score: 3},
			kind:   KindInvalid,
		},
		{
			name:    "unknown author is reported before missing parent",
			params:  CreateParams{AuthorID: "ghost", Score: 3},
			kind:    KindNotFound,
			message: "User not found",
		},
		{
			name:   "blank author",
			params: CreateParams{Score: 3, Parent: folder},
			kind:   KindInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateRating(ctx, tt.params)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			if tt.message != "" {
				assert.Equal(t, tt.message, MessageOf(err))
			}
		})
	}

	total, err := svc.CountRatings(ctx)
	require.NoError(t, err)
	assert.Zero(t, total, "no row may be inserted when a precondition fails")
}

func TestCreateRating_MissingAverageIsInternalAndRollsBack(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	st.addUser("alice")
	software := st.addEntity(domain.KindSoftware, "s1")
	st.dropAverage = true

	_, err := svc.CreateRating(ctx, CreateParams{AuthorID: "alice", Score: 5, Parent: software})
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))

	_, found, err := svc.GetRatingByAuthorAndEntity(ctx, "alice", software)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRatingScenario(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	st.addUser("a")
	st.addUser("b")
	folder := st.addEntity(domain.KindFolder, "F")

	ra, err := svc.CreateRating(ctx, CreateParams{AuthorID: "a", Score: 4, Parent: folder})
	require.NoError(t, err)
	requireAverage(t, 4, ra.Entity.AverageRating)

	rb, err := svc.CreateRating(ctx, CreateParams{AuthorID: "b", Score: 2, Parent: folder})
	require.NoError(t, err)
	requireAverage(t, 3, rb.Entity.AverageRating)

	upd, err := svc.UpdateRating(ctx, UpdateParams{RatingID: ra.Rating.ID, Score: intPtr(5), CallerID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 5, upd.Rating.Score)
	assert.Equal(t, folder, upd.Rating.Parent)
	requireAverage(t, 3.5, upd.Entity.AverageRating)

	del, err := svc.DeleteRating(ctx, rb.Rating.ID)
	require.NoError(t, err)
	require.NotNil(t, del.Entity)
	requireAverage(t, 5, del.Entity.AverageRating)
	requireAverage(t, 5, st.entity(folder).AverageRating)

	_, err = svc.GetRatingByID(ctx, rb.Rating.ID)
	assert.True(t, IsNotFound(err))

	del, err = svc.DeleteRating(ctx, ra.Rating.ID)
	require.NoError(t, err)
	require.NotNil(t, del.Entity)
	assert.Nil(t, del.Entity.AverageRating, "deleting the last rating clears the cached average")

	avg, err := svc.GetAverageRating(ctx, folder)
	require.NoError(t, err)
	assert.Nil(t, avg)
}

func TestAverageIsOrderIndependent(t *testing.T) {
	scores := []int{5, 1, 4, 4, 2, 3}
	orders := [][]int{{0, 1, 2, 3, 4, 5}, {5, 4, 3, 2, 1, 0}, {2, 0, 5, 1, 3, 4}}

	for i, order := range orders {
		t.Run(fmt.Sprintf("order-%d", i), func(t *testing.T) {
			svc, st := newTestService(t)
			comment := st.addEntity(domain.KindComment, "c1")
			var last Result
			for _, idx := range order {
				author := fmt.Sprintf("user-%d", idx)
				st.addUser(author)
				var err error
				last, err = svc.CreateRating(context.Background(), CreateParams{AuthorID: author, Score: scores[idx], Parent: comment})
				require.NoError(t, err)
			}
			requireAverage(t, 19.0/6.0, last.Entity.AverageRating)
		})
	}
}

func TestUpdateRating_Preconditions(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	st.addUser("alice")
	folder := st.addEntity(domain.KindFolder, "f1")

	created, err := svc.CreateRating(ctx, CreateParams{AuthorID: "alice", Score: 2, Parent: folder})
	require.NoError(t, err)

	_, err = svc.UpdateRating(ctx, UpdateParams{RatingID: created.Rating.ID, Score: intPtr(3), CallerID: "ghost"})
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "User not found", MessageOf(err))

	_, err = svc.UpdateRating(ctx, UpdateParams{RatingID: "missing", Score: intPtr(3), CallerID: "alice"})
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "Rating not found", MessageOf(err))

	_, err = svc.UpdateRating(ctx, UpdateParams{RatingID: created.Rating.ID, Score: intPtr(3)})
	assert.True(t, IsInvalid(err))

	st.removeEntity(folder)
	_, err = svc.UpdateRating(ctx, UpdateParams{RatingID: created.Rating.ID, Score: intPtr(3), CallerID: "alice"})
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "folder not found", MessageOf(err))

	got, err := svc.GetRatingByID(ctx, created.Rating.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Score, "failed update must roll back")
}

func TestUpdateRating_WithoutScoreKeepsRating(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	st.addUser("alice")
	st.addUser("bob")
	comment := st.addEntity(domain.KindComment, "c1")

	created, err := svc.CreateRating(ctx, CreateParams{AuthorID: "alice", Score: 4, Parent: comment})
	require.NoError(t, err)

	res, err := svc.UpdateRating(ctx, UpdateParams{RatingID: created.Rating.ID, CallerID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rating.Score)
	assert.Equal(t, comment, res.Rating.Parent)
	requireAverage(t, 4, res.Entity.AverageRating)
}

func TestDeleteRating_ParentGone(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	st.addUser("alice")
	software := st.addEntity(domain.KindSoftware, "s1")

	created, err := svc.CreateRating(ctx, CreateParams{AuthorID: "alice", Score: 2, Parent: software})
	require.NoError(t, err)

	st.removeEntity(software)
	res, err := svc.DeleteRating(ctx, created.Rating.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Entity)

	_, err = svc.DeleteRating(ctx, created.Rating.ID)
	assert.True(t, IsNotFound(err))
}

func TestListRatings(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	folder := st.addEntity(domain.KindFolder, "f1")
	for i := 1; i <= 5; i++ {
		author := fmt.Sprintf("u%d", i)
		st.addUser(author)
		_, err := svc.CreateRating(ctx, CreateParams{AuthorID: author, Score: i, Parent: folder})
		require.NoError(t, err)
	}

	page, err := svc.ListRatings(ctx, ListParams{Limit: 2, PageIndex: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Items[0].Score)

	desc, err := svc.ListRatings(ctx, ListParams{Limit: 1, OrderBy: repository.OrderScore, Desc: true})
	require.NoError(t, err)
	require.Len(t, desc.Items, 1)
	assert.Equal(t, 5, desc.Items[0].Score)

	beyond, err := svc.ListRatings(ctx, ListParams{Limit: 10, PageIndex: 3})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)

	defaults, err := svc.ListRatings(ctx, ListParams{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, defaults.Limit)

	_, err = svc.ListRatings(ctx, ListParams{OrderBy: "password"})
	assert.True(t, IsInvalid(err))

	_, err = svc.ListRatings(ctx, ListParams{PageIndex: -1})
	assert.True(t, IsInvalid(err))

	for _, index := range []int{math.MaxInt/10 + 1, math.MaxInt32} {
		_, err = svc.ListRatings(ctx, ListParams{Limit: 10, PageIndex: index})
		require.Error(t, err, "page index %d", index)
		assert.True(t, IsInvalid(err))
		assert.Equal(t, "Invalid page", MessageOf(err))
	}
}

func TestAggregateFailureIsInternal(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	st.addUser("alice")
	folder := st.addEntity(domain.KindFolder, "f1")
	st.failAggregate = true

	_, err := svc.CreateRating(ctx, CreateParams{AuthorID: "alice", Score: 3, Parent: folder})
	assert.Equal(t, KindInternal, KindOf(err))

	_, err = svc.GetRatingAggregate(ctx, folder)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestConcurrentCreatesKeepOneRatingPerAuthor(t *testing.T) {
	svc, st := newTestService(t)
	st.addUser("alice")
	folder := st.addEntity(domain.KindFolder, "f1")

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(score int) {
			defer wg.Done()
			_, err := svc.CreateRating(context.Background(), CreateParams{AuthorID: "alice", Score: score, Parent: folder})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i%5 + 1)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}
