package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-chat/internal/mocks"
	"support-chat/internal/models"
	"support-chat/internal/repositories"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestFindByIDWithoutRedis(t *testing.T) {
	repo := new(mocks.UserRepositoryMock)
	dir := NewUserDirectory(repo, nil, time.Minute)

	repo.On("FindByID", mock.Anything, "u1").Return(models.User{ID: "u1", Role: models.RoleCustomer, IsActive: true}, nil).Twice()

	for i := 0; i < 2; i++ {
		user, err := dir.FindByID(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", user.ID)
	}
	repo.AssertExpectations(t)
}

func TestFindByIDNotFound(t *testing.T) {
	repo := new(mocks.UserRepositoryMock)
	dir := NewUserDirectory(repo, nil, time.Minute)

	repo.On("FindByID", mock.Anything, "ghost").Return(nil, repositories.ErrUserNotFound).Once()

	_, err := dir.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
	repo.AssertExpectations(t)
}

func TestFindByIDAlwaysReadsRepository(t *testing.T) {
	mr, client := newRedis(t)
	store := mocks.NewMemoryStore()
	store.PutUser(models.User{ID: "u1", DisplayName: "Ann", Role: models.RoleCustomer, IsActive: true})
	dir := NewUserDirectory(store, client, time.Minute)
	ctx := context.Background()

	user, err := dir.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	assert.True(t, mr.Exists(keyPrefix+"u1"))

	store.PutUser(models.User{ID: "u1", DisplayName: "Ann", Role: models.RoleCustomer, IsActive: false})

	user, err = dir.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, user.IsActive)
}

func TestCachedEntryHoldsDisplayIdentityOnly(t *testing.T) {
	mr, client := newRedis(t)
	store := mocks.NewMemoryStore()
	store.PutUser(models.User{ID: "u1", DisplayName: "Ann", Role: models.RoleAgent, IsActive: true})
	dir := NewUserDirectory(store, client, time.Minute)

	_, err := dir.FindByID(context.Background(), "u1")
	require.NoError(t, err)

	raw, err := mr.Get(keyPrefix + "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","displayName":"Ann"}`, raw)
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"u1"))
}

func TestSummariesWithoutRedis(t *testing.T) {
	repo := new(mocks.UserRepositoryMock)
	dir := NewUserDirectory(repo, nil, time.Minute)

	repo.On("FindByIDs", mock.Anything, []string{"u1", "u2"}).Return([]models.User{{ID: "u1"}, {ID: "u2"}}, nil).Once()

	summaries, err := dir.Summaries(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	summaries, err = dir.Summaries(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, summaries)
	repo.AssertExpectations(t)
}

func TestSummariesServedFromRedis(t *testing.T) {
	_, client := newRedis(t)
	repo := new(mocks.UserRepositoryMock)
	dir := NewUserDirectory(repo, client, time.Minute)
	ctx := context.Background()

	repo.On("FindByIDs", mock.Anything, []string{"u1", "u2"}).
		Return([]models.User{{ID: "u1", DisplayName: "Ann"}, {ID: "u2", DisplayName: "Bob"}}, nil).Once()
	repo.On("FindByIDs", mock.Anything, []string{"u3"}).
		Return([]models.User{{ID: "u3", DisplayName: "Cid"}}, nil).Once()

	first, err := dir.Summaries(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.UserSummary{{ID: "u1", DisplayName: "Ann"}, {ID: "u2", DisplayName: "Bob"}}, first)

	second, err := dir.Summaries(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.UserSummary{
		{ID: "u1", DisplayName: "Ann"},
		{ID: "u2", DisplayName: "Bob"},
		{ID: "u3", DisplayName: "Cid"},
	}, second)
	repo.AssertExpectations(t)
}

func TestFindByIDRefreshesCachedSummary(t *testing.T) {
	_, client := newRedis(t)
	store := mocks.NewMemoryStore()
	store.PutUser(models.User{ID: "a1", DisplayName: "Agent", Role: models.RoleAgent, IsActive: true})
	dir := NewUserDirectory(store, client, time.Minute)
	ctx := context.Background()

	summaries, err := dir.Summaries(ctx, []string{"a1"})
	require.NoError(t, err)
	require.Equal(t, []models.UserSummary{{ID: "a1", DisplayName: "Agent"}}, summaries)

	store.PutUser(models.User{ID: "a1", DisplayName: "Agent Smith", Role: models.RoleAgent, IsActive: true})
	_, err = dir.FindByID(ctx, "a1")
	require.NoError(t, err)

	summaries, err = dir.Summaries(ctx, []string{"a1"})
	require.NoError(t, err)
	assert.Equal(t, []models.UserSummary{{ID: "a1", DisplayName: "Agent Smith"}}, summaries)
}

func TestSummariesFallBackWhenRedisIsDown(t *testing.T) {
	mr, client := newRedis(t)
	store := mocks.NewMemoryStore()
	store.PutUser(models.User{ID: "u1", DisplayName: "Ann", IsActive: true})
	dir := NewUserDirectory(store, client, time.Minute)
	mr.Close()

	summaries, err := dir.Summaries(context.Background(), []string{"u1", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []models.UserSummary{{ID: "u1", DisplayName: "Ann"}}, summaries)

	user, err := dir.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", user.DisplayName)
}

func TestFindByIDCoalescesConcurrentLookups(t *testing.T) {
	store := &slowUsers{user: models.User{ID: "u1", IsActive: true}}
	dir := NewUserDirectory(store, nil, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := dir.FindByID(context.Background(), "u1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Less(t, store.calls, 10, "concurrent lookups should share repository calls")
}

type slowUsers struct {
	mu    sync.Mutex
	calls int
	user  models.User
}

func (s *slowUsers) FindByID(_ context.Context, _ string) (models.User, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	return s.user, nil
}

func (s *slowUsers) FindByIDs(_ context.Context, _ []string) ([]models.User, error) {
	return []models.User{s.user}, nil
}
