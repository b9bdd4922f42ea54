package application

import (
	"context"
	"errors"
	"testing"

	"userdata-gateway/userdata/domain"
	"userdata-gateway/userdata/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

func newRouter(t *testing.T, emails ...string) (Router, *infra.MemoryStore) {
	t.Helper()
	store := infra.NewMemoryStore()
	for _, e := range emails {
		require.NoError(t, store.CreateUser(context.Background(), e))
	}
	return Router{Store: store}, store
}

func TestRouter_SettingsOverwriteOnlyNamedKey(t *testing.T) {
	r, store := newRouter(t, alice)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, alice, domain.SettingsUpdate{Key: "backgroundColor", Value: "#fff"}))
	require.NoError(t, r.Apply(ctx, alice, domain.SettingsUpdate{Key: "counter", Value: int64(5)}))
	require.NoError(t, r.Apply(ctx, alice, domain.SettingsUpdate{Key: "counter", Value: int64(6)}))

	rec, err := store.FindUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"backgroundColor": "#fff", "counter": int64(6)}, rec.Settings)
}

func TestRouter_StatisticsReplacedAsUnitAndIdempotent(t *testing.T) {
	r, store := newRouter(t, alice)
	ctx := context.Background()

	m := domain.StatisticsUpdate{Statistics: domain.Statistics{Average: 10, AverageOf5: 12}}
	require.NoError(t, r.Apply(ctx, alice, m))
	once, _ := store.FindUser(ctx, alice)

	require.NoError(t, r.Apply(ctx, alice, m))
	twice, _ := store.FindUser(ctx, alice)

	assert.Equal(t, domain.Statistics{Average: 10, AverageOf5: 12}, twice.Statistics)
	assert.Equal(t, once, twice)
}

func TestRouter_TimesAppendWithoutDedup(t *testing.T) {
	r, store := newRouter(t, alice)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, alice, domain.TimeEntry{Time: 7}))
	require.NoError(t, r.Apply(ctx, alice, domain.TimeEntry{Time: 42}))
	require.NoError(t, r.Apply(ctx, alice, domain.TimeEntry{Time: 42}))

	rec, _ := store.FindUser(ctx, alice)
	assert.Equal(t, []int64{7, 42, 42}, rec.Times)
}

func TestRouter_MutationsAreIdentityScoped(t *testing.T) {
	r, store := newRouter(t, alice, bob)
	ctx := context.Background()

	before, _ := store.FindUser(ctx, bob)
	require.NoError(t, r.Apply(ctx, alice, domain.SettingsUpdate{Key: "counter", Value: int64(1)}))
	require.NoError(t, r.Apply(ctx, alice, domain.StatisticsUpdate{Statistics: domain.Statistics{Average: 1, AverageOf5: 2}}))
	require.NoError(t, r.Apply(ctx, alice, domain.TimeEntry{Time: 3}))
	after, _ := store.FindUser(ctx, bob)

	assert.Equal(t, before, after)
}

func TestRouter_StorageErrorsAreWrapped(t *testing.T) {
	r, _ := newRouter(t)

	err := r.Apply(context.Background(), alice, domain.TimeEntry{Time: 1})
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	var serr *domain.StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "add time", serr.Op)
}

func TestRouter_EmptyIdentityIsUnauthenticated(t *testing.T) {
	r, _ := newRouter(t)
	assert.ErrorIs(t, r.Apply(context.Background(), "", domain.TimeEntry{Time: 1}), domain.ErrUnauthenticated)

	_, err := r.User(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestRouter_UserProjection(t *testing.T) {
	r, _ := newRouter(t, alice)
	ctx := context.Background()
	require.NoError(t, r.Apply(ctx, alice, domain.TimeEntry{Time: 9}))

	info, err := r.User(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.UserInfo{
		Email:    alice,
		Settings: map[string]any{},
		Times:    []int64{9},
	}, info)
}

func TestRouter_UserMissingWithoutProvisionFails(t *testing.T) {
	r, _ := newRouter(t)
	_, err := r.User(context.Background(), alice)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestRouter_UserAutoProvision(t *testing.T) {
	r, _ := newRouter(t)
	r.AutoProvision = true

	info, err := r.User(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, alice, info.Email)
	assert.Empty(t, info.Times)
}
