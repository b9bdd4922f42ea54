package infra

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"userdata-gateway/userdata/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore roda o mesmo conjunto de casos contra qualquer Store.
func exerciseStore(t *testing.T, store domain.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing user", func(t *testing.T) {
		_, err := store.FindUser(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)

		err = store.AddTime(ctx, "ghost@example.com", 1)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
		err = store.UpdateSettings(ctx, "ghost@example.com", domain.SettingCounter, int64(1))
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("create twice", func(t *testing.T) {
		require.NoError(t, store.CreateUser(ctx, "dup@example.com"))
		assert.ErrorIs(t, store.CreateUser(ctx, "dup@example.com"), domain.ErrUserExists)
	})

	t.Run("settings overwrite single key", func(t *testing.T) {
		email := "settings@example.com"
		require.NoError(t, store.CreateUser(ctx, email))
		require.NoError(t, store.UpdateSettings(ctx, email, domain.SettingBackgroundColor, "#abc"))
		require.NoError(t, store.UpdateSettings(ctx, email, domain.SettingCounter, int64(3)))
		require.NoError(t, store.UpdateSettings(ctx, email, domain.SettingCounter, int64(7)))

		rec, err := store.FindUser(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			domain.SettingBackgroundColor: "#abc",
			domain.SettingCounter:         int64(7),
		}, rec.Settings)
	})

	t.Run("statistics replace as group", func(t *testing.T) {
		email := "stats@example.com"
		require.NoError(t, store.CreateUser(ctx, email))
		require.NoError(t, store.UpdateStatistics(ctx, email, domain.Statistics{Average: 12, AverageOf5: 10}))
		require.NoError(t, store.UpdateStatistics(ctx, email, domain.Statistics{Average: 9, AverageOf5: 0}))

		rec, err := store.FindUser(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, domain.Statistics{Average: 9, AverageOf5: 0}, rec.Statistics)
	})

	t.Run("times append in order with duplicates", func(t *testing.T) {
		email := "times@example.com"
		require.NoError(t, store.CreateUser(ctx, email))
		for _, v := range []int64{15320, 15320, 0} {
			require.NoError(t, store.AddTime(ctx, email, v))
		}

		rec, err := store.FindUser(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, []int64{15320, 15320, 0}, rec.Times)
	})

	t.Run("concurrent appends are not lost", func(t *testing.T) {
		email := "race@example.com"
		require.NoError(t, store.CreateUser(ctx, email))

		const n = 20
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.AddTime(ctx, email, int64(i)))
			}()
		}
		wg.Wait()

		rec, err := store.FindUser(ctx, email)
		require.NoError(t, err)
		assert.Len(t, rec.Times, n)
		assert.ElementsMatch(t, seq(n), rec.Times)
	})

	t.Run("records are isolated", func(t *testing.T) {
		a, b := "a@example.com", "b@example.com"
		require.NoError(t, store.CreateUser(ctx, a))
		require.NoError(t, store.CreateUser(ctx, b))
		require.NoError(t, store.AddTime(ctx, a, 42))

		rec, err := store.FindUser(ctx, b)
		require.NoError(t, err)
		assert.Empty(t, rec.Times, fmt.Sprintf("%s must not see %s's times", b, a))
	})
}

func seq(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out
}
