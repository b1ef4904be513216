package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsubbot/pkg/logx"
)

func openTestStores(t *testing.T) map[string]func() Store {
	t.Helper()
	dir := t.TempDir()
	return map[string]func() Store{
		"file": func() Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "file", "bot.json")}, logx.Nop())
			require.NoError(t, err)
			return st
		},
		"sqlite": func() Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "bot.db")}, logx.Nop())
			require.NoError(t, err)
			return st
		},
	}
}

func TestStoreGroups(t *testing.T) {
	ctx := context.Background()
	for name, open := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()

			_, err := st.GetGroup(ctx, -100)
			require.ErrorIs(t, err, ErrNotFound)
			require.ErrorIs(t, st.SetUnmuteDelay(ctx, -100, 30), ErrNotFound)

			require.NoError(t, st.PutGroup(ctx, Group{GroupID: -100, Channel: "news", ChannelID: -1001}))
			require.NoError(t, st.PutGroup(ctx, Group{GroupID: -200, Channel: "-1002", ChannelID: -1002}))
			require.NoError(t, st.SetUnmuteDelay(ctx, -100, 45))

			g, err := st.GetGroup(ctx, -100)
			require.NoError(t, err)
			assert.Equal(t, "news", g.Channel)
			assert.Equal(t, int64(-1001), g.ChannelID)
			assert.Equal(t, 45, g.UnmuteDelay)

			ids, err := st.GroupIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int64{-200, -100}, ids)

			ok, err := st.DeleteGroup(ctx, -200)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = st.DeleteGroup(ctx, -200)
			require.NoError(t, err)
			assert.False(t, ok)

			n, err := st.CountGroups(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			require.NoError(t, st.Ping(ctx))
		})
	}
}

func TestStoreUsersAndPending(t *testing.T) {
	ctx := context.Background()
	for name, open := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()

			require.NoError(t, st.PutUser(ctx, User{UserID: 7, FirstName: "Ann"}))
			require.NoError(t, st.PutUser(ctx, User{UserID: 7, FirstName: "Ann", Username: "ann"}))
			require.NoError(t, st.PutUser(ctx, User{UserID: 3, FirstName: "Bo"}))

			ids, err := st.UserIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int64{3, 7}, ids)
			n, err := st.CountUsers(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			due := time.Now().Add(time.Minute).Truncate(time.Millisecond)
			require.NoError(t, st.PutPendingUnmute(ctx, PendingUnmute{GroupID: -1, UserID: 7, DueAt: due}))
			require.NoError(t, st.PutPendingUnmute(ctx, PendingUnmute{GroupID: -1, UserID: 3, DueAt: due.Add(-time.Second)}))

			pending, err := st.PendingUnmutes(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, int64(3), pending[0].UserID)
			assert.True(t, due.Equal(pending[1].DueAt))

			require.NoError(t, st.DeletePendingUnmute(ctx, -1, 3))
			require.NoError(t, st.DeletePendingUnmute(ctx, -1, 3))
			pending, err = st.PendingUnmutes(ctx)
			require.NoError(t, err)
			assert.Len(t, pending, 1)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.PutGroup(ctx, Group{GroupID: -5, Channel: "chan"}))
	require.NoError(t, st.SetUnmuteDelay(ctx, -5, 60))
	require.NoError(t, st.PutPendingUnmute(ctx, PendingUnmute{GroupID: -5, UserID: 9, DueAt: time.Now()}))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	g, err := st.GetGroup(ctx, -5)
	require.NoError(t, err)
	assert.Equal(t, 60, g.UnmuteDelay)
	pending, err := st.PendingUnmutes(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mongo"}, logx.Nop())
	require.Error(t, err)
}
