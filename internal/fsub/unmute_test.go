package fsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsubbot/internal/storage"
	"fsubbot/internal/transport"
)

func TestUnmuteForeignUserRejected(t *testing.T) {
	h := newHarness(t)
	h.connect(t, 0)
	h.gw.setStatus(channelID, userID, transport.MemberMember)
	h.engine.warnings.Add(groupID, userID, 101)

	assert.True(t, h.engine.HandleCallback(context.Background(), unmuteCallback(7)))

	_, deleted, restrict, answers := h.gw.snapshot()
	assert.Empty(t, deleted)
	assert.Empty(t, restrict)
	require.Len(t, answers, 1)
	assert.Equal(t, answerCall{Text: alertNotYours, Alert: true}, answers[0])
	assert.Equal(t, []int{101}, h.engine.warnings.Take(groupID, userID))
}

func TestUnmuteWithoutConfig(t *testing.T) {
	h := newHarness(t)
	h.engine.HandleCallback(context.Background(), unmuteCallback(userID))

	_, _, restrict, answers := h.gw.snapshot()
	assert.Empty(t, restrict)
	require.Len(t, answers, 1)
	assert.Equal(t, alertConfigError, answers[0].Text)
}

func TestUnmuteNotJoinedYet(t *testing.T) {
	h := newHarness(t)
	h.connect(t, 0)
	h.gw.setStatus(channelID, userID, transport.MemberLeft)

	h.engine.HandleCallback(context.Background(), unmuteCallback(userID))

	_, deleted, restrict, answers := h.gw.snapshot()
	assert.Empty(t, deleted)
	assert.Empty(t, restrict)
	require.Len(t, answers, 1)
	assert.Equal(t, alertNotJoined, answers[0].Text)
}

func TestImmediateUnmute(t *testing.T) {
	h := newHarness(t)
	h.connect(t, 0)
	h.gw.setStatus(channelID, userID, transport.MemberMember)
	h.engine.warnings.Add(groupID, userID, 101)

	h.engine.HandleCallback(context.Background(), unmuteCallback(userID))

	_, deleted, restrict, answers := h.gw.snapshot()
	assert.Equal(t, []int{101}, deleted)
	require.Len(t, restrict, 1)
	assert.Equal(t, transport.Permissive(), restrict[0].Perms, "no group defaults known")
	assert.WithinDuration(t, time.Now().Add(time.Second), restrict[0].Until, 2*time.Second)
	assert.Empty(t, h.timers.jobs)
	assert.Empty(t, h.engine.warnings.Take(groupID, userID))
	require.Len(t, answers, 1)
	assert.False(t, answers[0].Alert)
	assert.Equal(t, uint64(1), h.engine.Stats().Unmutes)
}

func TestImmediateUnmuteUsesGroupDefaults(t *testing.T) {
	h := newHarness(t)
	h.connect(t, 0)
	h.gw.setStatus(channelID, userID, transport.MemberMember)
	defaults := transport.Permissions{SendMessages: true}
	h.gw.chats["-100200"] = transport.Chat{ID: groupID, Type: transport.ChatSuperGroup, Permissions: &defaults}

	h.engine.HandleCallback(context.Background(), unmuteCallback(userID))

	_, _, restrict, _ := h.gw.snapshot()
	require.Len(t, restrict, 1)
	assert.Equal(t, defaults, restrict[0].Perms)
}

func TestDelayedUnmute(t *testing.T) {
	h := newHarness(t)
	h.connect(t, 45)
	h.gw.setStatus(channelID, userID, transport.MemberMember)
	start := time.Now()

	h.engine.HandleCallback(context.Background(), unmuteCallback(userID))

	_, _, restrict, _ := h.gw.snapshot()
	require.Len(t, restrict, 1)
	assert.Equal(t, transport.Muted(), restrict[0].Perms, "re-muted for the delay")
	assert.WithinDuration(t, start.Add(45*time.Second), restrict[0].Until, 2*time.Second)

	name := timerName(groupID, userID)
	require.True(t, h.timers.Pending(name))
	assert.WithinDuration(t, start.Add(45*time.Second), h.timers.jobs[name].At, 2*time.Second)

	pending, err := h.store.PendingUnmutes(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, h.timers.fire(context.Background(), name))

	_, _, restrict, _ = h.gw.snapshot()
	require.Len(t, restrict, 2)
	assert.Equal(t, transport.Permissive(), restrict[1].Perms)
	pending, err = h.store.PendingUnmutes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, uint64(1), h.engine.Stats().DelayedCompleted)
}

func TestRecoverAndSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, h.store.PutPendingUnmute(ctx, storage.PendingUnmute{GroupID: groupID, UserID: 1, DueAt: now.Add(time.Hour)}))
	require.NoError(t, h.store.PutPendingUnmute(ctx, storage.PendingUnmute{GroupID: groupID, UserID: 2, DueAt: now.Add(-time.Hour)}))

	n, err := h.engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, h.timers.Pending(timerName(groupID, 1)))
	assert.True(t, h.timers.Pending(timerName(groupID, 2)))

	// armed entries are left to their timers
	require.NoError(t, h.engine.Sweep(ctx))
	_, _, restrict, _ := h.gw.snapshot()
	assert.Empty(t, restrict)

	h.timers.Remove(timerName(groupID, 2))
	require.NoError(t, h.engine.Sweep(ctx))
	_, _, restrict, _ = h.gw.snapshot()
	require.Len(t, restrict, 1)
	assert.Equal(t, int64(2), restrict[0].UserID)

	pending, err := h.store.PendingUnmutes(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1), pending[0].UserID)
}

func TestHandleCallbackIgnoresOtherNamespaces(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.engine.HandleCallback(context.Background(), &transport.Callback{Data: "bcast:pin:yes"}))
}
