package fsub

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fsubbot/internal/storage"
	"fsubbot/internal/task/scheduler"
	"fsubbot/internal/transport"
	"fsubbot/pkg/logx"
)

const (
	botID     = int64(999)
	groupID   = int64(-100200)
	channelID = int64(-100300)
	userID    = int64(42)
)

type restrictCall struct {
	ChatID, UserID int64
	Perms          transport.Permissions
	Until          time.Time
}

type answerCall struct {
	Text  string
	Alert bool
}

type fakeGateway struct {
	mu       sync.Mutex
	status   map[string]transport.MemberStatus
	chats    map[string]transport.Chat
	nextMsg  int
	sent     []string
	deleted  []int
	restrict []restrictCall
	answers  []answerCall
	invites  int
	// calls is the ordered log of mutating gateway calls.
	calls []string

	restrictErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		status:  map[string]transport.MemberStatus{},
		chats:   map[string]transport.Chat{},
		nextMsg: 100,
	}
}

func key(chat transport.ChatRef, userID int64) string { return fmt.Sprintf("%s/%d", chat, userID) }

func (f *fakeGateway) setStatus(chatID, userID int64, st transport.MemberStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[key(transport.ChatRef{ID: chatID}, userID)] = st
}

func (f *fakeGateway) Self() transport.User { return transport.User{ID: botID, IsBot: true} }

func (f *fakeGateway) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	f.sent = append(f.sent, text)
	f.calls = append(f.calls, fmt.Sprintf("send:%d", f.nextMsg))
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextMsg}, nil
}

func (f *fakeGateway) DeleteMessage(_ context.Context, ref transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref.MessageID)
	f.calls = append(f.calls, fmt.Sprintf("delete:%d", ref.MessageID))
	return nil
}

func (f *fakeGateway) AnswerCallback(_ context.Context, _ string, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answerCall{Text: text, Alert: alert})
	return nil
}

func (f *fakeGateway) ResolveChat(_ context.Context, ref transport.ChatRef) (transport.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[ref.String()]
	if !ok {
		return transport.Chat{}, errors.New("chat not found")
	}
	return c, nil
}

func (f *fakeGateway) MemberStatus(_ context.Context, chat transport.ChatRef, userID int64) (transport.MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.status[key(chat, userID)]
	if !ok {
		return transport.MemberLeft, nil
	}
	return st, nil
}

func (f *fakeGateway) Restrict(_ context.Context, chatID, userID int64, perms transport.Permissions, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restrictErr != nil {
		return f.restrictErr
	}
	f.restrict = append(f.restrict, restrictCall{ChatID: chatID, UserID: userID, Perms: perms, Until: until})
	f.calls = append(f.calls, fmt.Sprintf("restrict:%d", userID))
	return nil
}

func (f *fakeGateway) CreateInviteLink(context.Context, transport.ChatRef, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites++
	return "https://t.me/+invite", nil
}

func (f *fakeGateway) snapshot() (sent []string, deleted []int, restrict []restrictCall, answers []answerCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), append([]int(nil), f.deleted...),
		append([]restrictCall(nil), f.restrict...), append([]answerCall(nil), f.answers...)
}

func (f *fakeGateway) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type onceCall struct {
	At  time.Time
	Job scheduler.Job
}

// fakeTimers records AddOnce calls; tests fire them by hand.
type fakeTimers struct {
	mu   sync.Mutex
	jobs map[string]onceCall
}

func (t *fakeTimers) AddOnce(name string, at time.Time, _ time.Duration, job scheduler.Job) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.jobs == nil {
		t.jobs = map[string]onceCall{}
	}
	t.jobs[name] = onceCall{At: at, Job: job}
	return nil
}

func (t *fakeTimers) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.jobs[name]
	delete(t.jobs, name)
	return ok
}

func (t *fakeTimers) Pending(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.jobs[name]
	return ok
}

func (t *fakeTimers) fire(ctx context.Context, name string) error {
	t.mu.Lock()
	c, ok := t.jobs[name]
	delete(t.jobs, name)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("no timer %q", name)
	}
	return c.Job(ctx)
}

type harness struct {
	gw     *fakeGateway
	timers *fakeTimers
	store  storage.Store
	engine *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "db.json")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{gw: newFakeGateway(), timers: &fakeTimers{}, store: st}
	h.engine = NewEngine(Deps{
		Gateway: h.gw,
		Repo:    NewRepository(st),
		Pending: st,
		Timers:  h.timers,
	})
	return h
}

// connect stores a config for groupID pointing at channelID with the bot
// as channel admin.
func (h *harness) connect(t *testing.T, delay int) {
	t.Helper()
	_, err := h.engine.Repo().Connect(context.Background(), groupID, "mychannel", channelID)
	require.NoError(t, err)
	if delay > 0 {
		require.NoError(t, h.engine.Repo().SetDelay(context.Background(), groupID, delay))
	}
	h.gw.setStatus(channelID, botID, transport.MemberAdministrator)
	h.gw.setStatus(groupID, userID, transport.MemberMember)
}

func groupMsg() *transport.Message {
	return &transport.Message{
		ID:       1,
		ChatID:   groupID,
		ChatType: transport.ChatSuperGroup,
		From:     transport.User{ID: userID, FirstName: "Ann"},
		Text:     "hello",
	}
}

func unmuteCallback(from int64) *transport.Callback {
	return &transport.Callback{ID: "cb1", From: transport.User{ID: from}, ChatID: groupID, MessageID: 101, Data: UnmuteData(groupID, userID)}
}
