package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fsubbot/internal/broadcast"
	"fsubbot/internal/fsub"
	"fsubbot/internal/storage"
	"fsubbot/internal/transport"
	"fsubbot/internal/transport/telegram/router"
	"fsubbot/pkg/logx"
)

const (
	botID     = int64(999)
	ownerID   = int64(1)
	adminID   = int64(7)
	groupID   = int64(-100200)
	channelID = int64(-100300)
)

type sentMsg struct {
	To   transport.ChatTarget
	Text string
	Opt  *transport.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	chats   map[string]transport.Chat
	status  map[string]transport.MemberStatus
	sent    []sentMsg
	edits   []string
	answers []string
	alerts  []bool
	copies  []int64
	nextMsg int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{chats: map[string]transport.Chat{}, status: map[string]transport.MemberStatus{}, nextMsg: 500}
}

func memberKey(chat transport.ChatRef, userID int64) string { return fmt.Sprintf("%s/%d", chat, userID) }

func (f *fakeAdapter) addChannel(id int64, username string, botStatus transport.MemberStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := transport.Chat{ID: id, Type: transport.ChatChannel, Username: username}
	f.chats[transport.ChatRef{ID: id}.String()] = c
	if username != "" {
		f.chats["@"+username] = c
	}
	if botStatus != "" {
		f.status[memberKey(transport.ChatRef{ID: id}, botID)] = botStatus
	}
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                          { return nil }
func (f *fakeAdapter) Self() transport.User {
	return transport.User{ID: botID, Username: "fsub_bot", FirstName: "FSub", IsBot: true}
}

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	f.sent = append(f.sent, sentMsg{To: to, Text: text, Opt: opt})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextMsg}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ transport.MessageRef, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) DeleteMessage(context.Context, transport.MessageRef) error { return nil }

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeAdapter) CopyMessage(_ context.Context, to transport.ChatTarget, _ transport.MessageRef) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	f.copies = append(f.copies, to.ChatID)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextMsg}, nil
}

func (f *fakeAdapter) PinMessage(context.Context, transport.MessageRef) error { return nil }

func (f *fakeAdapter) ResolveChat(_ context.Context, ref transport.ChatRef) (transport.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[ref.String()]
	if !ok {
		return transport.Chat{}, errors.New("chat not found")
	}
	return c, nil
}

func (f *fakeAdapter) MemberStatus(_ context.Context, chat transport.ChatRef, userID int64) (transport.MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.status[memberKey(chat, userID)]
	if !ok {
		return "", errors.New("member not found")
	}
	return st, nil
}

func (f *fakeAdapter) Restrict(context.Context, int64, int64, transport.Permissions, time.Time) error {
	return nil
}

func (f *fakeAdapter) CreateInviteLink(context.Context, transport.ChatRef, string) (string, error) {
	return "https://t.me/+invite", nil
}

// lastText returns the text of the most recent SendText.
func (f *fakeAdapter) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

func (f *fakeAdapter) lastSent() sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMsg{}
	}
	return f.sent[len(f.sent)-1]
}

type harness struct {
	ad    *fakeAdapter
	store storage.Store
	h     *Handlers
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "fsub.json")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ad := newFakeAdapter()
	engine := fsub.NewEngine(fsub.Deps{Gateway: ad, Repo: fsub.NewRepository(store), Pending: store})
	h := New(Deps{
		Engine:     engine,
		Store:      store,
		Broadcasts: broadcast.NewSessions(),
		Dispatcher: broadcast.NewDispatcher(ad, store, nil, logx.Nop()),
		Go: func(_ string, fn func(ctx context.Context) error) {
			_ = fn(context.Background())
		},
		Support:   func() string { return "@support" },
		StartedAt: time.Now().Add(-time.Hour),
	})
	return &harness{ad: ad, store: store, h: h}
}

func (hs *harness) groupReq(from int64, args ...string) *router.Request {
	return &router.Request{
		Message: &transport.Message{ID: 10, ChatID: groupID, ChatType: transport.ChatSuperGroup, From: transport.User{ID: from}},
		Chat:    transport.ChatTarget{ChatID: groupID},
		From:    transport.User{ID: from},
		Args:    args,
		Adapter: hs.ad,
		Logger:  logx.Nop(),
	}
}

func (hs *harness) privateReq(from transport.User) *router.Request {
	return &router.Request{
		Message: &transport.Message{ID: 11, ChatID: from.ID, ChatType: transport.ChatPrivate, From: from},
		Chat:    transport.ChatTarget{ChatID: from.ID},
		From:    from,
		IsOwner: from.ID == ownerID,
		Adapter: hs.ad,
		Logger:  logx.Nop(),
	}
}

func (hs *harness) callbackReq(from int64, payload string) *router.Request {
	return &router.Request{
		Callback: &transport.Callback{ID: "cb", From: transport.User{ID: from}, ChatID: from, MessageID: 77},
		Chat:     transport.ChatTarget{ChatID: from},
		From:     transport.User{ID: from},
		Payload:  payload,
		IsOwner:  from == ownerID,
		Adapter:  hs.ad,
		Logger:   logx.Nop(),
	}
}
