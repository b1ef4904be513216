package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsubbot/internal/transport"
	"fsubbot/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	replies []string
	answers []string
	status  map[int64]transport.MemberStatus
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                          { return nil }
func (f *fakeAdapter) Self() transport.User {
	return transport.User{ID: 1, Username: "fsub_bot", IsBot: true}
}

func (f *fakeAdapter) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return transport.MessageRef{}, nil
}

func (f *fakeAdapter) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return nil
}
func (f *fakeAdapter) DeleteMessage(context.Context, transport.MessageRef) error { return nil }

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) CopyMessage(context.Context, transport.ChatTarget, transport.MessageRef) (transport.MessageRef, error) {
	return transport.MessageRef{}, nil
}
func (f *fakeAdapter) PinMessage(context.Context, transport.MessageRef) error { return nil }
func (f *fakeAdapter) ResolveChat(context.Context, transport.ChatRef) (transport.Chat, error) {
	return transport.Chat{}, errors.New("not implemented")
}

func (f *fakeAdapter) MemberStatus(_ context.Context, _ transport.ChatRef, userID int64) (transport.MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.status[userID]; ok {
		return st, nil
	}
	return transport.MemberMember, nil
}

func (f *fakeAdapter) Restrict(context.Context, int64, int64, transport.Permissions, time.Time) error {
	return nil
}

func (f *fakeAdapter) CreateInviteLink(context.Context, transport.ChatRef, string) (string, error) {
	return "", nil
}

func (f *fakeAdapter) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replies...), append([]string(nil), f.answers...)
}

func groupText(chatID, from int64, text string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ChatID: chatID, ChatType: transport.ChatSuperGroup, From: transport.User{ID: from}, Text: text,
	}}
}

func privateText(from int64, text string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ChatID: from, ChatType: transport.ChatPrivate, From: transport.User{ID: from}, Text: text,
	}}
}

// recorder collects handled items in order.
type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.seen = append(r.seen, s)
	r.mu.Unlock()
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func startRouter(t *testing.T, ad *fakeAdapter, rec *recorder) chan<- transport.Update {
	t.Helper()
	rt := New(logx.Nop(), ad, Options{
		Workers: 3,
		Owners:  []int64{100},
		OnMessage: func(_ context.Context, m *transport.Message) {
			rec.add("msg:" + m.Text)
		},
	})
	cmd := func(name string) HandlerFunc {
		return func(_ context.Context, req *Request) error {
			rec.add(name + ":" + req.Command)
			return nil
		}
	}
	rt.SetRegistry([]Command{
		{Name: "start", Handle: cmd("start")},
		{Name: "status", Access: AccessOwnerOnly, Handle: cmd("status")},
		{Name: "setdelay", Access: AccessGroupAdmin, Scope: ScopeGroup, Handle: func(_ context.Context, req *Request) error {
			rec.add("setdelay:" + req.Args[0])
			return nil
		}},
	}, []CallbackRoute{
		{NS: "fsub", Action: "unmute", Handle: func(_ context.Context, req *Request) error {
			rec.add("cb:" + req.Payload)
			return nil
		}},
	})
	updates := make(chan transport.Update)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = rt.Run(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return updates
}

func TestParseCommand(t *testing.T) {
	name, args, ok := parseCommand("/SetDelay 45", "fsub_bot")
	require.True(t, ok)
	assert.Equal(t, "setdelay", name)
	assert.Equal(t, []string{"45"}, args)

	name, _, ok = parseCommand("/fsub@FSub_Bot @news", "fsub_bot")
	require.True(t, ok)
	assert.Equal(t, "fsub", name)

	_, _, ok = parseCommand("/fsub@other_bot", "fsub_bot")
	assert.False(t, ok)
	_, _, ok = parseCommand("hello /fsub", "fsub_bot")
	assert.False(t, ok)
	_, _, ok = parseCommand("/", "fsub_bot")
	assert.False(t, ok)
}

func TestBuildMenu(t *testing.T) {
	menu := buildMenu([]Command{
		{Name: "start", Description: "Introduction"},
		{Name: "status", Description: "Bot status", Access: AccessOwnerOnly},
		{Name: "hidden", Hidden: true},
		{Name: "start"},
	})
	require.Len(t, menu, 2)
	assert.Equal(t, transport.BotCommand{Command: "start", Description: "Introduction"}, menu[0])
	assert.Equal(t, "🔒 Bot status", menu[1].Description)
	assert.Equal(t, "get_delay", sanitizeTelegramCommand("Get-Delay"))
}

func TestRouting(t *testing.T) {
	ad := &fakeAdapter{status: map[int64]transport.MemberStatus{7: transport.MemberAdministrator}}
	rec := &recorder{}
	in := startRouter(t, ad, rec)

	in <- privateText(5, "/start")
	in <- groupText(-1, 5, "hello")
	in <- groupText(-1, 5, "/unknown")
	in <- groupText(-1, 5, "/start@other_bot")
	in <- privateText(5, "just text")
	in <- groupText(-1, 7, "/setdelay 30")
	in <- privateText(100, "/status")
	in <- transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{ID: "c", ChatID: -1, From: transport.User{ID: 5}, Data: "fsub:unmute:-1_5"}}

	assert.Eventually(t, func() bool { return len(rec.get()) == 7 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{
		"start:start", "msg:hello", "msg:/unknown", "msg:/start@other_bot",
		"setdelay:30", "status:status", "cb:-1_5",
	}, rec.get())
}

func TestAccessDenials(t *testing.T) {
	ad := &fakeAdapter{}
	rec := &recorder{}
	in := startRouter(t, ad, rec)

	in <- privateText(5, "/status")
	in <- privateText(5, "/setdelay 30")
	in <- groupText(-1, 5, "/setdelay 30")
	in <- privateText(5, "/nope")
	in <- transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{ID: "c", From: transport.User{ID: 5}, Data: "x:y"}}

	assert.Eventually(t, func() bool {
		replies, answers := ad.snapshot()
		return len(replies) == 4 && len(answers) == 1
	}, 2*time.Second, 10*time.Millisecond)
	replies, _ := ad.snapshot()
	assert.ElementsMatch(t, []string{denyOwnerOnly, denyGroupOnly, denyAdminOnly, "Unknown command. Try /help"}, replies)
	assert.Empty(t, rec.get())
}

func TestPerChatOrdering(t *testing.T) {
	ad := &fakeAdapter{}
	rec := &recorder{}
	in := startRouter(t, ad, rec)

	want := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		text := string(rune('a'+i%26)) + string(rune('0'+i/26))
		want = append(want, "msg:"+text)
		in <- groupText(-42, 5, text)
	}
	assert.Eventually(t, func() bool { return len(rec.get()) == 50 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, rec.get())
}

func TestShardOfIsStable(t *testing.T) {
	assert.Equal(t, shardOf(-1001, 4), shardOf(-1001, 4))
	for _, id := range []int64{-1, 0, 1, 1 << 40} {
		s := shardOf(id, 4)
		assert.True(t, s >= 0 && s < 4)
	}
}
