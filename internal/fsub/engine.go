package fsub

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"fsubbot/internal/eventbus"
	"fsubbot/internal/storage"
	"fsubbot/internal/task/scheduler"
	"fsubbot/internal/transport"
	"fsubbot/pkg/logx"
	"fsubbot/pkg/tgui"
)

const (
	MuteDuration = 300 * time.Second
	NoticeWindow = 3600 * time.Second

	// CallbackNS prefixes every callback handled by this package.
	CallbackNS = "fsub"
)

// Domain events published on the bus.
const (
	EventMuted   = "fsub.muted"
	EventUnmuted = "fsub.unmuted"
)

// MemberEvent is the payload of EventMuted and EventUnmuted.
type MemberEvent struct {
	GroupID int64
	UserID  int64
	Delayed bool
}

// Gateway is the subset of the platform adapter used here.
type Gateway interface {
	Self() transport.User
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
	DeleteMessage(ctx context.Context, ref transport.MessageRef) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	ResolveChat(ctx context.Context, ref transport.ChatRef) (transport.Chat, error)
	MemberStatus(ctx context.Context, chat transport.ChatRef, userID int64) (transport.MemberStatus, error)
	Restrict(ctx context.Context, chatID, userID int64, perms transport.Permissions, until time.Time) error
	CreateInviteLink(ctx context.Context, chat transport.ChatRef, name string) (string, error)
}

// Timers schedules one-shot jobs by name.
type Timers interface {
	AddOnce(name string, at time.Time, timeout time.Duration, job scheduler.Job) error
	Remove(name string) bool
	Pending(name string) bool
}

type Deps struct {
	Gateway  Gateway
	Repo     *Repository
	Pending  storage.PendingStore
	Timers   Timers
	Warnings WarningTracker
	Sessions *Sessions // notice throttles; also the default WarningTracker
	Bus      eventbus.Bus
	Log      logx.Logger
}

type Stats struct {
	Mutes            uint64
	MuteFailures     uint64
	Unmutes          uint64
	DelayedScheduled uint64
	DelayedCompleted uint64
}

// Engine runs the mute/unmute state machine.
type Engine struct {
	gw       Gateway
	repo     *Repository
	pending  storage.PendingStore
	timers   Timers
	warnings WarningTracker
	sessions *Sessions
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	invites inviteCache

	mutes            atomic.Uint64
	muteFailures     atomic.Uint64
	unmutes          atomic.Uint64
	delayedScheduled atomic.Uint64
	delayedCompleted atomic.Uint64
}

func NewEngine(d Deps) *Engine {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Sessions == nil {
		d.Sessions = NewSessions()
	}
	if d.Warnings == nil {
		d.Warnings = d.Sessions
	}
	return &Engine{
		gw:       d.Gateway,
		repo:     d.Repo,
		pending:  d.Pending,
		timers:   d.Timers,
		warnings: d.Warnings,
		sessions: d.Sessions,
		bus:      d.Bus,
		log:      d.Log.With(logx.String("comp", "fsub")),
		now:      time.Now,
	}
}

func (e *Engine) Repo() *Repository { return e.repo }

func (e *Engine) Stats() Stats {
	return Stats{
		Mutes:            e.mutes.Load(),
		MuteFailures:     e.muteFailures.Load(),
		Unmutes:          e.unmutes.Load(),
		DelayedScheduled: e.delayedScheduled.Load(),
		DelayedCompleted: e.delayedCompleted.Load(),
	}
}

// HandleMessage evaluates one group message and mutes its sender when they
// have not joined the group's channel. Failures are logged, never returned.
func (e *Engine) HandleMessage(ctx context.Context, m *transport.Message) {
	if m == nil || !m.IsGroup() || m.From.ID == 0 || m.From.IsBot || m.ForwardedFromChannel {
		return
	}
	cfg, err := e.repo.Get(ctx, m.ChatID)
	if errors.Is(err, ErrNotConfigured) {
		return
	}
	log := e.log.With(logx.Int64("group", m.ChatID), logx.Int64("user", m.From.ID))
	if err != nil {
		log.Error("load group config failed", logx.Err(err))
		return
	}

	group := transport.ChatRef{ID: m.ChatID}
	st, err := e.gw.MemberStatus(ctx, group, m.From.ID)
	if err != nil {
		log.Warn("group member status failed", logx.Err(err))
		return
	}
	if st.IsAdmin() {
		return
	}

	channel := cfg.ChannelRef()
	self, err := e.gw.MemberStatus(ctx, channel, e.gw.Self().ID)
	if err != nil {
		log.Warn("bot channel status failed", logx.String("channel", channel.String()), logx.Err(err))
		return
	}
	if !self.IsAdmin() {
		if e.sessions.Allow(m.ChatID, noticeChannelAdmin, NoticeWindow) {
			e.notice(ctx, m, "⚠️ I need admin in the channel to check memberships.\nPlease make me admin or update /fsub settings.")
		}
		return
	}

	st, err = e.gw.MemberStatus(ctx, channel, m.From.ID)
	if err != nil {
		log.Warn("channel member status failed", logx.String("channel", channel.String()), logx.Err(err))
		return
	}
	if !st.IsAbsent() {
		return
	}
	e.mute(ctx, m, cfg, log)
}

func (e *Engine) mute(ctx context.Context, m *transport.Message, cfg GroupConfig, log logx.Logger) {
	if err := e.gw.Restrict(ctx, m.ChatID, m.From.ID, transport.Muted(), e.now().Add(MuteDuration)); err != nil {
		e.muteFailures.Add(1)
		log.Warn("mute failed", logx.Err(err))
		if e.sessions.Allow(m.ChatID, noticeMuteFailed, NoticeWindow) {
			e.notice(ctx, m, "⚠️ Failed to mute user. Make sure I have 'Restrict users' permission in this group.")
		}
		return
	}
	e.mutes.Add(1)

	for _, id := range e.warnings.Take(m.ChatID, m.From.ID) {
		ref := transport.MessageRef{ChatID: m.ChatID, ThreadID: m.ThreadID, MessageID: id}
		if err := e.gw.DeleteMessage(ctx, ref); err != nil {
			log.Debug("delete previous warning failed", logx.Int("msg", id), logx.Err(err))
		}
	}

	kb := tgui.NewInline().Row(tgui.Btn("✅ Unmute Me", UnmuteData(m.ChatID, m.From.ID)))
	if link := e.joinLink(ctx, cfg); link != "" {
		label := "🔗 Join Channel"
		if cfg.PublicHandle() == "" {
			label = "🔗 Join Private Channel"
		}
		kb.Row(tgui.URLBtn(label, link))
	}
	msg := tgui.New().
		RawLine(tgui.H("⚠️ ")+tgui.Mention(m.From.DisplayName(), m.From.ID)+tgui.Esc(fmt.Sprintf(" has been muted for %d minutes.", int(MuteDuration/time.Minute)))).
		Line("Reason: Not joined " + cfg.Display()).
		Blank().
		Line("After joining, click 'Unmute Me' to verify membership.").
		Inline(kb).
		Build()
	ref, err := e.gw.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}, msg.Text, msg.Opt)
	if err != nil {
		log.Warn("send warning failed", logx.Err(err))
		return
	}
	e.warnings.Add(m.ChatID, m.From.ID, ref.MessageID)
	log.Info("member muted", logx.String("channel", cfg.ChannelRef().String()))
	e.publish(EventMuted, MemberEvent{GroupID: m.ChatID, UserID: m.From.ID})
}

func (e *Engine) notice(ctx context.Context, m *transport.Message, text string) {
	if _, err := e.gw.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}, text, nil); err != nil {
		e.log.Warn("send notice failed", logx.Int64("group", m.ChatID), logx.Err(err))
	}
}

func (e *Engine) publish(typ string, data any) {
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// ConnectResult reports a /fsub outcome.
type ConnectResult struct {
	Config     GroupConfig
	Chat       transport.Chat
	BotIsAdmin bool
	// AdminCheckErr is set when the bot's channel status could not be read.
	AdminCheckErr error
}

// Connect resolves the channel, verifies it is a channel and stores it as
// the group's requirement.
func (e *Engine) Connect(ctx context.Context, groupID int64, channel string) (ConnectResult, error) {
	ref := GroupConfig{Channel: channel}.ChannelRef()
	chat, err := e.gw.ResolveChat(ctx, ref)
	if err != nil {
		return ConnectResult{}, fmt.Errorf("resolve %s: %w", ref, err)
	}
	if chat.Type != transport.ChatChannel {
		return ConnectResult{}, ErrNotChannel
	}
	cfg, err := e.repo.Connect(ctx, groupID, channel, chat.ID)
	if err != nil {
		return ConnectResult{}, err
	}
	e.invites.forget(chat.ID)

	res := ConnectResult{Config: cfg, Chat: chat}
	st, err := e.gw.MemberStatus(ctx, transport.ChatRef{ID: chat.ID}, e.gw.Self().ID)
	if err != nil {
		res.AdminCheckErr = err
		e.log.Warn("bot channel status failed", logx.Int64("channel", chat.ID), logx.Err(err))
	} else {
		res.BotIsAdmin = st.IsAdmin()
	}
	e.log.Info("group connected", logx.Int64("group", groupID), logx.Int64("channel", chat.ID), logx.Bool("bot_admin", res.BotIsAdmin))
	return res, nil
}
