package commands

import (
	"context"
	"strings"

	"fsubbot/internal/storage"
	"fsubbot/internal/transport/telegram/router"
	"fsubbot/pkg/logx"
	"fsubbot/pkg/tgui"
)

const groupStartText = "I'm a forced subscription bot. Use /fsub to set a required channel for this group.\n\n" +
	"ℹ️ I need to be admin in both this group and the channel to work properly."

const helpText = "⚠️ Admin Requirements:\n" +
	"- Make me admin in both group and channel\n" +
	"- Grant me 'Restrict users' permission in group\n\n" +
	"Commands:\n" +
	"/start - Introduction\n" +
	"/help - This message\n" +
	"/fsub [@channel|ID|reply] - Set required channel\n" +
	"/disconnect - Stop forcing subscription\n" +
	"/setdelay [seconds] - Set unmute delay (0 or ≥30 allowed)\n" +
	"/getdelay - Show current unmute delay\n\n" +
	"I'll mute anyone who hasn't joined the required channel for 5 minutes."

func welcome() *tgui.Builder {
	return tgui.New().
		Title("👋", "Welcome to Force Subscription Bot!").
		Blank().
		Line("I help group admins enforce channel subscriptions by muting users who haven't joined required channels.").
		Blank().
		Title("✨", "Features:").
		Line("• Auto-mute non-subscribed users").
		Line("• 5-minute mute duration").
		Line("• Self-unmute after joining").
		Line("• Supports both public & private channels").
		Blank().
		Title("📌", "How to setup:").
		Line("1. Add me to your group as admin").
		RawLine("2. Use "+tgui.Code("/fsub @channel")+" to set requirements").
		Line("3. I'll handle the rest!").
		Blank().
		Line("Click the buttons below to add me to your groups/channels:")
}

// addKeyboard holds the add-to-group/channel buttons and the support
// channel button when one is configured.
func (h *Handlers) addKeyboard(botUsername string) *tgui.Inline {
	kb := tgui.NewInline()
	if botUsername != "" {
		kb.Row(
			tgui.URLBtn("➕ Add to Group", "https://t.me/"+botUsername+"?startgroup=true"),
			tgui.URLBtn("➕ Add to Channel", "https://t.me/"+botUsername+"?startchannel=true"),
		)
	}
	h.supportRow(kb)
	return kb
}

func (h *Handlers) supportRow(kb *tgui.Inline) {
	if s := strings.TrimPrefix(strings.TrimSpace(h.d.Support()), "@"); s != "" {
		kb.Row(tgui.URLBtn("📢 Support Channel", "https://t.me/"+s))
	}
}

func (h *Handlers) cmdStart(ctx context.Context, req *router.Request) error {
	kb := h.addKeyboard(req.Adapter.Self().Username)
	if req.Message.IsGroup() {
		msg := tgui.New().Plain().Line(groupStartText).Inline(kb).Build()
		return replyOpt(ctx, req, msg.Text, msg.Opt)
	}

	u := req.From
	err := h.d.Store.PutUser(ctx, storage.User{
		UserID:          u.ID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Username:        u.Username,
		LastInteraction: h.now(),
	})
	if err != nil {
		req.Logger.Warn("user upsert failed", logx.Err(err))
	}
	msg := welcome().Inline(kb).Build()
	return replyOpt(ctx, req, msg.Text, msg.Opt)
}

func (h *Handlers) cmdHelp(ctx context.Context, req *router.Request) error {
	kb := tgui.NewInline()
	h.supportRow(kb)
	msg := tgui.New().Plain().Line(helpText).Inline(kb).Build()
	return replyOpt(ctx, req, msg.Text, msg.Opt)
}
