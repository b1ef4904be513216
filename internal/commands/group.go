package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"fsubbot/internal/fsub"
	"fsubbot/internal/transport"
	"fsubbot/internal/transport/telegram/router"
	"fsubbot/pkg/logx"
)

const (
	fsubUsageText = "Usage:\n" +
		"/fsub @channelusername\n" +
		"/fsub channel_id\n" +
		"Or reply to a channel message with /fsub"
	fsubInvalidText    = "❌ Invalid channel format. Use @username, channel ID, or reply to a channel message."
	fsubNotChannelText = "❌ The specified chat is not a channel."
	fsubFailedText     = "❌ Failed to set channel. Make sure:\n" +
		"1. The channel exists\n" +
		"2. I'm a member of the channel\n" +
		"3. You provided a valid channel identifier"
	fsubNotAdminText = "⚠️ Warning: I'm not admin in that channel.\n" +
		"I won't be able to check memberships until you make me admin."
	fsubCheckFailedText = "⚠️ Warning: I can't check my permissions in that channel.\n" +
		"Make sure I'm added as admin to the channel."

	disconnectNoneText = "❌ No forced subscription is currently active in this group."
	disconnectOKText   = "✅ Force subscription has been disabled for this group.\n\n" +
		"Users will no longer be required to join any channel to participate.\n\n" +
		"You can enable it again anytime using /fsub command."

	setDelayNotSetText = "❌ Force subscription is not set for this group. Use /fsub first."
	setDelayUsageText  = "Usage: /setdelay [seconds]\n" +
		"Example: /setdelay 0 - Immediate unmute (default)\n" +
		"Example: /setdelay 30 - Users muted for 30 seconds\n" +
		"Example: /setdelay 60 - Users muted for 1 minute\n\n" +
		delayRuleText
	setDelayRangeText = "❌ Only 0 or numbers ≥30 are allowed!\n" +
		"Please choose 0 (immediate) or a number ≥30 (e.g., 30, 45, 60)."
	setDelayTooLongText = "❌ That delay is too long. The maximum is 31622400 seconds (366 days)."
	setDelayNaNText     = "❌ Invalid number. Please provide a valid number of seconds."

	getDelayNotSetText = "❌ Force subscription is not set for this group."
	delayRuleText      = "⚠️ Only 0 or numbers ≥30 are allowed!"
	storeErrorText     = "⚠️ Something went wrong. Please try again later."
)

// channelFromReply returns the channel a command replied to, if the replied
// message was authored by a channel.
func channelFromReply(m *transport.Message) (string, bool) {
	if m == nil || m.ReplyTo == nil || m.ReplyTo.SenderChat == nil {
		return "", false
	}
	c := m.ReplyTo.SenderChat
	if c.Type != transport.ChatChannel {
		return "", false
	}
	if c.Username != "" {
		return c.Username, true
	}
	return strconv.FormatInt(c.ID, 10), true
}

func (h *Handlers) cmdFsub(ctx context.Context, req *router.Request) error {
	channel, ok := channelFromReply(req.Message)
	if !ok {
		if len(req.Args) == 0 {
			return reply(ctx, req, fsubUsageText)
		}
		var err error
		if channel, err = fsub.ParseChannelArg(req.Args[0]); err != nil {
			return reply(ctx, req, fsubInvalidText)
		}
	}

	res, err := h.d.Engine.Connect(ctx, req.Chat.ChatID, channel)
	switch {
	case errors.Is(err, fsub.ErrNotChannel):
		return reply(ctx, req, fsubNotChannelText)
	case err != nil:
		req.Logger.Warn("fsub connect failed", logx.String("channel", channel), logx.Err(err))
		return reply(ctx, req, fsubFailedText)
	case res.AdminCheckErr != nil:
		return reply(ctx, req, fsubCheckFailedText)
	case !res.BotIsAdmin:
		return reply(ctx, req, fsubNotAdminText)
	}
	target := "the channel"
	if hdl := res.Config.PublicHandle(); hdl != "" {
		target = "@" + hdl
	}
	return reply(ctx, req, fmt.Sprintf("✅ Success! All members must now join %s to participate here.", target))
}

func (h *Handlers) cmdDisconnect(ctx context.Context, req *router.Request) error {
	err := h.d.Engine.Repo().Disconnect(ctx, req.Chat.ChatID)
	switch {
	case errors.Is(err, fsub.ErrNotConfigured):
		return reply(ctx, req, disconnectNoneText)
	case err != nil:
		req.Logger.Warn("disconnect failed", logx.Err(err))
		return reply(ctx, req, storeErrorText)
	}
	req.Logger.Info("group disconnected")
	return reply(ctx, req, disconnectOKText)
}

func (h *Handlers) cmdSetDelay(ctx context.Context, req *router.Request) error {
	repo := h.d.Engine.Repo()
	if _, err := repo.Get(ctx, req.Chat.ChatID); err != nil {
		if errors.Is(err, fsub.ErrNotConfigured) {
			return reply(ctx, req, setDelayNotSetText)
		}
		req.Logger.Warn("setdelay lookup failed", logx.Err(err))
		return reply(ctx, req, storeErrorText)
	}
	if len(req.Args) == 0 {
		return reply(ctx, req, setDelayUsageText)
	}
	seconds, err := strconv.Atoi(req.Args[0])
	if err != nil {
		return reply(ctx, req, setDelayNaNText)
	}

	err = repo.SetDelay(ctx, req.Chat.ChatID, seconds)
	switch {
	case errors.Is(err, fsub.ErrInvalidDelay) && seconds > fsub.MaxDelaySeconds:
		return reply(ctx, req, setDelayTooLongText)
	case errors.Is(err, fsub.ErrInvalidDelay):
		return reply(ctx, req, setDelayRangeText)
	case errors.Is(err, fsub.ErrNotConfigured):
		return reply(ctx, req, setDelayNotSetText)
	case err != nil:
		req.Logger.Warn("setdelay failed", logx.Err(err))
		return reply(ctx, req, storeErrorText)
	}
	if seconds == 0 {
		return reply(ctx, req, "✅ Unmute delay set to 0 seconds. Users will be unmuted immediately after clicking 'Unmute Me'.")
	}
	return reply(ctx, req, fmt.Sprintf("✅ Unmute delay set to %d seconds. Users will be muted for %d seconds after clicking 'Unmute Me'.", seconds, seconds))
}

func (h *Handlers) cmdGetDelay(ctx context.Context, req *router.Request) error {
	delay, err := h.d.Engine.Repo().Delay(ctx, req.Chat.ChatID)
	switch {
	case errors.Is(err, fsub.ErrNotConfigured):
		return reply(ctx, req, getDelayNotSetText)
	case err != nil:
		req.Logger.Warn("getdelay failed", logx.Err(err))
		return reply(ctx, req, storeErrorText)
	}
	return reply(ctx, req, delayText(delay))
}

func delayText(delay int) string {
	const tail = "To change this, use /setdelay [seconds]\n\n" + delayRuleText
	if delay == 0 {
		return "Current unmute delay: 0 seconds (immediate unmute)\n\n" +
			"Users will be unmuted immediately after clicking 'Unmute Me'.\n" + tail
	}
	return fmt.Sprintf("Current unmute delay: %d seconds\n\nUsers will be muted for %d seconds after clicking 'Unmute Me'.\n", delay, delay) + tail
}
