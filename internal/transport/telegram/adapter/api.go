package adapter

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"fsubbot/internal/transport"
	"fsubbot/pkg/logx"
)

func (a *Adapter) sendOptions(opt *transport.SendOptions, threadID int) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: threadID}
	if opt == nil {
		return so
	}
	so.ParseMode = opt.ParseMode
	so.DisableWebPagePreview = opt.DisablePreview
	if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
		so.ReplyMarkup = rm
	}
	return so
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first transport.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		so := a.sendOptions(opt, to.ThreadID)
		// Markup goes on the first chunk only.
		if i > 0 {
			so.ReplyMarkup = nil
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)
	so := a.sendOptions(opt, 0)
	if _, err := a.bot.Edit(stored(ref), chunks[0], so); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return err
	}
	if len(chunks) > 1 {
		rest := strings.Join(chunks[1:], "\n")
		_, err := a.SendText(ctx, ref.Target(), rest, &transport.SendOptions{ParseMode: parseMode, DisablePreview: true})
		return err
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Delete(stored(ref))
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text, ShowAlert: alert})
}

func (a *Adapter) CopyMessage(ctx context.Context, to transport.ChatTarget, from transport.MessageRef) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	msg, err := a.bot.Copy(&tele.Chat{ID: to.ChatID}, stored(from), &tele.SendOptions{ThreadID: to.ThreadID})
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) PinMessage(ctx context.Context, ref transport.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Pin(stored(ref), tele.Silent)
}

func (a *Adapter) ResolveChat(ctx context.Context, ref transport.ChatRef) (transport.Chat, error) {
	if err := ctx.Err(); err != nil {
		return transport.Chat{}, err
	}
	var (
		c   *tele.Chat
		err error
	)
	if ref.ID != 0 {
		c, err = a.bot.ChatByID(ref.ID)
	} else {
		c, err = a.bot.ChatByUsername(ref.String())
	}
	if err != nil {
		return transport.Chat{}, fmt.Errorf("resolve chat %s: %w", ref, err)
	}
	return toChat(c), nil
}

func (a *Adapter) MemberStatus(ctx context.Context, chat transport.ChatRef, userID int64) (transport.MemberStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, err := a.bot.ChatMemberOf(chatRecipient(chat), userRecipient(userID))
	if err != nil {
		return "", fmt.Errorf("member %d of %s: %w", userID, chat, err)
	}
	return transport.MemberStatus(m.Role), nil
}

func (a *Adapter) Restrict(ctx context.Context, chatID, userID int64, perms transport.Permissions, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	member := &tele.ChatMember{
		Rights:          toRights(perms),
		User:            &tele.User{ID: userID},
		RestrictedUntil: until.Unix(),
	}
	return a.bot.Restrict(&tele.Chat{ID: chatID}, member)
}

func (a *Adapter) CreateInviteLink(ctx context.Context, chat transport.ChatRef, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	link, err := a.bot.CreateInviteLink(chatRecipient(chat), &tele.ChatInviteLink{Name: name})
	if err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

// UpdateMenuCommands publishes the command menu. It skips the network call
// when the list did not change since the last successful update.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(d))
		h.Write([]byte{0})
		out = append(out, tele.Command{Text: c.Command, Description: d})
		if len(out) >= 100 {
			break
		}
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.SetCommands(out); err != nil {
		return fmt.Errorf("telegram setMyCommands: %w", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(out)))
	return nil
}
