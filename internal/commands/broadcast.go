package commands

import (
	"context"
	"errors"

	"fsubbot/internal/broadcast"
	"fsubbot/internal/transport/telegram/router"
	"fsubbot/pkg/logx"
	"fsubbot/pkg/tgui"
)

const (
	broadcastNS  = "bcast"
	actionTarget = "target"
	actionPin    = "pin"

	broadcastNeedReplyText = "ℹ️ Please reply to a message to broadcast it."
	broadcastTargetText    = "🔍 Select broadcast target:"
	broadcastPinText       = "📌 Pin message in groups?"
	broadcastPrepareText   = "📢 Preparing broadcast..."
	broadcastExpiredText   = "⚠️ This broadcast dialog has expired. Reply to a message with /broadcast again."
	broadcastBusyText      = "⏳ Another broadcast is still running. Try again when it has finished."
)

func targetKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("📢 Groups Only", tgui.Data(broadcastNS, actionTarget, string(broadcast.AudienceGroups)))).
		Row(tgui.Btn("👤 Users Only", tgui.Data(broadcastNS, actionTarget, string(broadcast.AudienceUsers)))).
		Row(tgui.Btn("🌐 Both Groups & Users", tgui.Data(broadcastNS, actionTarget, string(broadcast.AudienceBoth))))
}

func pinKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("📌 Yes", tgui.Data(broadcastNS, actionPin, "yes"))).
		Row(tgui.Btn("❌ No", tgui.Data(broadcastNS, actionPin, "no")))
}

func (h *Handlers) cmdBroadcast(ctx context.Context, req *router.Request) error {
	if req.Message.ReplyTo == nil {
		return reply(ctx, req, broadcastNeedReplyText)
	}
	h.d.Broadcasts.Begin(req.From.ID, req.Message.ReplyTo.Ref)
	msg := tgui.New().Plain().Line(broadcastTargetText).Inline(targetKeyboard()).Build()
	return replyOpt(ctx, req, msg.Text, msg.Opt)
}

func (h *Handlers) cbTarget(ctx context.Context, req *router.Request) error {
	a, err := broadcast.ParseAudience(req.Payload)
	if err != nil {
		return req.Answer(ctx, "", false)
	}
	if _, err := h.d.Broadcasts.SetAudience(req.From.ID, a); err != nil {
		return h.dialogGone(ctx, req, err)
	}
	_ = req.Answer(ctx, "", false)
	msg := tgui.New().Plain().Line(broadcastPinText).Inline(pinKeyboard()).Build()
	return msg.Edit(ctx, req.Adapter, req.Callback.Ref())
}

func (h *Handlers) cbPin(ctx context.Context, req *router.Request) error {
	var pin bool
	switch req.Payload {
	case "yes":
		pin = true
	case "no":
	default:
		return req.Answer(ctx, "", false)
	}
	if h.d.Dispatcher.Running() {
		return req.Answer(ctx, broadcastBusyText, true)
	}
	s, err := h.d.Broadcasts.SetPin(req.From.ID, pin)
	if err != nil {
		return h.dialogGone(ctx, req, err)
	}
	_ = req.Answer(ctx, "", false)

	progress := req.Callback.Ref()
	if err := req.Adapter.EditText(ctx, progress, broadcastPrepareText, nil); err != nil {
		req.Logger.Warn("broadcast dialog edit failed", logx.Err(err))
	}
	job := broadcast.JobFromSession(s, progress)
	log := req.Logger
	h.d.Go("broadcast.run", func(ctx context.Context) error {
		_, err := h.d.Dispatcher.Run(ctx, job)
		if errors.Is(err, broadcast.ErrBusy) {
			if eerr := req.Adapter.EditText(ctx, progress, broadcastBusyText, nil); eerr != nil {
				log.Warn("broadcast dialog edit failed", logx.Err(eerr))
			}
			return nil
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("broadcast failed", logx.Err(err))
		}
		return nil
	})
	return nil
}

func (h *Handlers) dialogGone(ctx context.Context, req *router.Request, err error) error {
	if errors.Is(err, broadcast.ErrNoSession) || errors.Is(err, broadcast.ErrWrongStage) {
		return req.Answer(ctx, broadcastExpiredText, true)
	}
	_ = req.Answer(ctx, "", false)
	return err
}
