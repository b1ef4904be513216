package fsub

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fsubbot/internal/storage"
	"fsubbot/internal/transport"
	"fsubbot/pkg/logx"
	"fsubbot/pkg/tgui"
)

const (
	actionUnmute = "unmute"

	// sweepGrace is how overdue a pending unmute must be before Sweep
	// completes it itself.
	sweepGrace = time.Minute

	unmuteJobTimeout = 30 * time.Second
)

// Callback alerts.
const (
	alertNotYours     = "❌ This button is only for the muted user!"
	alertConfigError  = "❌ Configuration error. Please contact admin."
	alertNotJoined    = "❌ You haven't joined the channel yet! Please join first."
	alertVerifyFailed = "⚠️ Error verifying membership. Please try again later."
	alertUnmuteFailed = "⚠️ Failed to process unmute request. Please contact an admin."
	answerUnmuted     = "✅ Verified. You can chat now."
	answerDelayedFmt  = "✅ Verified. You will be unmuted in %d seconds."
)

// UnmuteData is the callback data of the "Unmute Me" button.
func UnmuteData(groupID, userID int64) string {
	return tgui.Data(CallbackNS, actionUnmute, fmt.Sprintf("%d_%d", groupID, userID))
}

// ParseUnmutePayload reverses the payload part of UnmuteData.
func ParseUnmutePayload(payload string) (groupID, userID int64, ok bool) {
	g, u, found := strings.Cut(payload, "_")
	if !found {
		return 0, 0, false
	}
	var err error
	if groupID, err = strconv.ParseInt(g, 10, 64); err != nil {
		return 0, 0, false
	}
	if userID, err = strconv.ParseInt(u, 10, 64); err != nil {
		return 0, 0, false
	}
	return groupID, userID, true
}

// HandleCallback dispatches callbacks in the fsub namespace. It reports
// false for data it does not own.
func (e *Engine) HandleCallback(ctx context.Context, cb *transport.Callback) bool {
	d, ok := tgui.ParseData(cb.Data)
	if !ok || d.NS != CallbackNS || d.Action != actionUnmute {
		return false
	}
	groupID, userID, ok := ParseUnmutePayload(d.Payload)
	if !ok {
		e.answer(ctx, cb, "", false)
		return true
	}
	e.HandleUnmute(ctx, cb, groupID, userID)
	return true
}

// HandleUnmute is the "Unmute Me" confirmation. Rejections leave every piece
// of state untouched.
func (e *Engine) HandleUnmute(ctx context.Context, cb *transport.Callback, groupID, userID int64) {
	if cb.From.ID != userID {
		e.answer(ctx, cb, alertNotYours, true)
		return
	}
	log := e.log.With(logx.Int64("group", groupID), logx.Int64("user", userID))

	cfg, err := e.repo.Get(ctx, groupID)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			log.Error("load group config failed", logx.Err(err))
		}
		e.answer(ctx, cb, alertConfigError, true)
		return
	}

	st, err := e.gw.MemberStatus(ctx, cfg.ChannelRef(), userID)
	if err != nil {
		log.Warn("verify membership failed", logx.Err(err))
		e.answer(ctx, cb, alertVerifyFailed, true)
		return
	}
	if st.IsAbsent() {
		e.answer(ctx, cb, alertNotJoined, true)
		return
	}

	if err := e.gw.DeleteMessage(ctx, cb.Ref()); err != nil {
		log.Debug("delete warning failed", logx.Err(err))
	}
	e.warnings.Clear(groupID, userID)

	if cfg.UnmuteDelay <= 0 {
		if err := e.restore(ctx, groupID, userID); err != nil {
			log.Warn("unmute failed", logx.Err(err))
			e.answer(ctx, cb, alertUnmuteFailed, true)
			return
		}
		e.unmutes.Add(1)
		log.Info("member unmuted")
		e.publish(EventUnmuted, MemberEvent{GroupID: groupID, UserID: userID})
		e.answer(ctx, cb, answerUnmuted, false)
		return
	}

	dueAt := e.now().Add(cfg.Delay())
	if err := e.gw.Restrict(ctx, groupID, userID, transport.Muted(), dueAt); err != nil {
		log.Warn("delay restrict failed", logx.Err(err))
		e.answer(ctx, cb, alertUnmuteFailed, true)
		return
	}
	if err := e.schedule(ctx, storage.PendingUnmute{GroupID: groupID, UserID: userID, DueAt: dueAt}); err != nil {
		log.Warn("schedule unmute failed", logx.Err(err))
		e.answer(ctx, cb, alertUnmuteFailed, true)
		return
	}
	e.delayedScheduled.Add(1)
	log.Info("member unmute scheduled", logx.Int("delay_s", cfg.UnmuteDelay))
	e.answer(ctx, cb, fmt.Sprintf(answerDelayedFmt, cfg.UnmuteDelay), false)
}

// restore lifts the restriction: the group's default permissions when
// readable, the standard permissive set otherwise.
func (e *Engine) restore(ctx context.Context, groupID, userID int64) error {
	perms := transport.Permissive()
	chat, err := e.gw.ResolveChat(ctx, transport.ChatRef{ID: groupID})
	if err != nil {
		e.log.Debug("group permissions unavailable", logx.Int64("group", groupID), logx.Err(err))
	} else if chat.Permissions != nil {
		perms = *chat.Permissions
	}
	return e.gw.Restrict(ctx, groupID, userID, perms, e.now().Add(time.Second))
}

func timerName(groupID, userID int64) string {
	return fmt.Sprintf("unmute:%d:%d", groupID, userID)
}

// schedule persists p and arms its timer. A store failure is logged; the
// timer still runs for this process lifetime.
func (e *Engine) schedule(ctx context.Context, p storage.PendingUnmute) error {
	if e.pending != nil {
		if err := e.pending.PutPendingUnmute(ctx, p); err != nil {
			e.log.Warn("persist pending unmute failed", logx.Int64("group", p.GroupID), logx.Int64("user", p.UserID), logx.Err(err))
		}
	}
	return e.arm(p)
}

func (e *Engine) arm(p storage.PendingUnmute) error {
	groupID, userID := p.GroupID, p.UserID
	return e.timers.AddOnce(timerName(groupID, userID), p.DueAt, unmuteJobTimeout, func(ctx context.Context) error {
		return e.completeDelayed(ctx, groupID, userID)
	})
}

func (e *Engine) completeDelayed(ctx context.Context, groupID, userID int64) error {
	if err := e.restore(ctx, groupID, userID); err != nil {
		return fmt.Errorf("delayed unmute %d/%d: %w", groupID, userID, err)
	}
	e.delayedCompleted.Add(1)
	e.unmutes.Add(1)
	if e.pending != nil {
		if err := e.pending.DeletePendingUnmute(ctx, groupID, userID); err != nil {
			e.log.Warn("delete pending unmute failed", logx.Int64("group", groupID), logx.Int64("user", userID), logx.Err(err))
		}
	}
	e.log.Info("member unmuted after delay", logx.Int64("group", groupID), logx.Int64("user", userID))
	e.publish(EventUnmuted, MemberEvent{GroupID: groupID, UserID: userID, Delayed: true})
	return nil
}

// Recover re-arms persisted delayed unmutes. Overdue entries fire at once.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	if e.pending == nil {
		return 0, nil
	}
	items, err := e.pending.PendingUnmutes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending unmutes: %w", err)
	}
	n := 0
	for _, p := range items {
		if err := e.arm(p); err != nil {
			e.log.Warn("re-arm pending unmute failed", logx.Int64("group", p.GroupID), logx.Int64("user", p.UserID), logx.Err(err))
			continue
		}
		n++
	}
	if n > 0 {
		e.log.Info("pending unmutes recovered", logx.Int("count", n))
	}
	return n, nil
}

// Sweep completes persisted unmutes that are overdue and have no armed
// timer, e.g. after a failed restore.
func (e *Engine) Sweep(ctx context.Context) error {
	if e.pending == nil {
		return nil
	}
	items, err := e.pending.PendingUnmutes(ctx)
	if err != nil {
		return fmt.Errorf("list pending unmutes: %w", err)
	}
	cutoff := e.now().Add(-sweepGrace)
	var errs []error
	for _, p := range items {
		if p.DueAt.After(cutoff) || e.timers.Pending(timerName(p.GroupID, p.UserID)) {
			continue
		}
		if err := e.completeDelayed(ctx, p.GroupID, p.UserID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) answer(ctx context.Context, cb *transport.Callback, text string, alert bool) {
	if err := e.gw.AnswerCallback(ctx, cb.ID, text, alert); err != nil {
		e.log.Debug("answer callback failed", logx.Err(err))
	}
}
