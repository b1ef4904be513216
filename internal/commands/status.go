package commands

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"fsubbot/internal/transport/telegram/router"
	"fsubbot/pkg/tgui"
)

func (h *Handlers) cmdStatus(ctx context.Context, req *router.Request) error {
	groups, gerr := h.d.Store.CountGroups(ctx)
	users, uerr := h.d.Store.CountUsers(ctx)
	store := "Connected"
	if err := h.d.Store.Ping(ctx); err != nil {
		store = "Disconnected"
	}

	self := req.Adapter.Self()
	name := self.DisplayName()
	b := tgui.New().Title("🤖", "Bot Status Report").Blank()
	if self.Username != "" {
		b.RawLine("• Bot Name: " + tgui.Link(name, "https://t.me/"+self.Username))
	} else {
		b.Line("• Bot Name: " + name)
	}
	b.KV("Uptime", fmtUptime(h.now().Sub(h.d.StartedAt))).
		KV("Groups Using", countText(groups, gerr)).
		KV("Users Tracked", countText(users, uerr)).
		KV("Store", store)

	if e := h.d.Engine; e != nil {
		st := e.Stats()
		b.Blank().Title("🔇", "Enforcement").
			KV("Mutes", strconv.FormatUint(st.Mutes, 10)).
			KV("Mute failures", strconv.FormatUint(st.MuteFailures, 10)).
			KV("Unmutes", strconv.FormatUint(st.Unmutes, 10)).
			KV("Delayed unmutes", fmt.Sprintf("%d/%d", st.DelayedCompleted, st.DelayedScheduled))
	}
	if d := h.d.Dispatcher; d != nil {
		st := d.Stats()
		running := "idle"
		if d.Running() {
			running = "running"
		}
		b.Blank().Title("📢", "Broadcasts").
			KV("Runs", strconv.FormatUint(st.Runs, 10)+" ("+running+")").
			KV("Sent", strconv.FormatUint(st.Sent, 10)).
			KV("Failed", strconv.FormatUint(st.Failed, 10))
	}

	b.Blank().Title("📊", "System Stats").
		KV("Go Version", runtime.Version()).
		KV("Platform", runtime.GOOS+"/"+runtime.GOARCH).
		KV("Goroutines", strconv.Itoa(runtime.NumGoroutine()))

	msg := b.Build()
	return replyOpt(ctx, req, msg.Text, msg.Opt)
}

func countText(n int, err error) string {
	if err != nil {
		return "n/a"
	}
	return strconv.Itoa(n)
}

// fmtUptime renders d as "[Nd ]HH:MM:SS".
func fmtUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	days := s / 86400
	s %= 86400
	out := fmt.Sprintf("%02d:%02d:%02d", s/3600, s%3600/60, s%60)
	if days > 0 {
		out = fmt.Sprintf("%dd %s", days, out)
	}
	return out
}
