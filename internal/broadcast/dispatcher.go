package broadcast

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"fsubbot/internal/eventbus"
	"fsubbot/internal/transport"
	"fsubbot/pkg/logx"
)

const (
	progressEvery = 10
	reportFailed  = 10

	EventFinished = "broadcast.finished"
)

// Gateway is the subset of the platform adapter used by the dispatcher.
type Gateway interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
	EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error
	CopyMessage(ctx context.Context, to transport.ChatTarget, from transport.MessageRef) (transport.MessageRef, error)
	PinMessage(ctx context.Context, ref transport.MessageRef) error
}

// Directory lists the audience ids.
type Directory interface {
	GroupIDs(ctx context.Context) ([]int64, error)
	UserIDs(ctx context.Context) ([]int64, error)
}

// Job is one confirmed broadcast.
type Job struct {
	Source   transport.MessageRef
	Audience Audience
	Pin      bool
	// Progress is edited in place while the run advances.
	Progress transport.MessageRef
	// ReportTo receives the final report.
	ReportTo transport.ChatTarget
}

// JobFromSession builds a Job for a session that reached dispatch.
func JobFromSession(s Session, progress transport.MessageRef) Job {
	return Job{
		Source:   s.Source,
		Audience: s.Audience,
		Pin:      s.Pin,
		Progress: progress,
		ReportTo: progress.Target(),
	}
}

type Result struct {
	Total     int
	Sent      int
	Failed    int
	FailedIDs []int64
	Started   time.Time
	Finished  time.Time
}

type Stats struct {
	Runs   uint64
	Sent   uint64
	Failed uint64
}

type recipient struct {
	id    int64
	group bool
}

type Dispatcher struct {
	gw  Gateway
	dir Directory
	bus eventbus.Bus
	log logx.Logger

	running atomic.Bool
	runs    atomic.Uint64
	sent    atomic.Uint64
	failed  atomic.Uint64
}

func NewDispatcher(gw Gateway, dir Directory, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{gw: gw, dir: dir, bus: bus, log: log.With(logx.String("comp", "broadcast"))}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{Runs: d.runs.Load(), Sent: d.sent.Load(), Failed: d.failed.Load()}
}

func (d *Dispatcher) Running() bool { return d.running.Load() }

func (d *Dispatcher) recipients(ctx context.Context, a Audience) ([]recipient, error) {
	var out []recipient
	if a.Groups() {
		ids, err := d.dir.GroupIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list groups: %w", err)
		}
		for _, id := range ids {
			out = append(out, recipient{id: id, group: true})
		}
	}
	if a.Users() {
		ids, err := d.dir.UserIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		for _, id := range ids {
			out = append(out, recipient{id: id})
		}
	}
	return out, nil
}

// Run performs the broadcast. Only one run may be active at a time.
func (d *Dispatcher) Run(ctx context.Context, job Job) (Result, error) {
	if !d.running.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer d.running.Store(false)

	res := Result{Started: time.Now()}
	rcpts, err := d.recipients(ctx, job.Audience)
	if err != nil {
		d.edit(ctx, job.Progress, "❌ Broadcast failed: could not load recipients.")
		return res, err
	}
	res.Total = len(rcpts)
	if res.Total == 0 {
		d.edit(ctx, job.Progress, "❌ No recipients found for broadcast.")
		return res, nil
	}
	d.runs.Add(1)
	log := d.log.With(logx.String("audience", string(job.Audience)), logx.Int("total", res.Total))
	log.Info("broadcast started", logx.Bool("pin", job.Pin))

	for i, r := range rcpts {
		if ctx.Err() != nil {
			log.Warn("broadcast interrupted", logx.Int("processed", i))
			return res, ctx.Err()
		}
		ref, err := d.gw.CopyMessage(ctx, transport.ChatTarget{ChatID: r.id}, job.Source)
		if err != nil {
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, r.id)
			d.failed.Add(1)
			log.Warn("broadcast copy failed", logx.Int64("chat", r.id), logx.Bool("group", r.group), logx.Err(err))
		} else {
			res.Sent++
			d.sent.Add(1)
			if r.group && job.Pin {
				if err := d.gw.PinMessage(ctx, ref); err != nil {
					log.Warn("broadcast pin failed", logx.Int64("chat", r.id), logx.Err(err))
				}
			}
		}
		if n := i + 1; n%progressEvery == 0 || n == res.Total {
			d.edit(ctx, job.Progress, progressText(res, n))
		}
	}

	res.Finished = time.Now()
	if _, err := d.gw.SendText(ctx, job.ReportTo, ReportText(res), nil); err != nil {
		log.Warn("broadcast report failed", logx.Err(err))
	}
	log.Info("broadcast finished", logx.Int("sent", res.Sent), logx.Int("failed", res.Failed), logx.Duration("took", res.Finished.Sub(res.Started)))
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: EventFinished, Data: res})
	}
	return res, nil
}

func (d *Dispatcher) edit(ctx context.Context, ref transport.MessageRef, text string) {
	if ref.MessageID == 0 {
		return
	}
	if err := d.gw.EditText(ctx, ref, text, nil); err != nil {
		d.log.Warn("progress update failed", logx.Err(err))
	}
}

func progressText(r Result, processed int) string {
	pct := float64(processed) / float64(r.Total) * 100
	return fmt.Sprintf("📢 Broadcasting to %d recipients...\n• Sent: %d\n• Failed: %d\n• Progress: %d/%d (%.1f%%)",
		r.Total, r.Sent, r.Failed, processed, r.Total, pct)
}

// ReportText renders the final report; it lists at most the first ten
// failed ids.
func ReportText(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Broadcast completed!\n\n• Total recipients: %d\n• Successful: %d\n• Failed: %d", r.Total, r.Sent, r.Failed)
	if r.Failed > 0 {
		shown := r.FailedIDs[:min(len(r.FailedIDs), reportFailed)]
		ids := make([]string, len(shown))
		for i, id := range shown {
			ids[i] = strconv.FormatInt(id, 10)
		}
		b.WriteString("\n\n❌ Failed IDs:\n" + strings.Join(ids, ", "))
		if r.Failed > reportFailed {
			fmt.Fprintf(&b, "\n... and %d more", r.Failed-reportFailed)
		}
	}
	return b.String()
}
