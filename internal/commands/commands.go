// Package commands implements the operator commands and the callback routes
// of the broadcast dialog and the unmute button.
package commands

import (
	"context"
	"time"

	"fsubbot/internal/broadcast"
	"fsubbot/internal/fsub"
	"fsubbot/internal/storage"
	"fsubbot/internal/transport"
	"fsubbot/internal/transport/telegram/router"
	"fsubbot/pkg/logx"
)

// Deps are the collaborators of the command handlers.
type Deps struct {
	Engine     *fsub.Engine
	Store      storage.Store
	Broadcasts *broadcast.Sessions
	Dispatcher *broadcast.Dispatcher

	// Go runs a long task in the background, e.g. a supervisor's Go.
	Go func(name string, fn func(ctx context.Context) error)
	// Support returns the current support channel handle (may be empty).
	Support   func() string
	StartedAt time.Time
	Log       logx.Logger
}

type Handlers struct {
	d   Deps
	log logx.Logger
	now func() time.Time
}

func New(d Deps) *Handlers {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Support == nil {
		d.Support = func() string { return "" }
	}
	if d.Go == nil {
		d.Go = func(_ string, fn func(ctx context.Context) error) {
			go func() { _ = fn(context.Background()) }()
		}
	}
	if d.StartedAt.IsZero() {
		d.StartedAt = time.Now()
	}
	return &Handlers{d: d, log: d.Log.With(logx.String("comp", "commands")), now: time.Now}
}

func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "Introduction",
			Usage:       "/start",
			Handle:      h.cmdStart,
		},
		{
			Name:        "help",
			Description: "How to use this bot",
			Usage:       "/help",
			Handle:      h.cmdHelp,
		},
		{
			Name:        "fsub",
			Description: "Set the required channel",
			Usage:       "/fsub [@channel|ID|reply]",
			Access:      router.AccessGroupAdmin,
			Scope:       router.ScopeGroup,
			Handle:      h.cmdFsub,
		},
		{
			Name:        "disconnect",
			Description: "Stop forcing subscription",
			Usage:       "/disconnect",
			Access:      router.AccessGroupAdmin,
			Scope:       router.ScopeGroup,
			Handle:      h.cmdDisconnect,
		},
		{
			Name:        "setdelay",
			Description: "Set unmute delay (0 or ≥30)",
			Usage:       "/setdelay <seconds>",
			Access:      router.AccessGroupAdmin,
			Scope:       router.ScopeGroup,
			Handle:      h.cmdSetDelay,
		},
		{
			Name:        "getdelay",
			Description: "Show current unmute delay",
			Usage:       "/getdelay",
			Scope:       router.ScopeGroup,
			Handle:      h.cmdGetDelay,
		},
		{
			Name:        "status",
			Description: "Bot status report",
			Usage:       "/status",
			Access:      router.AccessOwnerOnly,
			Handle:      h.cmdStatus,
		},
		{
			Name:        "broadcast",
			Description: "Broadcast the replied message",
			Usage:       "/broadcast (as a reply)",
			Access:      router.AccessOwnerOnly,
			Timeout:     time.Minute,
			Handle:      h.cmdBroadcast,
		},
	}
}

func (h *Handlers) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{NS: fsub.CallbackNS, Action: "unmute", Handle: h.cbUnmute},
		{NS: broadcastNS, Action: actionTarget, Access: router.CallbackAccessOwnerOnly, Handle: h.cbTarget},
		{NS: broadcastNS, Action: actionPin, Access: router.CallbackAccessOwnerOnly, Handle: h.cbPin},
	}
}

func (h *Handlers) cbUnmute(ctx context.Context, req *router.Request) error {
	if !h.d.Engine.HandleCallback(ctx, req.Callback) {
		return req.Answer(ctx, "", false)
	}
	return nil
}

// reply sends plain text to the request chat.
func reply(ctx context.Context, req *router.Request, text string) error {
	_, err := req.Reply(ctx, text, nil)
	return err
}

func replyOpt(ctx context.Context, req *router.Request, text string, opt *transport.SendOptions) error {
	_, err := req.Reply(ctx, text, opt)
	return err
}
