package router

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"fsubbot/internal/runtime/supervisor"
	"fsubbot/internal/transport"
	"fsubbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessGroupAdmin allows group administrators and bot owners.
	AccessGroupAdmin
	AccessOwnerOnly
)

// Scope restricts where a command may be used.
type Scope int

const (
	ScopeAny Scope = iota
	ScopeGroup
	ScopePrivate
)

type HandlerFunc func(ctx context.Context, req *Request) error

// MessageHandler receives group messages that are not bot commands.
type MessageHandler func(ctx context.Context, m *transport.Message)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Scope       Scope
	Hidden      bool          // excluded from the Telegram menu
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type CallbackAccess int

const (
	CallbackAccessEveryone CallbackAccess = iota
	CallbackAccessOwnerOnly
)

// CallbackRoute handles "ns:action:payload" callback data. Handlers answer
// the callback themselves.
type CallbackRoute struct {
	NS      string
	Action  string
	Access  CallbackAccess
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update   transport.Update
	Message  *transport.Message
	Callback *transport.Callback
	Chat     transport.ChatTarget
	From     transport.User
	Command  string // command name or "cb:ns:action"
	Args     []string
	Payload  string // callback payload
	ReqID    string
	IsOwner  bool

	Adapter transport.Adapter
	Logger  logx.Logger
}

// Reply sends text to the request's chat.
func (r *Request) Reply(ctx context.Context, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

// Answer answers the request's callback query.
func (r *Request) Answer(ctx context.Context, text string, alert bool) error {
	if r.Callback == nil {
		return nil
	}
	return r.Adapter.AnswerCallback(ctx, r.Callback.ID, text, alert)
}

type Options struct {
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
	Owners         []int64
	// OnMessage evaluates non-command group messages.
	OnMessage MessageHandler
}

// Router turns updates into handler calls. Updates are sharded by chat id
// onto sequential workers: one chat is handled in arrival order, distinct
// chats in parallel.
type Router struct {
	log     logx.Logger
	adapter transport.Adapter
	opts    Options

	mu        sync.RWMutex
	cmds      map[string]*Command
	menu      []Command
	callbacks map[string]CallbackRoute // "ns:action"
	owners    map[int64]struct{}

	runMu sync.Mutex
	sup   *supervisor.Supervisor
}

func New(log logx.Logger, adapter transport.Adapter, opts Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 30 * time.Second
	}
	r := &Router{
		log:       log.With(logx.String("comp", "telegram.router")),
		adapter:   adapter,
		opts:      opts,
		cmds:      map[string]*Command{},
		callbacks: map[string]CallbackRoute{},
	}
	r.SetOwners(opts.Owners)
	return r
}

// SetOwners replaces the owner list. Safe during hot reload.
func (r *Router) SetOwners(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	r.mu.Lock()
	r.owners = m
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[id]
	return ok
}

// SetRegistry installs commands and callback routes, replacing previous ones.
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	byName := map[string]*Command{}
	menu := make([]Command, 0, len(cmds))
	for i := range cmds {
		c := cmds[i]
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = &c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, exists := byName[a]; !exists {
					byName[a] = &c
				}
			}
		}
		menu = append(menu, c)
	}
	routes := map[string]CallbackRoute{}
	for _, cb := range cbs {
		if cb.NS == "" || cb.Action == "" || cb.Handle == nil {
			continue
		}
		routes[cb.NS+":"+cb.Action] = cb
	}

	r.mu.Lock()
	r.cmds = byName
	r.menu = menu
	r.callbacks = routes
	r.mu.Unlock()
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.menu...)
}

// Supervisor returns the worker supervisor (nil when not running).
func (r *Router) Supervisor() *supervisor.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.sup
}

type job struct {
	req *Request
	h   HandlerFunc
}

// Run consumes updates until ctx is done or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(r.log), supervisor.WithCancelOnError(false))
	r.runMu.Lock()
	r.sup = sup
	r.runMu.Unlock()

	shards := make([]chan job, r.opts.Workers)
	for i := range shards {
		ch := make(chan job, r.opts.QueueSize)
		shards[i] = ch
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case j := <-ch:
					_ = j.h(c, j.req)
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.publishMenu(sup)
	r.log.Info("router started", logx.Int("workers", len(shards)), logx.Int("queue", r.opts.QueueSize))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			req, h := r.route(up)
			if h == nil {
				continue
			}
			select {
			case shards[shardOf(up.ChatKey(), len(shards))] <- job{req: req, h: h}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func shardOf(chatID int64, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(chatID, 10)))
	return int(h.Sum32() % uint32(n))
}

// route resolves the handler of an update; nil means drop.
func (r *Router) route(up transport.Update) (*Request, HandlerFunc) {
	switch {
	case up.Kind == transport.UpdateMessage && up.Message != nil:
		return r.routeMessage(up)
	case up.Kind == transport.UpdateCallback && up.Callback != nil:
		return r.routeCallback(up)
	}
	return nil, nil
}

func (r *Router) newRequest(up transport.Update, chat transport.ChatTarget, from transport.User, command string) *Request {
	rid := newReqID()
	log := r.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", chat.ChatID),
		logx.Int64("from_id", from.ID),
		logx.String("cmd", command),
	)
	return &Request{
		Update:  up,
		Chat:    chat,
		From:    from,
		Command: command,
		ReqID:   rid,
		IsOwner: r.isOwner(from.ID),
		Adapter: r.adapter,
		Logger:  log,
	}
}

func (r *Router) routeMessage(up transport.Update) (*Request, HandlerFunc) {
	msg := up.Message
	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	name, args, isCmd := parseCommand(msg.Text, r.adapter.Self().Username)
	var cmd *Command
	if isCmd {
		r.mu.RLock()
		cmd = r.cmds[name]
		r.mu.RUnlock()
	}

	if cmd == nil {
		// Unknown commands in groups are ordinary messages.
		if msg.IsGroup() && r.opts.OnMessage != nil {
			req := r.newRequest(up, chat, msg.From, "")
			req.Message = msg
			onMessage := r.opts.OnMessage
			h := func(ctx context.Context, req *Request) error {
				onMessage(ctx, req.Message)
				return nil
			}
			return req, Chain(h, MWPanicRecover(r.log), MWTimeout(r.opts.HandlerTimeout))
		}
		if isCmd && msg.ChatType == transport.ChatPrivate {
			req := r.newRequest(up, chat, msg.From, name)
			return req, func(ctx context.Context, req *Request) error {
				_, err := req.Reply(ctx, "Unknown command. Try /help", nil)
				return err
			}
		}
		return nil, nil
	}

	req := r.newRequest(up, chat, msg.From, cmd.Name)
	req.Message = msg
	req.Args = args
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.opts.HandlerTimeout
	}
	return req, Chain(
		cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(),
		MWTimeout(timeout),
		r.mwAccess(*cmd),
	)
}

func (r *Router) routeCallback(up transport.Update) (*Request, HandlerFunc) {
	cb := up.Callback
	chat := transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)

	var route CallbackRoute
	ok := false
	if len(parts) >= 2 {
		r.mu.RLock()
		route, ok = r.callbacks[parts[0]+":"+parts[1]]
		r.mu.RUnlock()
	}
	if !ok {
		req := r.newRequest(up, chat, cb.From, "cb:unknown")
		req.Callback = cb
		return req, func(ctx context.Context, req *Request) error {
			return req.Answer(ctx, "", false)
		}
	}

	req := r.newRequest(up, chat, cb.From, "cb:"+route.NS+":"+route.Action)
	req.Callback = cb
	if len(parts) == 3 {
		req.Payload = parts[2]
	}
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = r.opts.HandlerTimeout
	}
	h := route.Handle
	if route.Access == CallbackAccessOwnerOnly {
		next := h
		h = func(ctx context.Context, req *Request) error {
			if !req.IsOwner {
				return req.Answer(ctx, "❌ You are not authorized to do this.", true)
			}
			return next(ctx, req)
		}
	}
	return req, Chain(h, MWPanicRecover(r.log), MWRequestLog(), MWTimeout(timeout))
}

func (r *Router) publishMenu(sup *supervisor.Supervisor) {
	up, ok := r.adapter.(transport.CommandMenuUpdater)
	if !ok {
		return
	}
	menu := buildMenu(r.Commands())
	sup.Go("telegram.menu.update", func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(cctx, menu); err != nil {
			r.log.Warn("menu update failed", logx.Err(err))
		}
		return nil
	})
}
