package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"fsubbot/internal/transport"
	"fsubbot/pkg/logx"
)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs outermost.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs every handled command or callback with its duration.
func MWRequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)
			if err != nil {
				req.Logger.Warn("request failed", logx.Duration("dur", d), logx.Err(err))
				return err
			}
			if d >= 750*time.Millisecond {
				req.Logger.Info("request ok", logx.Duration("dur", d))
			} else {
				req.Logger.Debug("request ok", logx.Duration("dur", d))
			}
			return nil
		}
	}
}

// Denial replies.
const (
	denyGroupOnly   = "This command only works in groups."
	denyPrivateOnly = "This command only works in private chat."
	denyAdminOnly   = "❌ Only admins can use this command."
	denyOwnerOnly   = "❌ You are not authorized to use this command."
)

// mwAccess enforces a command's scope and access level. Group admin status
// is looked up remotely, so it runs inside the worker.
func (r *Router) mwAccess(cmd Command) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			isGroup := req.Message != nil && req.Message.IsGroup()
			switch {
			case cmd.Scope == ScopeGroup && !isGroup:
				_, err := req.Reply(ctx, denyGroupOnly, nil)
				return err
			case cmd.Scope == ScopePrivate && isGroup:
				_, err := req.Reply(ctx, denyPrivateOnly, nil)
				return err
			}

			switch cmd.Access {
			case AccessOwnerOnly:
				if !req.IsOwner {
					_, err := req.Reply(ctx, denyOwnerOnly, nil)
					return err
				}
			case AccessGroupAdmin:
				if req.IsOwner || !isGroup {
					break
				}
				st, err := r.adapter.MemberStatus(ctx, transport.ChatRef{ID: req.Chat.ChatID}, req.From.ID)
				if err != nil {
					return fmt.Errorf("admin check: %w", err)
				}
				if !st.IsAdmin() {
					_, err := req.Reply(ctx, denyAdminOnly, nil)
					return err
				}
			}
			return next(ctx, req)
		}
	}
}
