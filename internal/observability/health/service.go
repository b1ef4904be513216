// Package health serves the liveness endpoint used by hosting platforms.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/routegroup"

	rtsup "fsubbot/internal/runtime/supervisor"
	"fsubbot/pkg/logx"
)

const rootText = "Bot is running"

type Config struct {
	Enabled bool
	Addr    string
	Version string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Service runs the HTTP listener on its own supervisor, so a failing
// listener is restarted without touching the bot.
type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	cfg     Config
	started time.Time

	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log.With(logx.String("comp", "health")), started: time.Now()}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Handler returns the routes: GET / and GET /ping, plus GET /status with
// uptime as JSON.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	version := s.cfg.Version
	s.mu.Unlock()
	if version == "" {
		version = "dev"
	}

	router := routegroup.New(http.NewServeMux())
	router.Use(rest.AppInfo("fsubbot", "fsubbot", version))
	router.Use(rest.Ping)
	router.Use(rest.Recoverer(lgr.Func(func(format string, args ...any) {
		s.log.Error("http handler panic", logx.String("detail", fmt.Sprintf(format, args...)))
	})))
	router.Use(rest.Throttle(100))
	router.Use(rest.SizeLimit(1024))

	router.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(rootText))
	})
	router.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		rest.RenderJSON(w, rest.JSON{
			"status":  "ok",
			"version": version,
			"uptime":  time.Since(s.started).Round(time.Second).String(),
		})
	})
	return router
}

// Start is idempotent. It returns immediately; the listener runs in the
// background.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.sup.GoRestart("http.serve", s.serve,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.sup = nil, nil
	s.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
	}
	if sup != nil {
		_ = sup.Stop(ctx)
		s.log.Info("health stopped")
	}
}

func (s *Service) serve(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = ":8000"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("health listening", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) || ctx.Err() != nil {
		return context.Canceled
	}
	return err
}
