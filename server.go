package snipforge

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/snipforge/core"
	"pkt.systems/snipforge/httpapi"
	"pkt.systems/snipforge/internal/auth"
	"pkt.systems/snipforge/internal/providermock"
	"pkt.systems/snipforge/internal/sharelink"
	"pkt.systems/snipforge/internal/usage"
)

// ServerConfig configures the server compositor.
type ServerConfig struct {
	HTTP          httpapi.Config
	PasswordFile  string
	QuotaFile     string
	QuotaUses     int
	ShareKeyStore string
	ShareDir      string
	ProviderDelay time.Duration
}

// ServerDeps captures dependencies required to build the server. A nil
// Provider selects the deterministic mock provider.
type ServerDeps struct {
	Provider core.Provider
	Logger   pslog.Logger
}

// Server runs the generation API until stopped.
type Server struct {
	cfg     ServerConfig
	httpSrv *httpapi.Server

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
	logger  pslog.Logger
}

// New constructs a server: password gate, quota ledger, share store, and
// the HTTP surface around the generation provider.
func New(cfg ServerConfig, deps ServerDeps) (*Server, error) {
	if cfg.PasswordFile == "" {
		return nil, errors.New("password file is required")
	}
	if cfg.QuotaFile == "" {
		return nil, errors.New("quota file is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	passwords, err := auth.NewStore(cfg.PasswordFile, logger)
	if err != nil {
		return nil, err
	}
	ledger, err := usage.NewLedger(cfg.QuotaFile, cfg.QuotaUses, logger)
	if err != nil {
		return nil, err
	}
	shares, err := sharelink.NewStore(cfg.ShareKeyStore, cfg.ShareDir, logger)
	if err != nil {
		return nil, err
	}
	provider := deps.Provider
	if provider == nil {
		provider = &providermock.Provider{Delay: cfg.ProviderDelay}
	}
	httpSrv := httpapi.NewServer(cfg.HTTP, passwords, ledger, shares, provider)
	return &Server{cfg: cfg, httpSrv: httpSrv}, nil
}

// Start begins serving. It returns once the listener goroutine is running.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info("server start",
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_url", s.cfg.HTTP.BaseURL,
		"http_base_path", s.cfg.HTTP.BasePath,
		"quota_uses", s.cfg.QuotaUses)
	go func() {
		if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
			log.Error("http server failed", "err", err)
			s.errCh <- err
		}
	}()
	return nil
}

// Wait blocks until the server context ends or the listener fails.
func (s *Server) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop shuts the server down. A nil context skips waiting for shutdown.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() *httpapi.Server {
	return s.httpSrv
}
