package server

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"sync"
	"time"

	common "github.com/iselt/ttt-udp/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server hosts many concurrent game sessions on one UDP socket.
type Server struct {
	Config  common.ServerConfig
	Logger  *zap.Logger
	Metrics *Metrics

	transport common.Transport
	handler   PayloadHandler
	store     *GameStore
	recorder  Recorder
	api       *APIServer

	mu       sync.Mutex
	sessions map[netip.AddrPort]*worker
	// retired holds replaced workers that have not been joined yet.
	retired []*worker
	workers sync.WaitGroup

	startedAt time.Time
	closeOnce sync.Once
}

// New creates a server on an already bound transport. The server takes
// ownership of the transport.
func New(config common.ServerConfig, transport common.Transport, handler PayloadHandler, logger *zap.Logger) (*Server, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport", common.ErrMissingConfig)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: payload handler", common.ErrMissingConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	server := &Server{
		Config:    config,
		Logger:    logger,
		Metrics:   NewMetrics(),
		transport: transport,
		handler:   handler,
		sessions:  make(map[netip.AddrPort]*worker),
		startedAt: time.Now(),
	}

	if config.APIServer.DatabasePath != "" {
		store, err := OpenGameStore(config.APIServer.DatabasePath)
		if err != nil {
			return nil, err
		}
		server.store = store
		server.recorder = store
	}

	if config.APIServer.Enabled {
		server.api = NewAPIServer(server)
	}

	logger.Info("Game server initialized",
		zap.Stringer("listen_addr", transport.LocalAddr()),
		zap.Duration("idle_timeout", config.Timing.IdleTimeout),
		zap.Int("max_missed_probes", config.Timing.MaxMissedProbes),
		zap.Bool("api_enabled", config.APIServer.Enabled),
		zap.Bool("ledger_enabled", server.store != nil))

	return server, nil
}

// Run serves until ctx is cancelled or the socket fails. On return every
// worker has been joined and the transport is closed.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.receiveLoop(gctx)
	})
	g.Go(func() error {
		s.reapLoop(gctx)
		return nil
	})
	if s.api != nil {
		g.Go(func() error {
			return s.api.Serve(gctx)
		})
	}
	if s.Config.Metrics.Enabled {
		g.Go(func() error {
			return s.serveMetrics(gctx)
		})
	}

	err := g.Wait()

	s.Logger.Info("Shutting down server...")
	s.workers.Wait()
	s.reap()
	if closeErr := s.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (s *Server) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Metrics.Handler())
	srv := &http.Server{Addr: s.Config.Metrics.ListenAddr, Handler: mux}
	return common.ServeHTTP(ctx, srv, s.Logger.Named("metrics"))
}

// LocalAddr returns the bound game socket address.
func (s *Server) LocalAddr() netip.AddrPort {
	return s.transport.LocalAddr()
}

// Uptime returns the time since the server was created.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Close releases the transport and the game ledger. It is safe to call more
// than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if cerr := s.transport.Close(); cerr != nil {
			err = fmt.Errorf("failed to close transport: %w", cerr)
		}
		if s.store != nil {
			if cerr := s.store.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close game store: %w", cerr)
			}
		}
		s.Logger.Info("Game server closed")
	})
	return err
}
