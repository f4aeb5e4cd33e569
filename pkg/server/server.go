// Package server exposes the treasury ledger over HTTP: one POST route per
// instruction, read views for the pool, backers, deployments, and the audit
// log, plus the health endpoints the deployment probes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/engine"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/metrics"
)

type Server struct {
	log     *slog.Logger
	cfg     Config
	engine  *engine.Engine
	events  EventSource
	pinger  Pinger
	ready   ReadyChecker
	httpSrv *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log:    cfg.Logger,
		cfg:    cfg,
		engine: cfg.Engine,
		events: cfg.Events,
		pinger: cfg.Pinger,
		ready:  cfg.Ready,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/version", s.handleVersion)

	limiter := newRateLimiter(cfg.MutationRate, cfg.MutationBurst)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/pool", s.handlePool)
		r.Get("/backers/{pubkey}", s.handleBacker)
		r.Get("/deployments", s.handleListDeployments)
		r.Get("/deployments/{hash}", s.handleDeployment)
		r.Get("/developers/{pubkey}/stats", s.handleDeveloperStats)
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit(limiter))
			r.Post("/initialize", s.handleInitialize)
			r.Post("/backers/{pubkey}/stake", s.handleStake)
			r.Post("/backers/{pubkey}/unstake", s.handleUnstake)
			r.Post("/backers/{pubkey}/claim", s.handleClaim)
			r.Post("/fees/credit", s.handleCreditFee)
			r.Post("/deployments", s.handleCreateDeployment)
			r.Post("/deployments/{hash}/fund", s.handleFund)
			r.Post("/deployments/{hash}/confirm-success", s.handleConfirmSuccess)
			r.Post("/deployments/{hash}/confirm-failure", s.handleConfirmFailure)
			r.Post("/deployments/{hash}/cancel", s.handleCancel)
			r.Post("/deployments/{hash}/close", s.handleClose)
			r.Post("/deployments/{hash}/subscription", s.handlePaySubscription)
			r.Post("/admin/suspend-expired", s.handleSuspendExpired)
			r.Post("/admin/pause", s.handlePause)
			r.Post("/admin/apy", s.handleUpdateAPY)
			r.Post("/admin/withdraw/platform", s.handleWithdrawPlatform)
			r.Post("/admin/withdraw/rewards", s.handleWithdrawRewards)
			r.Post("/admin/sync-liquid", s.handleSyncLiquid)
		})
	})

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "address", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		s.log.Error("server: http server error causing shutdown", "error", err)
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("server: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("server: failed to write healthz response", "error", err)
	}
}

// handleReadyz reports ready once the durable ledger answers and the
// reconciler has completed its first scan.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		s.log.Debug("server: readyz store ping failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("store unreachable\n")); err != nil {
			s.log.Error("server: failed to write readyz response", "error", err)
		}
		return
	}
	if s.ready != nil && !s.ready.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("reconciler not ready\n")); err != nil {
			s.log.Error("server: failed to write readyz response", "error", err)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("server: failed to write readyz response", "error", err)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(s.cfg.VersionInfo); err != nil {
		s.log.Error("server: failed to write version response", "error", err)
	}
}
