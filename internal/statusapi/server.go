// Package statusapi exposes the live pipeline over a read-only HTTP surface:
// liveness, engine counters, recent signals, classified wallets and
// Prometheus metrics. Every endpoint reads concurrent-safe snapshots, so the
// API never blocks the event loop.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/observability"
	"solana-infra-watch/internal/pipeline"
	"solana-infra-watch/internal/scoring"
	"solana-infra-watch/internal/signals"
)

const (
	defaultSignalLimit = 50
	maxSignalLimit     = 500

	readTimeout     = 10 * time.Second
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Pipeline is the view of the engine the API reads from.
type Pipeline interface {
	Stats() pipeline.Stats
	Emitter() *signals.Emitter
	Scorer() *scoring.Scorer
}

// Options configures a Server.
type Options struct {
	Port     int
	Pipeline Pipeline
	Logger   zerolog.Logger
}

// Server serves the status endpoints.
type Server struct {
	pipe Pipeline
	srv  *http.Server
	log  zerolog.Logger
}

// New creates a Server. The listener is not opened until Run.
func New(opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("statusapi: pipeline is required")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("statusapi: invalid port %d", opts.Port)
	}

	s := &Server{
		pipe: opts.Pipeline,
		log:  opts.Logger.With().Str("component", "statusapi").Logger(),
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/signals", s.handleSignals).Methods(http.MethodGet)
	r.HandleFunc("/wallets", s.handleWallets).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s, nil
}

// Handler returns the route tree. Used by tests; Run serves the same handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("status api listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("statusapi shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("statusapi: %w", err)
	}
}

// StatusResponse is the JSON body of GET /status.
type StatusResponse struct {
	Status           string  `json:"status"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	EventsProcessed  int64   `json:"events_processed"`
	HighestSlot      int64   `json:"highest_slot"`
	OpenSignals      int     `json:"open_signals"`
	TrackedWallets   int     `json:"tracked_wallets"`
	SignalsEmitted   uint64  `json:"signals_emitted"`
	SignalsConfirmed uint64  `json:"signals_confirmed"`
	SignalsExpired   uint64  `json:"signals_expired"`
}

// SignalView is one signal in GET /signals.
type SignalView struct {
	ID                     string  `json:"id"`
	TokenMint              string  `json:"token_mint"`
	PoolAddress            string  `json:"pool_address"`
	AbsorberWallet         string  `json:"absorber_wallet"`
	DefendedPrice          float64 `json:"defended_price"`
	Strength               float64 `json:"strength"`
	Status                 string  `json:"status"`
	StabilizationConfirmed bool    `json:"stabilization_confirmed"`
	CreatedAtSlot          int64   `json:"created_at_slot"`
	CreatedAtMs            int64   `json:"created_at_ms"`
}

// SignalsResponse is the JSON body of GET /signals.
type SignalsResponse struct {
	Count   int          `json:"count"`
	Signals []SignalView `json:"signals"`
}

// WalletView is one wallet in GET /wallets.
type WalletView struct {
	Wallet                   string  `json:"wallet"`
	Classification           string  `json:"classification"`
	Confidence               float64 `json:"confidence"`
	Status                   string  `json:"status"`
	TotalAbsorptions         int     `json:"total_absorptions"`
	SuccessfulAbsorptions    int     `json:"successful_absorptions"`
	StabilizationSuccessRate float64 `json:"stabilization_success_rate"`
	AvgAbsorptionFraction    float64 `json:"avg_absorption_fraction"`
	AvgResponseLatencySlots  float64 `json:"avg_response_latency_slots"`
	SizeConsistency          float64 `json:"size_consistency"`
	ActivityPattern          string  `json:"activity_pattern"`
	UniqueTokens             int     `json:"unique_tokens"`
	FirstSeenMs              int64   `json:"first_seen_ms"`
	LastSeenMs               int64   `json:"last_seen_ms"`
}

// WalletsResponse is the JSON body of GET /wallets.
type WalletsResponse struct {
	Count   int          `json:"count"`
	Wallets []WalletView `json:"wallets"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.pipe.Stats()
	em := s.pipe.Emitter().Stats()
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Status:           "running",
		UptimeSeconds:    st.UptimeSeconds,
		EventsProcessed:  st.EventsProcessed,
		HighestSlot:      st.HighestSlot,
		OpenSignals:      st.OpenSignals,
		TrackedWallets:   st.TrackedWallets,
		SignalsEmitted:   em.Emitted,
		SignalsConfirmed: em.Confirmed,
		SignalsExpired:   em.Expired,
	})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	limit := defaultSignalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	if limit > maxSignalLimit {
		limit = maxSignalLimit
	}

	recent := s.pipe.Emitter().Recent(limit)
	views := make([]SignalView, 0, len(recent))
	for _, sig := range recent {
		views = append(views, signalView(sig))
	}
	s.writeJSON(w, http.StatusOK, SignalsResponse{Count: len(views), Signals: views})
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	classified := s.pipe.Scorer().Classified()
	views := make([]WalletView, 0, len(classified))
	for i := range classified {
		views = append(views, walletView(&classified[i]))
	}
	s.writeJSON(w, http.StatusOK, WalletsResponse{Count: len(views), Wallets: views})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusNotFound, fmt.Sprintf("no such endpoint %s", r.URL.Path))
}

func signalView(sig domain.Signal) SignalView {
	return SignalView{
		ID:                     sig.ID,
		TokenMint:              sig.TokenMint,
		PoolAddress:            sig.PoolAddress,
		AbsorberWallet:         sig.AbsorberWallet,
		DefendedPrice:          sig.DefendedPrice,
		Strength:               sig.Strength,
		Status:                 sig.Status,
		StabilizationConfirmed: sig.StabilizationConfirmed,
		CreatedAtSlot:          sig.CreatedAtSlot,
		CreatedAtMs:            sig.CreatedAt,
	}
}

func walletView(b *domain.WalletBehavior) WalletView {
	return WalletView{
		Wallet:                   b.Wallet,
		Classification:           b.Classification,
		Confidence:               b.Confidence,
		Status:                   b.Status,
		TotalAbsorptions:         b.TotalAbsorptions,
		SuccessfulAbsorptions:    b.SuccessfulAbsorptions,
		StabilizationSuccessRate: b.StabilizationSuccessRate,
		AvgAbsorptionFraction:    b.AvgAbsorptionFraction,
		AvgResponseLatencySlots:  b.AvgResponseLatency,
		SizeConsistency:          b.SizeConsistency,
		ActivityPattern:          b.ActivityPattern,
		UniqueTokens:             len(b.UniqueTokens),
		FirstSeenMs:              b.FirstSeen,
		LastSeenMs:               b.LastSeen,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// logRequests logs each request with its status and latency.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}

// statusRecorder captures the response code for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
