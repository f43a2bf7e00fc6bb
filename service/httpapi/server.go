// Package httpapi exposes the orchestrator over HTTP. Every failure is
// rendered as a model.Result with the status derived from its error kind.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/model"
	"golang.org/x/time/rate"
)

// Runtime is the orchestrator surface served over HTTP
type Runtime interface {
	EnqueueOpen(ctx context.Context, player1, player2 string) (*model.AllocationRecord, error)
	EnqueueSubmit(ctx context.Context, chainID string, result *model.MatchResult) (*model.SubmitReceipt, error)
	GetRecord(ctx context.Context, chainID string) (*model.AllocationRecord, error)
	Records(ctx context.Context, statuses ...string) ([]*model.AllocationRecord, error)
	GetPlayer(ctx context.Context, name string) (*model.PlayerStats, error)
	Snapshot(ctx context.Context, top int) (*model.Snapshot, error)
	LoadSnapshot(ctx context.Context, id string) (*model.Snapshot, error)
	ListSnapshots(ctx context.Context) ([]*model.Snapshot, error)
	Status(ctx context.Context) *model.RuntimeStatus
}

var errBadRequest = errors.New("bad request")

// Server routes HTTP requests to the runtime
type Server struct {
	runtime  Runtime
	router   *mux.Router
	gatherer prometheus.Gatherer
	logger   logrus.FieldLogger

	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	idle     time.Duration
	pruned   time.Time
}

type clientLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// Option configures the server
type Option func(s *Server)

// WithGatherer exposes gatherer on /metrics
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithRateLimit limits requests per second per client address; a zero limit disables limiting
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.limit = rate.Limit(perSecond)
		s.burst = burst
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server
func New(runtime Runtime, options ...Option) *Server {
	s := &Server{runtime: runtime, logger: logrus.StandardLogger(), limiters: map[string]*clientLimiter{}}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "httpapi")
	if s.burst <= 0 {
		s.burst = 1
	}
	if s.limit > 0 {
		// a limiter idle for its refill time is as good as a fresh one
		s.idle = time.Duration(float64(s.burst) / float64(s.limit) * float64(time.Second))
		if s.idle < time.Minute {
			s.idle = time.Minute
		}
		s.pruned = clock.Now()
	}
	s.router = mux.NewRouter()
	s.router.Use(s.logRequests)
	if s.limit > 0 {
		s.router.Use(s.rateLimit)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/open", s.open).Methods(http.MethodPost)
	r.HandleFunc("/submit", s.submit).Methods(http.MethodPost)
	r.HandleFunc("/records", s.records).Methods(http.MethodGet)
	r.HandleFunc("/records/{chainId}", s.record).Methods(http.MethodGet)
	r.HandleFunc("/service/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/players/{name}", s.player).Methods(http.MethodGet)
	r.HandleFunc("/snapshots", s.createSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/snapshots", s.snapshots).Methods(http.MethodGet)
	r.HandleFunc("/snapshots/{id}", s.snapshot).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- server.ListenAndServe() }()
	s.logger.WithField("addr", addr).Info("listening")
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) open(w http.ResponseWriter, r *http.Request) {
	var request model.OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Player1 == "" || request.Player2 == "" {
		writeError(w, errBadRequest, "", "")
		return
	}
	record, err := s.runtime.EnqueueOpen(r.Context(), request.Player1, request.Player2)
	if err != nil {
		writeError(w, err, "", "")
		return
	}
	writeJSON(w, http.StatusOK, model.RecordResult(record))
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var request model.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.MatchResult == nil {
		writeError(w, errBadRequest, request.ChainID, "")
		return
	}
	receipt, err := s.runtime.EnqueueSubmit(r.Context(), request.ChainID, request.MatchResult)
	if err != nil {
		writeError(w, err, request.ChainID, request.MatchResult.MatchID)
		return
	}
	status := http.StatusOK
	if receipt.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, model.ReceiptResult(receipt))
}

func (s *Server) records(w http.ResponseWriter, r *http.Request) {
	records, err := s.runtime.Records(r.Context(), r.URL.Query()["status"]...)
	if err != nil {
		writeError(w, err, "", "")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) record(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chainId"]
	record, err := s.runtime.GetRecord(r.Context(), chainID)
	if err != nil {
		writeError(w, err, chainID, "")
		return
	}
	if record == nil {
		writeJSON(w, http.StatusNotFound, &model.Result{ChainID: chainID, Error: "record not found"})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runtime.Status(r.Context()))
}

func (s *Server) player(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	stats, err := s.runtime.GetPlayer(r.Context(), name)
	if err != nil {
		writeError(w, err, "", "")
		return
	}
	if stats == nil {
		writeJSON(w, http.StatusNotFound, &model.Result{Error: "player not found: " + name})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) createSnapshot(w http.ResponseWriter, r *http.Request) {
	top := 0
	if value := r.URL.Query().Get("top"); value != "" {
		var err error
		if top, err = strconv.Atoi(value); err != nil || top < 0 {
			writeError(w, errBadRequest, "", "")
			return
		}
	}
	snapshot, err := s.runtime.Snapshot(r.Context(), top)
	if err != nil {
		writeError(w, err, "", "")
		return
	}
	writeJSON(w, http.StatusCreated, snapshot)
}

func (s *Server) snapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.runtime.ListSnapshots(r.Context())
	if err != nil {
		writeError(w, err, "", "")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snapshot, err := s.runtime.LoadSnapshot(r.Context(), id)
	if err != nil {
		writeError(w, err, "", "")
		return
	}
	if snapshot == nil {
		writeJSON(w, http.StatusNotFound, &model.Result{Error: "snapshot not found: " + id})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"status":  recorder.status,
			"elapsed": time.Since(started).String(),
		}).Debug("request")
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter(clientKey(r)).Allow() {
			writeJSON(w, http.StatusTooManyRequests, &model.Result{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := clock.Now()
	if now.Sub(s.pruned) >= s.idle {
		s.prune(now)
	}
	limiter, ok := s.limiters[key]
	if !ok {
		limiter = &clientLimiter{Limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = limiter
	}
	limiter.lastSeen = now
	return limiter.Limiter
}

// prune drops limiters of clients idle for longer than s.idle
func (s *Server) prune(now time.Time) {
	for key, limiter := range s.limiters {
		if now.Sub(limiter.lastSeen) >= s.idle {
			delete(s.limiters, key)
		}
	}
	s.pruned = now
}

func (s *Server) clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeError(w http.ResponseWriter, err error, chainID, matchID string) {
	result := model.NewErrorResult(err, chainID, matchID)
	status := model.HTTPStatus(err)
	if errors.Is(err, errBadRequest) {
		status = http.StatusBadRequest
		result.Error = "invalid payload"
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
