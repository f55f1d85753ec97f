package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nodeflow/nodeflow/graph"
	"github.com/nodeflow/nodeflow/graph/store"
)

// Config collects the server's collaborators. Resolver, Executor, Queue,
// and Registry are required; History defaults to an in-memory store and
// Logger to slog.Default().
type Config struct {
	Addr     string
	Resolver graph.BackendResolver
	Executor *graph.Executor
	Queue    *graph.SubmissionQueue
	Registry *Registry
	History  store.Store
	Metrics  *graph.Metrics
	Logger   *slog.Logger

	// MetricsHandler serves GET /metrics. Nil disables the endpoint.
	MetricsHandler http.Handler
}

// Server is the HTTP and WebSocket surface over the execution engine. One
// consume loop drains the submission queue; exactly one run is active at a
// time.
type Server struct {
	addr           string
	resolver       graph.BackendResolver
	executor       *graph.Executor
	queue          *graph.SubmissionQueue
	registry       *Registry
	history        store.Store
	metrics        *graph.Metrics
	logger         *slog.Logger
	metricsHandler http.Handler
	router         *gin.Engine

	mu        sync.Mutex
	runningID string
}

// New creates a server from cfg and registers its routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	history := cfg.History
	if history == nil {
		history = store.NewMemStore()
	}

	s := &Server{
		addr:           cfg.Addr,
		resolver:       cfg.Resolver,
		executor:       cfg.Executor,
		queue:          cfg.Queue,
		registry:       cfg.Registry,
		history:        history,
		metrics:        cfg.Metrics,
		logger:         logger,
		metricsHandler: cfg.MetricsHandler,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/ws", s.handleWebSocket)
	router.POST("/prompt", s.handleSubmitHTTP)
	router.GET("/queue", s.handleQueueState)
	router.POST("/queue/cancel", s.handleCancelPending)
	router.POST("/interrupt", s.handleInterrupt)
	router.GET("/history", s.handleHistoryList)
	router.GET("/history/:runID", s.handleHistoryGet)
	if s.metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	s.router = router
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run starts the queue consume loop and serves HTTP until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.consumeLoop(ctx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// consumeLoop drains the submission queue one run at a time.
func (s *Server) consumeLoop(ctx context.Context) {
	for {
		run, err := s.queue.DequeueNext(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("queue consume loop stopped", "error", err)
			}
			return
		}
		s.runOne(ctx, run)
	}
}

// ConsumeOne dequeues and executes at most one pending run. Used by tests
// to drive the engine without the background loop.
func (s *Server) ConsumeOne(ctx context.Context) bool {
	run, ok := s.queue.TryDequeue()
	if !ok {
		return false
	}
	s.runOne(ctx, run)
	return true
}

func (s *Server) runOne(ctx context.Context, run *graph.QueuedRun) {
	s.mu.Lock()
	s.runningID = run.RunID
	s.mu.Unlock()
	s.broadcastStatus()

	res := s.executor.Execute(ctx, run)

	s.mu.Lock()
	s.runningID = ""
	s.mu.Unlock()

	s.recordTerminal(run, res)
	s.broadcastStatus()
}

func (s *Server) statusSnapshot() StatusData {
	s.mu.Lock()
	running := s.runningID
	s.mu.Unlock()
	return StatusData{
		QueueDepth: s.queue.Len(),
		RunningID:  running,
	}
}

// broadcastStatus pushes a queue snapshot to every session and refreshes
// the queue depth gauge.
func (s *Server) broadcastStatus() {
	snap := s.statusSnapshot()
	if s.metrics != nil {
		s.metrics.SetQueueDepth(snap.QueueDepth)
	}
	s.registry.Broadcast(mustMessage(TypeStatus, snap))
}

// recordSubmission writes the pending history record for an accepted run.
func (s *Server) recordSubmission(run *graph.QueuedRun) {
	promptJSON, err := json.Marshal(run.Prompt)
	if err != nil {
		s.logger.Warn("failed to encode prompt for history", "run_id", run.RunID, "error", err)
		promptJSON = nil
	}

	now := time.Now().UTC()
	rec := store.RunRecord{
		RunID:     run.RunID,
		Sequence:  run.Sequence,
		SessionID: run.SessionID,
		Status:    string(graph.StatusPending),
		Prompt:    promptJSON,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.history.SaveRun(context.Background(), rec); err != nil {
		s.logger.Warn("failed to record submission", "run_id", run.RunID, "error", err)
	}
}

// recordTerminal updates the history record with the run's terminal state.
func (s *Server) recordTerminal(run *graph.QueuedRun, res *graph.RunResult) {
	rec, err := s.history.GetRun(context.Background(), run.RunID)
	if err != nil {
		rec = store.RunRecord{
			RunID:     run.RunID,
			Sequence:  run.Sequence,
			SessionID: run.SessionID,
			CreatedAt: time.Now().UTC(),
		}
	}

	rec.Status = string(res.Status)
	rec.Executed = nodeIDStrings(res.Executed)
	rec.Cached = nodeIDStrings(res.Cached)
	rec.UpdatedAt = time.Now().UTC()
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if len(res.Outputs) > 0 {
		if outputsJSON, err := json.Marshal(res.Outputs); err == nil {
			rec.Outputs = outputsJSON
		}
	}

	if err := s.history.SaveRun(context.Background(), rec); err != nil {
		s.logger.Warn("failed to record terminal state", "run_id", run.RunID, "error", err)
	}
}

// handleSubmitHTTP is the out-of-band submission path, mirroring the
// in-session submit_run message.
func (s *Server) handleSubmitHTTP(c *gin.Context) {
	var req SubmitRunData
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}

	// A connected session may claim ownership of the run's events.
	sessionID := c.Query("session_id")
	if sessionID != "" {
		if _, ok := s.registry.Get(sessionID); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown session_id"})
			return
		}
	}

	accepted, rejected := s.submit(req, sessionID)
	if rejected != nil {
		c.JSON(http.StatusBadRequest, rejected)
		return
	}
	c.JSON(http.StatusOK, accepted)
}

func (s *Server) handleQueueState(c *gin.Context) {
	s.mu.Lock()
	running := s.runningID
	s.mu.Unlock()

	cached := s.executor.Cache().KnownOutputs()
	sort.Slice(cached, func(i, j int) bool { return cached[i] < cached[j] })

	c.JSON(http.StatusOK, gin.H{
		"running_id":   running,
		"pending":      s.queue.PendingRunIDs(),
		"depth":        s.queue.Len(),
		"cached_nodes": cached,
	})
}

func (s *Server) handleCancelPending(c *gin.Context) {
	var req struct {
		RunID string `json:"run_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RunID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run_id is required"})
		return
	}

	cancelled := s.queue.CancelPending(req.RunID)
	if cancelled {
		s.broadcastStatus()
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

func (s *Server) handleInterrupt(c *gin.Context) {
	s.executor.Interrupt()
	c.JSON(http.StatusOK, gin.H{"interrupted": true})
}

func (s *Server) handleHistoryList(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	recs, err := s.history.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []store.RunRecord{}
	}
	c.JSON(http.StatusOK, recs)
}

func (s *Server) handleHistoryGet(c *gin.Context) {
	rec, err := s.history.GetRun(c.Request.Context(), c.Param("runID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func nodeIDStrings(ids []graph.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
