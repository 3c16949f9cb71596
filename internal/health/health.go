package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradefork/engine/pkg/logger"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Health() error
}

// SchedulerStatus reports whether background jobs are registered
type SchedulerStatus interface {
	Running() bool
}

// UserCounter counts users the engine is currently watching
type UserCounter interface {
	CountActiveUsers(ctx context.Context) (int, error)
}

// Server provides health check HTTP endpoints for K8s
type Server struct {
	server    *http.Server
	db        Pinger
	redis     Pinger
	scheduler SchedulerStatus
	users     UserCounter
	ready     bool
	readyMu   sync.RWMutex
	startTime time.Time
}

// HealthStatus represents process liveness
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessStatus represents readiness to monitor users
type ReadinessStatus struct {
	Ready            bool              `json:"ready"`
	Timestamp        string            `json:"timestamp"`
	Checks           map[string]string `json:"checks"`
	SchedulerRunning bool              `json:"scheduler_running"`
	ActiveUsers      int               `json:"active_users"`
}

// NewServer creates new health check server
func NewServer(
	port string,
	db Pinger,
	redis Pinger,
	scheduler SchedulerStatus,
	users UserCounter,
) *Server {
	mux := http.NewServeMux()

	s := &Server{
		server: &http.Server{
			Addr:         ":" + port,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		db:        db,
		redis:     redis,
		scheduler: scheduler,
		users:     users,
		ready:     false,
		startTime: time.Now(),
	}

	// Health endpoints for K8s probes only
	mux.HandleFunc("/health", s.handleHealth)    // Liveness probe
	mux.HandleFunc("/ready", s.handleReadiness)  // Readiness probe
	mux.HandleFunc("/healthz", s.handleHealth)   // Alias
	mux.HandleFunc("/readyz", s.handleReadiness) // Alias

	return s
}

// Start starts the health check server
func (s *Server) Start() error {
	logger.Info("health check server starting",
		zap.String("addr", s.server.Addr),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping health check server...")
	return s.server.Shutdown(ctx)
}

// SetReady marks the service as ready
func (s *Server) SetReady(ready bool) {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	s.ready = ready

	if ready {
		logger.Info("✅ service marked as READY")
	} else {
		logger.Warn("⚠️ service marked as NOT READY")
	}
}

// handleHealth handles liveness probe - /health
// Returns 200 if process is alive (even if dependencies are down)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}

	if r.URL.Query().Get("verbose") == "true" {
		status.Checks = s.checkDependencies()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// handleReadiness handles readiness probe - /ready
// Returns 200 only if startup finished and dependencies answer
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.readyMu.RLock()
	ready := s.ready
	s.readyMu.RUnlock()

	checks := s.checkDependencies()
	allHealthy := true
	for _, v := range checks {
		if v != "healthy" {
			allHealthy = false
		}
	}

	activeUsers := 0
	if s.users != nil {
		count, err := s.users.CountActiveUsers(r.Context())
		if err != nil {
			logger.Warn("failed to count active users", zap.Error(err))
		} else {
			activeUsers = count
		}
	}

	isReady := ready && allHealthy

	status := ReadinessStatus{
		Ready:            isReady,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		Checks:           checks,
		SchedulerRunning: s.scheduler != nil && s.scheduler.Running(),
		ActiveUsers:      activeUsers,
	}

	w.Header().Set("Content-Type", "application/json")

	if isReady {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}

func (s *Server) checkDependencies() map[string]string {
	checks := make(map[string]string)

	if err := s.db.Health(); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
	} else {
		checks["database"] = "healthy"
	}

	if err := s.redis.Health(); err != nil {
		checks["redis"] = "unhealthy: " + err.Error()
	} else {
		checks["redis"] = "healthy"
	}

	return checks
}
