package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"rockingester/internal/logging"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// StatusResponse is the JSON body of /api/status.
type StatusResponse struct {
	Running      bool        `json:"running"`
	Backend      string      `json:"backend"`
	LockFilePath string      `json:"lock_file"`
	Passes       int         `json:"passes"`
	InFlight     bool        `json:"in_flight"`
	LastPass     *PassReport `json:"last_pass,omitempty"`
}

// PassReport is the JSON form of a collector pass summary.
type PassReport struct {
	PassID             string    `json:"pass_id"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	Error              string    `json:"error,omitempty"`
	Candidates         int       `json:"candidates"`
	Ingested           int       `json:"ingested_dirs"`
	Held               int       `json:"held_dirs"`
	Deferred           int       `json:"deferred_dirs"`
	DirectoriesRemoved int       `json:"removed_dirs"`
	Registered         int       `json:"registered"`
	FilesFailed        int       `json:"files_failed"`
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	bind = strings.TrimSpace(bind)
	if bind == "" || d == nil {
		return nil
	}
	return &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.Handle("/metrics", s.daemon.metrics.Handler())

	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status()
	payload := StatusResponse{
		Running:      status.Running,
		Backend:      status.Backend,
		LockFilePath: status.LockFilePath,
		Passes:       status.Collector.Passes,
		InFlight:     status.Collector.InFlight,
	}
	if last := status.Collector.LastPass; last != nil {
		payload.LastPass = &PassReport{
			PassID:             last.PassID,
			StartedAt:          last.StartedAt,
			FinishedAt:         last.FinishedAt,
			Error:              last.Err,
			Candidates:         last.Candidates,
			Ingested:           last.Ingested,
			Held:               last.Held,
			Deferred:           last.Deferred,
			DirectoriesRemoved: last.DirectoriesRemoved,
			Registered:         last.Registered,
			FilesFailed:        last.FilesFailed,
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.WarnWithContext(s.logger, "api encode failed", "api_encode_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "client received a truncated response"),
		)
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
