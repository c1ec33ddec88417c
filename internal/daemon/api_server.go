package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"sprocket/internal/api"
	"sprocket/internal/config"
	"sprocket/internal/jobs"
	"sprocket/internal/logging"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/status", srv.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/health", srv.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs", srv.handleListJobs).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs", srv.handleEnqueue).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs/{id}", srv.handleGetJob).Methods(http.MethodGet)
	router.HandleFunc("/api/deadletters", srv.handleDeadLetters).Methods(http.MethodGet)
	router.HandleFunc("/api/deadletters/{id}/replay", srv.handleReplay).Methods(http.MethodPost)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	stats := make(map[string]int, len(status.JobStats))
	for jobStatus, count := range status.JobStats {
		stats[string(jobStatus)] = count
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		QueueDepth:   status.QueueDepth,
		JobStats:     stats,
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.daemon.StageHealth(r.Context())
	resp := api.FromStageHealth(health)
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []jobs.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		statuses = append(statuses, jobs.Status(trimmed))
	}

	records, err := s.daemon.ListJobs(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payloads := make([]api.JobPayload, 0, len(records))
	for _, job := range records {
		payloads = append(payloads, api.FromJob(job))
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: payloads})
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	job, err := s.daemon.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromJob(job))
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req api.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	jobID, messageID, err := s.daemon.Enqueue(r.Context(), req.JobID, req.SourceKey, req.Metadata)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.EnqueueResponse{JobID: jobID, MessageID: messageID})
}

func (s *apiServer) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	entries, err := s.daemon.DeadLetters(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payloads := make([]api.DeadLetterPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, api.FromDeadLetter(entry))
	}
	s.writeJSON(w, http.StatusOK, api.DeadLetterListResponse{Entries: payloads})
}

func (s *apiServer) handleReplay(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid dead letter id")
		return
	}
	msg, err := s.daemon.ReplayDeadLetter(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReplayResponse{DeadLetterID: id, MessageID: msg.ID})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
