// Package server implements the HTTP front door: POST /chat resolves or
// creates the conversation session, rotates identifiers to steer routing,
// drives one runner turn, and returns the final text with the echoed state
// fields. It also serves /health and Prometheus /metrics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/logging"
	"github.com/refreshapp/refresh/runner"
	"github.com/refreshapp/refresh/study"
)

// AppName keys every session created by this front door.
const AppName = "RefreshApp"

// refreshInvocationID marks the forced state refresh appended before every
// turn so the session's own id is visible in its state.
const refreshInvocationID = "inv_session_refresh"

// Options configures a Server.
type Options struct {
	Logger   logging.Logger
	Registry *prometheus.Registry
}

// Server is the HTTP front door over one runner.
type Server struct {
	runner   *runner.Runner
	cfg      study.Config
	logger   logging.Logger
	registry *prometheus.Registry
	metrics  *Metrics
	router   *mux.Router
}

// New builds the front door for the given runner and study configuration.
func New(r *runner.Runner, cfg study.Config, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:   logging.NoOpLogger{},
		Registry: prometheus.NewRegistry(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		runner:   r,
		cfg:      cfg,
		logger:   opts.Logger,
		registry: opts.Registry,
		metrics:  NewMetrics(opts.Registry),
	}

	router := mux.NewRouter()
	router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router = router

	return s
}

// Handler returns the HTTP handler tree.
func (s *Server) Handler() http.Handler { return s.router }

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Reset     string `json:"reset,omitempty"`
}

type chatResponse struct {
	Response    string `json:"response"`
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	LoginStatus string `json:"login_status"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat runs one conversational turn.
//
// Session rotation table (trigger -> identifiers -> agent reachable next):
//
//	pre-login (user_id empty or "0")  -> (app, "0", client-or-new sid) -> router sees login_status from state
//	post-login, reset == "True"       -> (app, user_id, NEW sid)       -> fresh session, ends a question sub-flow
//	post-login otherwise              -> (app, user_id, client sid)    -> rotated away from the login agent's key
//
// Post-login branches seed login_status "True" so the router delegates to
// the activity agent. All three branches create-or-load, so replaying the
// same identifiers loads rather than recreates.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.ChatRequests.WithLabelValues("bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.Message == "" {
		s.metrics.ChatRequests.WithLabelValues("bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "message is required"})
		return
	}

	key, initial := s.resolveSession(req)

	store := s.runner.SessionStore()
	_, created, err := store.CreateOrLoad(r.Context(), key, initial)
	if err != nil {
		s.fail(w, fmt.Errorf("failed to resolve session: %w", err))
		return
	}
	if created {
		s.metrics.Sessions.WithLabelValues("created").Inc()
	} else {
		s.metrics.Sessions.WithLabelValues("loaded").Inc()
	}

	// Forced refresh: the session's own id lands in its state before the
	// agents run, so instruction templates can reference it.
	refresh := core.NewStateDeltaEvent(refreshInvocationID, "system",
		map[string]any{study.StateSessionID: key.SessionID})
	if err := store.AppendEvent(r.Context(), key, refresh); err != nil {
		s.fail(w, fmt.Errorf("failed to append refresh event: %w", err))
		return
	}

	events, err := s.runner.RunSync(r.Context(), key, *core.NewTextContent("user", req.Message))
	if err != nil {
		s.fail(w, err)
		return
	}

	var finalText string
	for _, ev := range events {
		if text := ev.Text(); text != "" && !ev.IsPartial() {
			finalText = text
		}
	}

	sess, err := store.Get(r.Context(), key)
	if err != nil {
		s.fail(w, fmt.Errorf("failed to reload session: %w", err))
		return
	}

	s.metrics.ChatRequests.WithLabelValues("success").Inc()
	s.metrics.TurnDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("server.chat.done",
		"session_id", key.SessionID,
		"user_id", key.UserID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, chatResponse{
		Response:    finalText,
		SessionID:   key.SessionID,
		UserID:      key.UserID,
		LoginStatus: sess.GetStateString(study.StateLoginStatus),
	})
}

// resolveSession applies the rotation table and returns the session key
// plus the initial state used if the session does not exist yet.
func (s *Server) resolveSession(req chatRequest) (core.SessionKey, map[string]any) {
	initial := study.InitialState(s.cfg)

	if req.UserID == "" || req.UserID == "0" {
		sid := req.SessionID
		if sid == "" {
			sid = uuid.NewString()
		}
		return core.SessionKey{AppName: AppName, UserID: "0", SessionID: sid}, initial
	}

	sid := req.SessionID
	if req.Reset == "True" || sid == "" {
		sid = uuid.NewString()
	}
	initial[study.StateLoginStatus] = "True"
	initial[study.StateUserID] = req.UserID
	initial[study.StateSessionID] = sid
	return core.SessionKey{AppName: AppName, UserID: req.UserID, SessionID: sid}, initial
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.metrics.ChatRequests.WithLabelValues("error").Inc()
	s.logger.Error("server.chat.failed", "error", err.Error())
	writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
