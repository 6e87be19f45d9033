package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/navi/internal/memory"
	"github.com/antoniostano/navi/internal/observability"
	"github.com/antoniostano/navi/internal/protocol"
	"github.com/antoniostano/navi/internal/session"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 120 * time.Second
)

// StatusSource reports the session machine's current state.
type StatusSource interface {
	Status() session.Status
}

// MemoryReader is the read side of the memory store.
type MemoryReader interface {
	ExportAll(ctx context.Context) (memory.Document, error)
	GetContext(ctx context.Context, userID string) (string, error)
}

type Options struct {
	DefaultUserID  string
	AllowAnyOrigin bool
	Logger         *slog.Logger
}

type Server struct {
	status   StatusSource
	memory   MemoryReader
	metrics  *observability.Metrics
	hub      *Hub
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(status StatusSource, mem MemoryReader, metrics *observability.Metrics, hub *Hub, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(0, logger)
	}
	if strings.TrimSpace(opts.DefaultUserID) == "" {
		opts.DefaultUserID = session.DefaultUserID
	}
	return &Server{
		status:  status,
		memory:  mem,
		metrics: metrics,
		hub:     hub,
		opts:    opts,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if opts.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients usually omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/v1/memory", s.handleMemoryExport)
	r.Get("/v1/memory/context", s.handleMemoryContext)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/events", s.handleEvents)
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down within
// shutdownTimeout.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("diagnostics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown failed", "error", err)
		_ = srv.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":        "ok",
		"state":         session.StateIdle,
		"session_count": 0,
		"event_clients": s.hub.Clients(),
	}
	active := false
	if s.status != nil {
		st := s.status.Status()
		body["state"] = st.State
		body["session_count"] = st.Sessions
		if st.Current != nil {
			active = st.Current.Active
			body["current"] = st.Current
		}
		if st.LastSession != nil {
			body["last_session"] = st.LastSession
		}
	}
	body["session_active"] = active
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "metrics not configured")
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) handleMemoryExport(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "memory store not configured")
		return
	}
	doc, err := s.memory.ExportAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "memory_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleMemoryContext(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "memory store not configured")
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = s.opts.DefaultUserID
	}
	digest, err := s.memory.GetContext(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "memory_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"user_id": userID,
		"context": digest,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.hub.subscribe()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Replies to client messages share the single writer goroutine.
	replies := make(chan any, 8)
	if s.status != nil {
		replies <- s.snapshotEvent()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.send:
				if !ok {
					return
				}
				msg = ev
			case ev := <-replies:
				msg = ev
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("encode event failed", "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug("event client write failed", "error", err)
				cancel()
				// Unblocks the read loop.
				_ = conn.Close()
				return
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		var reply any
		parsed, err := protocol.ParseClientMessage(data)
		switch {
		case err != nil:
			reply = protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Source: "gateway",
				Detail: err.Error(),
			}
		default:
			reply = s.handleClientMessage(parsed)
		}
		if reply == nil {
			continue
		}
		select {
		case replies <- reply:
		default:
			// Writer is saturated; the client is not reading.
		}
	}

	cancel()
	s.hub.unsubscribe(sub)
	<-writerDone
}

func (s *Server) handleClientMessage(msg any) any {
	ctl, ok := msg.(protocol.ClientControl)
	if !ok {
		return nil
	}
	switch ctl.Action {
	case protocol.ActionPing:
		return protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "pong"}
	case protocol.ActionStatus:
		return s.snapshotEvent()
	default:
		return protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   "unknown_action",
			Source: "gateway",
			Detail: "unsupported client_control action " + ctl.Action,
		}
	}
}

func (s *Server) snapshotEvent() protocol.StateEvent {
	ev := protocol.StateEvent{
		Type:  protocol.TypeState,
		State: string(session.StateIdle),
		TSMs:  time.Now().UnixMilli(),
	}
	if s.status == nil {
		return ev
	}
	st := s.status.Status()
	ev.State = string(st.State)
	if cur := st.Current; cur != nil {
		ev.SessionID = cur.ID
		ev.UserID = cur.UserID
		ev.Turn = cur.TurnCount
	}
	return ev
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
