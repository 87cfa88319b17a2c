package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/soocke/worktimer-go/domain/activity"
	"github.com/soocke/worktimer-go/domain/capture"
	"github.com/soocke/worktimer-go/domain/idle"
	"github.com/soocke/worktimer-go/domain/ledger"
	"github.com/soocke/worktimer-go/domain/publish"
	"github.com/soocke/worktimer-go/domain/timer"
	"github.com/soocke/worktimer-go/ui/model"
)

const DefaultAddr = "127.0.0.1:7420"

// Controller is everything the desktop shell may ask of the coordinator.
type Controller interface {
	Control(ctx context.Context, cmd timer.Command) error
	StartSession(ctx context.Context, projectID, taskID string) (ledger.TimeEntry, error)
	StopSession(ctx context.Context) (ledger.TimeEntry, error)
	Snapshot(ctx context.Context) (timer.TimerResponse, error)
	HandleIdleDecision(keep bool, reason *string) error
	CaptureNow(ctx context.Context) ([]capture.CapturedImage, error)
	Subscribe() (<-chan publish.Update, func())
}

// IdleView is the read side of the idle detector.
type IdleView interface {
	IdleState() idle.IdleState
	Pending() (idle.PendingDecision, bool)
	ActivityStatus() activity.Status
}

// Server exposes the coordinator to the desktop shell over HTTP and a
// websocket push channel.
type Server struct {
	addr     string
	ctl      Controller
	idle     IdleView
	sessions *model.SessionModel
	catalog  ProjectCatalog
	logger   *slog.Logger
	http     *http.Server
	baseCtx  context.Context
	cancel   context.CancelFunc
}

func NewServer(logger *slog.Logger, addr string, ctl Controller, iv IdleView) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:     addr,
		ctl:      ctl,
		idle:     iv,
		sessions: model.NewSessionModel(),
		logger:   logger,
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
	})
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/projects", s.handleProjects)
	mux.HandleFunc("/api/sections", s.handleSections)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/ws", s.handleWS)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.withRecover(mux),
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Addr() string { return s.addr }

// Sessions exposes the accumulated session totals.
func (s *Server) Sessions() *model.SessionModel { return s.sessions }

// Run serves until ctx is cancelled, feeding the session model from the
// publisher in the meantime.
func (s *Server) Run(ctx context.Context) error {
	updates, unsubscribe := s.ctl.Subscribe()
	defer unsubscribe()
	go s.observe(ctx, updates)

	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Info("bridge listening", "addr", s.addr)
		}
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("bridge listen %s: %w", s.addr, err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops long-lived websocket handlers and the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	err := s.http.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.http.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

func (s *Server) observe(ctx context.Context, updates <-chan publish.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if resp, ok := u.Payload.(timer.TimerResponse); ok && u.Event == publish.EventTimerUpdate {
				s.sessions.Observe(resp)
			}
		}
	}
}

// Status is the body of GET /api/status.
type Status struct {
	Timer    timer.TimerResponse   `json:"timer"`
	Idle     idle.IdleState        `json:"idle"`
	Pending  *idle.PendingDecision `json:"pending_idle,omitempty"`
	Activity *activity.Status      `json:"activity,omitempty"`
	Totals   SessionTotals         `json:"totals"`
}

type SessionTotals struct {
	SessionSeconds uint64 `json:"session_seconds"`
	TotalSeconds   uint64 `json:"total_seconds"`
	Completed      int    `json:"completed"`
}

func (s *Server) status(ctx context.Context) (Status, error) {
	resp, err := s.ctl.Snapshot(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Timer: resp}
	if s.idle != nil {
		st.Idle = s.idle.IdleState()
		if p, ok := s.idle.Pending(); ok {
			st.Pending = &p
		}
		a := s.idle.ActivityStatus()
		st.Activity = &a
	}
	st.Totals.SessionSeconds, st.Totals.TotalSeconds, st.Totals.Completed = s.sessions.Values()
	return st, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	st, err := s.status(ctx)
	if err != nil {
		writeAPIError(w, http.StatusServiceUnavailable, "TIMER_BUSY", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if s.logger != nil {
					s.logger.Error("bridge handler panic", "recover", fmt.Sprintf("%v", rec), "path", r.URL.Path)
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]apiError{"error": {Code: code, Message: message}})
}
