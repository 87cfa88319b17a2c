package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soocke/worktimer-go/domain/capture"
	"github.com/soocke/worktimer-go/domain/ledger"
	"github.com/soocke/worktimer-go/domain/publish"
	"github.com/soocke/worktimer-go/domain/timer"
)

const (
	writeTimeout   = 10 * time.Second
	requestTimeout = 5 * time.Second
)

// clientMessage is any request the shell sends over /ws.
type clientMessage struct {
	Type      string  `json:"type"`
	Command   string  `json:"command,omitempty"`
	Seconds   uint64  `json:"seconds,omitempty"`
	KeepTime  bool    `json:"keep_time,omitempty"`
	Reason    *string `json:"reason,omitempty"`
	ProjectID string  `json:"project_id,omitempty"`
	TaskID    string  `json:"task_id,omitempty"`
}

// serverMessage is pushed to the shell. Updates carry Event and Payload.
type serverMessage struct {
	Type    string                  `json:"type"` // update, ack, error, capture
	Event   string                  `json:"event,omitempty"`
	Payload any                     `json:"payload,omitempty"`
	Request string                  `json:"request,omitempty"`
	Code    string                  `json:"code,omitempty"`
	Message string                  `json:"message,omitempty"`
	Entry   *ledger.TimeEntry       `json:"entry,omitempty"`
	Images  []capture.CapturedImage `json:"images,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

// allowWSOrigin accepts same-host origins and non-browser clients.
func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host) || strings.EqualFold(u.Hostname(), "localhost") || u.Hostname() == "127.0.0.1"
}

type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *connWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(v)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	writer := &connWriter{conn: conn}

	updates, unsubscribe := s.ctl.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// hijacked connections outlive server shutdown unless closed here
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	// initial state so the shell does not wait a full publish period
	if resp, err := s.ctl.Snapshot(ctx); err == nil {
		_ = writer.WriteJSON(serverMessage{Type: "update", Event: publish.EventTimerUpdate, Payload: resp})
	}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.pump(ctx, writer, updates)
	}()
	defer func() {
		cancel()
		<-pumpDone
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && s.logger != nil {
				s.logger.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = writer.WriteJSON(serverMessage{Type: "error", Code: "INVALID_MESSAGE", Message: "invalid json payload"})
			continue
		}
		_ = writer.WriteJSON(s.dispatch(ctx, msg))
	}
}

// pump forwards hub updates until ctx ends or the subscription closes.
func (s *Server) pump(ctx context.Context, w *connWriter, updates <-chan publish.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := w.WriteJSON(serverMessage{Type: "update", Event: u.Event, Payload: u.Payload}); err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatch(parent context.Context, msg clientMessage) serverMessage {
	ctx, cancel := context.WithTimeout(parent, requestTimeout)
	defer cancel()

	switch msg.Type {
	case "ping":
		return serverMessage{Type: "ack", Request: "ping"}
	case "command":
		cmd, err := timer.ParseCommand(msg.Command, msg.Seconds)
		if err != nil {
			return serverMessage{Type: "error", Request: msg.Type, Code: "UNKNOWN_COMMAND", Message: err.Error()}
		}
		if err := s.ctl.Control(ctx, cmd); err != nil {
			return errorReply(msg.Type, err)
		}
		return serverMessage{Type: "ack", Request: msg.Type}
	case "start_session":
		entry, err := s.ctl.StartSession(ctx, msg.ProjectID, msg.TaskID)
		if err != nil {
			return errorReply(msg.Type, err)
		}
		return serverMessage{Type: "ack", Request: msg.Type, Entry: &entry}
	case "stop_session":
		entry, err := s.ctl.StopSession(ctx)
		if err != nil {
			return errorReply(msg.Type, err)
		}
		return serverMessage{Type: "ack", Request: msg.Type, Entry: &entry}
	case "idle_decision":
		if err := s.ctl.HandleIdleDecision(msg.KeepTime, msg.Reason); err != nil {
			return errorReply(msg.Type, err)
		}
		return serverMessage{Type: "ack", Request: msg.Type}
	case "capture_now":
		images, err := s.ctl.CaptureNow(ctx)
		if err != nil {
			return errorReply(msg.Type, err)
		}
		return serverMessage{Type: "capture", Request: msg.Type, Images: images}
	default:
		return serverMessage{
			Type:    "error",
			Request: msg.Type,
			Code:    "UNSUPPORTED_MESSAGE",
			Message: "supported message types: ping,command,start_session,stop_session,idle_decision,capture_now",
		}
	}
}

func errorReply(req string, err error) serverMessage {
	code := "INTERNAL_ERROR"
	var lockErr *timer.LockError
	switch {
	case errors.As(err, &lockErr):
		code = "LOCK_FAILED"
	case errors.Is(err, ledger.ErrAlreadyTracking):
		code = "ALREADY_TRACKING"
	case errors.Is(err, ledger.ErrNotTracking):
		code = "NOT_TRACKING"
	case errors.Is(err, capture.ErrNoDisplays):
		code = "NO_DISPLAYS"
	case errors.Is(err, capture.ErrInvalidDisplayIndex):
		code = "INVALID_DISPLAY_INDEX"
	case errors.Is(err, capture.ErrCaptureFailed):
		code = "CAPTURE_FAILED"
	}
	return serverMessage{Type: "error", Request: req, Code: code, Message: err.Error()}
}
