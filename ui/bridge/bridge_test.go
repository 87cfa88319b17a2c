package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/worktimer-go/domain/activity"
	"github.com/soocke/worktimer-go/domain/capture"
	"github.com/soocke/worktimer-go/domain/idle"
	"github.com/soocke/worktimer-go/domain/ledger"
	"github.com/soocke/worktimer-go/domain/publish"
	"github.com/soocke/worktimer-go/domain/timer"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeController struct {
	hub *publish.Hub

	mu       sync.Mutex
	commands []timer.Command
	keep     *bool
	reason   *string
	started  [2]string
	resp     timer.TimerResponse
	startErr error
}

func newFakeController() *fakeController { return &fakeController{hub: publish.NewHub()} }

func (f *fakeController) Control(_ context.Context, cmd timer.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeController) StartSession(_ context.Context, projectID, taskID string) (ledger.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return ledger.TimeEntry{}, f.startErr
	}
	f.started = [2]string{projectID, taskID}
	return ledger.TimeEntry{ID: "e1", ProjectID: projectID, TaskID: taskID}, nil
}

func (f *fakeController) StopSession(context.Context) (ledger.TimeEntry, error) {
	return ledger.TimeEntry{}, ledger.ErrNotTracking
}

func (f *fakeController) Snapshot(context.Context) (timer.TimerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resp, nil
}

func (f *fakeController) HandleIdleDecision(keep bool, reason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keep, f.reason = &keep, reason
	return nil
}

func (f *fakeController) CaptureNow(context.Context) ([]capture.CapturedImage, error) {
	return nil, &capture.CaptureError{Display: 0, Kind: capture.ErrCaptureFailed, Err: fmt.Errorf("boom")}
}

func (f *fakeController) Subscribe() (<-chan publish.Update, func()) { return f.hub.Subscribe() }

func (f *fakeController) recorded() []timer.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]timer.Command(nil), f.commands...)
}

type fakeIdle struct{}

func (fakeIdle) IdleState() idle.IdleState { return idle.IdleState{} }
func (fakeIdle) Pending() (idle.PendingDecision, bool) {
	return idle.PendingDecision{Duration: 42, AskReason: true}, true
}
func (fakeIdle) ActivityStatus() activity.Status { return activity.Status{KeyboardActive: true} }

func wsURL(baseURL, path string) string {
	return "ws://" + strings.TrimPrefix(baseURL, "http://") + path
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/ws"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg serverMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips updates until a message of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) serverMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readMessage(t, conn)
		if msg.Type == typ {
			return msg
		}
	}
	t.Fatalf("no %s message received", typ)
	return serverMessage{}
}

func TestStatusEndpoint(t *testing.T) {
	ctl := newFakeController()
	ctl.resp = timer.TimerResponse{ElapsedSeconds: 7, Running: true}
	srv := NewServer(discardLogger(), "", ctl, fakeIdle{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(res.Body).Decode(&st))
	assert.Equal(t, uint64(7), st.Timer.ElapsedSeconds)
	assert.True(t, st.Timer.Running)
	require.NotNil(t, st.Pending)
	assert.Equal(t, int64(42), st.Pending.Duration)
	require.NotNil(t, st.Activity)
	assert.True(t, st.Activity.KeyboardActive)
}

func TestStatusRejectsPost(t *testing.T) {
	srv := NewServer(discardLogger(), "", newFakeController(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}

func TestWSInitialSnapshotAndCommand(t *testing.T) {
	ctl := newFakeController()
	ctl.resp = timer.TimerResponse{ElapsedSeconds: 3}
	srv := NewServer(discardLogger(), "", ctl, fakeIdle{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	first := readMessage(t, conn)
	assert.Equal(t, "update", first.Type)
	assert.Equal(t, publish.EventTimerUpdate, first.Event)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "command", Command: "add_time", Seconds: 60}))
	ack := readUntil(t, conn, "ack")
	assert.Equal(t, "command", ack.Request)
	assert.Equal(t, []timer.Command{timer.AddTime(60)}, ctl.recorded())

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "command", Command: "rewind"}))
	bad := readUntil(t, conn, "error")
	assert.Equal(t, "UNKNOWN_COMMAND", bad.Code)
}

func TestWSForwardsHubUpdates(t *testing.T) {
	ctl := newFakeController()
	srv := NewServer(discardLogger(), "", ctl, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	readMessage(t, conn) // initial snapshot

	require.Eventually(t, func() bool { return ctl.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, ctl.hub.Emit(publish.Update{Event: publish.EventIdle, Payload: idle.IdleNotice{Since: time.Unix(100, 0).UTC()}}))

	msg := readUntil(t, conn, "update")
	assert.Equal(t, publish.EventIdle, msg.Event)
}

func TestWSIdleDecisionAndSession(t *testing.T) {
	ctl := newFakeController()
	srv := NewServer(discardLogger(), "", ctl, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	readMessage(t, conn)

	reason := "lunch"
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "idle_decision", KeepTime: false, Reason: &reason}))
	readUntil(t, conn, "ack")
	ctl.mu.Lock()
	require.NotNil(t, ctl.keep)
	assert.False(t, *ctl.keep)
	require.NotNil(t, ctl.reason)
	assert.Equal(t, "lunch", *ctl.reason)
	ctl.mu.Unlock()

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "start_session", ProjectID: "p", TaskID: "t"}))
	ack := readUntil(t, conn, "ack")
	require.NotNil(t, ack.Entry)
	assert.Equal(t, "p", ack.Entry.ProjectID)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "stop_session"}))
	stopErr := readUntil(t, conn, "error")
	assert.Equal(t, "NOT_TRACKING", stopErr.Code)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "capture_now"}))
	capErr := readUntil(t, conn, "error")
	assert.Equal(t, "CAPTURE_FAILED", capErr.Code)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "teleport"}))
	unsupported := readUntil(t, conn, "error")
	assert.Equal(t, "UNSUPPORTED_MESSAGE", unsupported.Code)
}

func TestWSRejectsForeignOrigin(t *testing.T) {
	srv := NewServer(discardLogger(), "", newFakeController(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	h := http.Header{}
	h.Set("Origin", "http://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/ws"), h)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestErrorReplyCodes(t *testing.T) {
	cases := map[string]error{
		"LOCK_FAILED":           &timer.LockError{Op: "start", Cause: context.DeadlineExceeded},
		"ALREADY_TRACKING":      fmt.Errorf("start: %w", ledger.ErrAlreadyTracking),
		"NO_DISPLAYS":           capture.ErrNoDisplays,
		"INVALID_DISPLAY_INDEX": capture.ErrInvalidDisplayIndex,
		"INTERNAL_ERROR":        fmt.Errorf("other"),
	}
	for code, err := range cases {
		assert.Equal(t, code, errorReply("x", err).Code, code)
	}
}

func TestObserveFeedsSessionTotals(t *testing.T) {
	ctl := newFakeController()
	srv := NewServer(discardLogger(), "", ctl, nil)
	updates := make(chan publish.Update, 4)
	start := time.Unix(0, 0)
	end := start.Add(9 * time.Second)
	updates <- publish.Update{Event: publish.EventTimerUpdate, Payload: timer.TimerResponse{ElapsedSeconds: 9, Running: true, StartTime: &start}}
	updates <- publish.Update{Event: publish.EventTimerUpdate, Payload: timer.TimerResponse{EndTime: &end}}
	close(updates)

	srv.observe(context.Background(), updates)
	_, total, done := srv.Sessions().Values()
	assert.Equal(t, uint64(9), total)
	assert.Equal(t, 1, done)
}
