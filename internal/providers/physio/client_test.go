package physio

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"speakwell/internal/domain"
)

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.httpBase != DefaultHTTPBase {
		t.Fatalf("unexpected http base: %q", c.httpBase)
	}
	if c.wsBase != "ws://localhost:8001/ws" {
		t.Fatalf("unexpected ws base: %q", c.wsBase)
	}

	c, err = NewClient(Config{HTTPBase: "https://physio.example.com/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.wsBase != "wss://physio.example.com/ws" {
		t.Fatalf("unexpected derived ws base: %q", c.wsBase)
	}

	if _, err := NewClient(Config{HTTPBase: ":// bad"}); err == nil {
		t.Fatalf("expected invalid base error")
	}
}

func TestControlCallsSendUserID(t *testing.T) {
	t.Parallel()

	paths := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		paths <- r.URL.Path + "?" + r.URL.Query().Get("user_id")
		switch r.URL.Path {
		case "/start":
			_, _ = io.WriteString(w, `{"message":"Session started for u-1"}`)
		case "/stop":
			_, _ = io.WriteString(w, `{}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient(Config{HTTPBase: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err := c.StartSession(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("start error: %v", err)
	}
	if msg != "Session started for u-1" {
		t.Fatalf("unexpected start message: %q", msg)
	}

	msg, err = c.StopSession(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("stop error: %v", err)
	}
	if msg != "Session stopped" {
		t.Fatalf("expected fallback stop message, got %q", msg)
	}

	close(paths)
	var calls []string
	for call := range paths {
		calls = append(calls, call)
	}
	if strings.Join(calls, ",") != "/start?u-1,/stop?u-1" {
		t.Fatalf("unexpected calls: %v", calls)
	}
}

func TestControlCallNonOK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no active session", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{HTTPBase: srv.URL})
	_, err := c.StopSession(context.Background(), "u-1")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusBadRequest {
		t.Fatalf("expected status error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no active session") {
		t.Fatalf("expected body in error, got %q", err.Error())
	}
}

func TestProgressReport(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") == "missing" {
			http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{
			"total_reps": 24,
			"total_duration": 310.5,
			"last_updated": "2026-10-01T10:00:00",
			"session_history": [
				{"date": "2026-09-30", "duration": 120.5, "reps": 10},
				{"date": "2026-10-01", "duration": 190, "reps": 14}
			]
		}`)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{HTTPBase: srv.URL})

	report, err := c.ProgressReport(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalReps != 24 || report.TotalDurationSeconds != 310.5 || report.LastUpdated == "" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.SessionHistory) != 2 || report.SessionHistory[1].Reps != 14 || report.SessionHistory[0].DurationSeconds != 120.5 {
		t.Fatalf("unexpected history: %+v", report.SessionHistory)
	}

	_, err = c.ProgressReport(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNoProgress) {
		t.Fatalf("expected ErrNoProgress, got %v", err)
	}
}

func newAnnotatingServer(t *testing.T, gotPath chan<- string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case gotPath <- r.URL.EscapedPath():
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := decodeFrame(websocket.TextMessage, payload)
			if err != nil {
				return
			}
			annotated := append([]byte("annotated:"), frame...)
			reply := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(annotated)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
}

func TestFrameStreamRoundTrip(t *testing.T) {
	t.Parallel()

	gotPath := make(chan string, 1)
	srv := newAnnotatingServer(t, gotPath)
	defer srv.Close()

	c, err := NewClient(Config{HTTPBase: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stream, err := c.Connect(context.Background(), "user a/b")
	if err != nil {
		t.Fatalf("connect error: %v", err)
	}
	defer stream.Close()

	if path := <-gotPath; path != "/ws/user%20a%2Fb" {
		t.Fatalf("unexpected socket path: %q", path)
	}

	for i := 0; i < 3; i++ {
		if err := stream.Send([]byte{0xFF, 0xD8, byte(i)}); err != nil {
			t.Fatalf("send error: %v", err)
		}
		select {
		case frame, ok := <-stream.Frames():
			if !ok {
				t.Fatalf("frames closed early")
			}
			want := "annotated:" + string([]byte{0xFF, 0xD8, byte(i)})
			if string(frame) != want {
				t.Fatalf("unexpected frame %d: %q", i, frame)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}
}

func TestFrameStreamCloseIsIdempotentAndStopsSend(t *testing.T) {
	t.Parallel()

	srv := newAnnotatingServer(t, make(chan string, 1))
	defer srv.Close()

	c, _ := NewClient(Config{HTTPBase: srv.URL})
	stream, err := c.Connect(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("connect error: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("unexpected second close error: %v", err)
	}
	if err := stream.Send([]byte{1}); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	if _, ok := <-stream.Frames(); ok {
		t.Fatalf("expected frames channel to be closed")
	}
}

func TestFrameStreamServerClose(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    int
		wantErr bool
	}{
		{name: "normal", code: websocket.CloseNormalClosure, wantErr: false},
		{name: "internal", code: websocket.CloseInternalServerErr, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			upgrader := websocket.Upgrader{}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					return
				}
				defer conn.Close()
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(tc.code, "bye"))
				_, _, _ = conn.ReadMessage()
			}))
			defer srv.Close()

			c, _ := NewClient(Config{HTTPBase: srv.URL})
			stream, err := c.Connect(context.Background(), "u-1")
			if err != nil {
				t.Fatalf("connect error: %v", err)
			}
			defer stream.Close()

			select {
			case _, ok := <-stream.Frames():
				if ok {
					t.Fatalf("expected no frames")
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out waiting for close")
			}

			err = stream.Wait()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for close code %d", tc.code)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected normal close to be silent, got %v", err)
			}
		})
	}
}

func TestConnectFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{HTTPBase: srv.URL})
	if _, err := c.Connect(context.Background(), "u-1"); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	raw := []byte{0xFF, 0xD8, 0x01}
	encoded := base64.StdEncoding.EncodeToString(raw)

	cases := []struct {
		name    string
		kind    int
		payload string
		want    []byte
		wantErr bool
	}{
		{name: "data url", kind: websocket.TextMessage, payload: "data:image/jpeg;base64," + encoded, want: raw},
		{name: "bare base64", kind: websocket.TextMessage, payload: encoded, want: raw},
		{name: "binary", kind: websocket.BinaryMessage, payload: string(raw), want: raw},
		{name: "no comma", kind: websocket.TextMessage, payload: "data:image/jpeg;base64", wantErr: true},
		{name: "not base64", kind: websocket.TextMessage, payload: "data:text/plain,hello", wantErr: true},
	}

	for _, tc := range cases {
		got, err := decodeFrame(tc.kind, []byte(tc.payload))
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if string(got) != string(tc.want) {
			t.Fatalf("%s: unexpected frame %v", tc.name, got)
		}
	}
}

func TestEncodeDataURL(t *testing.T) {
	t.Parallel()

	got := string(encodeDataURL([]byte("jpg")))
	if got != "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString([]byte("jpg")) {
		t.Fatalf("unexpected data url: %q", got)
	}
}

func TestSetErrFirstWinsAndIgnoresNormalClose(t *testing.T) {
	t.Parallel()

	s := &FrameStream{}
	s.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if s.waitErr() != nil {
		t.Fatalf("expected close error to be ignored")
	}

	s.setErr(errors.New("first"))
	s.setErr(errors.New("second"))
	if s.waitErr() == nil || s.waitErr().Error() != "first" {
		t.Fatalf("expected first error to win")
	}
}
