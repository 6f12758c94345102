// Package physio talks to the remote pose analysis service.
package physio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"speakwell/internal/domain"
	"speakwell/internal/ports"
)

const (
	DefaultHTTPBase = "http://localhost:8001"
	DefaultTimeout  = 15 * time.Second
)

// Config controls the streaming service endpoints.
type Config struct {
	HTTPBase string
	// WSBase defaults to HTTPBase with a ws scheme and a /ws suffix.
	WSBase  string
	Timeout time.Duration
}

// Client implements ports.StreamingService.
type Client struct {
	httpBase   string
	wsBase     string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

func NewClient(cfg Config) (*Client, error) {
	httpBase := strings.TrimRight(strings.TrimSpace(cfg.HTTPBase), "/")
	if httpBase == "" {
		httpBase = DefaultHTTPBase
	}
	if _, err := url.Parse(httpBase); err != nil {
		return nil, fmt.Errorf("invalid physio http base: %w", err)
	}

	wsBase := strings.TrimRight(strings.TrimSpace(cfg.WSBase), "/")
	if wsBase == "" {
		wsBase = toWebsocketBase(httpBase) + "/ws"
	}
	if _, err := url.Parse(wsBase); err != nil {
		return nil, fmt.Errorf("invalid physio websocket base: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpBase:   httpBase,
		wsBase:     wsBase,
		httpClient: &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
	}, nil
}

// Connect opens the per-user frame socket.
func (c *Client) Connect(ctx context.Context, userID string) (ports.FrameStream, error) {
	wsURL := c.wsBase + "/" + url.PathEscape(userID)
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to physio websocket: %w", err)
	}
	return newFrameStream(conn), nil
}

// StartSession tells the service to start counting repetitions.
func (c *Client) StartSession(ctx context.Context, userID string) (string, error) {
	var reply messageReply
	if err := c.post(ctx, "/start", userID, &reply); err != nil {
		return "", fmt.Errorf("start physio session: %w", err)
	}
	return reply.message("Session started"), nil
}

// StopSession tells the service to close the current session and persist it.
func (c *Client) StopSession(ctx context.Context, userID string) (string, error) {
	var reply messageReply
	if err := c.post(ctx, "/stop", userID, &reply); err != nil {
		return "", fmt.Errorf("stop physio session: %w", err)
	}
	return reply.message("Session stopped"), nil
}

// ProgressReport returns the session history of a user. A 404 maps to domain.ErrNoProgress.
func (c *Client) ProgressReport(ctx context.Context, userID string) (domain.ProgressReport, error) {
	var reply progressReply
	if err := c.post(ctx, "/progress_report", userID, &reply); err != nil {
		return domain.ProgressReport{}, fmt.Errorf("physio progress report: %w", err)
	}
	return reply.toDomain(), nil
}

type messageReply struct {
	Message string `json:"message"`
}

func (r messageReply) message(fallback string) string {
	if msg := strings.TrimSpace(r.Message); msg != "" {
		return msg
	}
	return fallback
}

type progressReply struct {
	TotalReps      int     `json:"total_reps"`
	TotalDuration  float64 `json:"total_duration"`
	LastUpdated    string  `json:"last_updated"`
	SessionHistory []struct {
		Date     string  `json:"date"`
		Duration float64 `json:"duration"`
		Reps     int     `json:"reps"`
	} `json:"session_history"`
}

func (r progressReply) toDomain() domain.ProgressReport {
	report := domain.ProgressReport{
		TotalReps:            r.TotalReps,
		TotalDurationSeconds: r.TotalDuration,
		LastUpdated:          r.LastUpdated,
		SessionHistory:       make([]domain.PhysioSession, 0, len(r.SessionHistory)),
	}
	for _, s := range r.SessionHistory {
		report.SessionHistory = append(report.SessionHistory, domain.PhysioSession{
			Date:            s.Date,
			Reps:            s.Reps,
			DurationSeconds: s.Duration,
		})
	}
	return report
}

// StatusError is returned for any non-2xx control reply.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if body := strings.TrimSpace(e.Body); body != "" {
		return fmt.Sprintf("status %d: %s", e.Status, body)
	}
	return fmt.Sprintf("status %d", e.Status)
}

func (c *Client) post(ctx context.Context, path, userID string, out any) error {
	endpoint := c.httpBase + path + "?" + url.Values{"user_id": {userID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && path == "/progress_report" {
		return domain.ErrNoProgress
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toWebsocketBase(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
