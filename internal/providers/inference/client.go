// Package inference talks to the remote speech evaluation service.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"speakwell/internal/audio"
	"speakwell/internal/domain"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 60 * time.Second

	maxErrorBody = 4096
)

// Config controls the inference HTTP client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// SampleRate and Channels describe raw PCM uploads, which are wrapped in a WAV header.
	SampleRate int
	Channels   int
}

// Client implements ports.InferenceService over HTTP.
type Client struct {
	baseURL    string
	sampleRate int
	channels   int
	httpClient *http.Client
}

// StatusError is returned for any non-2xx reply.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %d - %s", e.Op, e.Status, body)
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Client{
		baseURL:    base,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type submitResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Detail   string `json:"detail"`
	Feedback string `json:"feedback"`
	Data     *struct {
		Transcription string   `json:"transcription"`
		Score         float64  `json:"score"`
		Accuracy      float64  `json:"accuracy"`
		Issues        []string `json:"issues"`
		LLMFeedback   string   `json:"llm_feedback"`
		Analysis      struct {
			Suggestions []string `json:"suggestions"`
		} `json:"analysis"`
	} `json:"data"`
}

// SubmitAudio uploads one recording for scoring.
func (c *Client) SubmitAudio(ctx context.Context, recording []byte, exerciseText string) (domain.SubmitResponse, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("audio", "recording.wav")
	if err != nil {
		return domain.SubmitResponse{}, fmt.Errorf("create audio part: %w", err)
	}
	if !audio.IsWAV(recording) {
		recording = audio.EncodeWAV(recording, c.sampleRate, c.channels)
	}
	if _, err := part.Write(recording); err != nil {
		return domain.SubmitResponse{}, fmt.Errorf("write audio part: %w", err)
	}
	if err := form.WriteField("exercise_text", exerciseText); err != nil {
		return domain.SubmitResponse{}, fmt.Errorf("write exercise text: %w", err)
	}
	if err := form.Close(); err != nil {
		return domain.SubmitResponse{}, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/exercise/submit", &body)
	if err != nil {
		return domain.SubmitResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var decoded submitResponse
	if err := c.do(req, "submit audio", &decoded); err != nil {
		return domain.SubmitResponse{}, err
	}
	return decoded.toDomain(), nil
}

func (r submitResponse) toDomain() domain.SubmitResponse {
	if !strings.EqualFold(r.Status, string(domain.SubmitStatusSuccess)) || r.Data == nil {
		message := firstNonEmpty(r.Message, r.Detail)
		if message == "" {
			message = "Could not process audio. Please try again."
		}
		return domain.SubmitResponse{Status: domain.SubmitStatusError, Message: message}
	}

	return domain.SubmitResponse{
		Status:  domain.SubmitStatusSuccess,
		Message: r.Message,
		Result: domain.SessionResult{
			Transcript:   r.Data.Transcription,
			Score:        r.Data.Score,
			Accuracy:     r.Data.Accuracy,
			FeedbackText: firstNonEmpty(r.Data.LLMFeedback, r.Feedback),
			Issues:       r.Data.Issues,
			Suggestions:  r.Data.Analysis.Suggestions,
		},
	}
}

// GenerateExercises asks the service for practice prompts of one type.
func (c *Client) GenerateExercises(ctx context.Context, exerciseType string, count int) ([]string, error) {
	query := url.Values{}
	query.Set("type", exerciseType)
	query.Set("count", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/exercises/generate?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var decoded struct {
		Exercises []string `json:"exercises"`
	}
	if err := c.do(req, "generate exercises", &decoded); err != nil {
		return nil, err
	}
	return decoded.Exercises, nil
}

// Chat sends one message to the assistant.
func (c *Client) Chat(ctx context.Context, message string) (domain.ChatReply, error) {
	req, err := c.jsonRequest(ctx, "/api/chat", map[string]string{"message": message})
	if err != nil {
		return domain.ChatReply{}, err
	}

	var reply domain.ChatReply
	if err := c.do(req, "chat", &reply); err != nil {
		return domain.ChatReply{}, err
	}
	return reply, nil
}

// SendContactMessage forwards a support request.
func (c *Client) SendContactMessage(ctx context.Context, msg domain.ContactMessage) error {
	payload := map[string]string{
		"name":    msg.Name,
		"email":   msg.Email,
		"message": msg.Message,
		"user_id": msg.UserID,
	}
	req, err := c.jsonRequest(ctx, "/api/contact/send", payload)
	if err != nil {
		return err
	}
	return c.do(req, "send contact message", nil)
}

func (c *Client) jsonRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
