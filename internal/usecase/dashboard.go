package usecase

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"speakwell/internal/domain"
	"speakwell/internal/ports"
)

const (
	defaultHistoryLimit = 20
	defaultProgressDays = 30
)

// Dashboard reads a signed-in user's practice history from the progress store.
type Dashboard struct {
	store  ports.ProgressStore
	userID string
}

func NewDashboard(store ports.ProgressStore, userID string) *Dashboard {
	return &Dashboard{store: store, userID: strings.TrimSpace(userID)}
}

// History returns the most recent results, newest first.
func (d *Dashboard) History(ctx context.Context, limit int) ([]domain.ExerciseRecord, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return d.store.History(ctx, d.userID, limit)
}

// WeakAreas returns the exercise types averaging below the weak threshold.
func (d *Dashboard) WeakAreas(ctx context.Context) ([]domain.WeakArea, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	return d.store.WeakAreas(ctx, d.userID)
}

// Progress returns per-day averages for the last days.
func (d *Dashboard) Progress(ctx context.Context, days int) ([]domain.DailyProgress, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = defaultProgressDays
	}
	return d.store.Progress(ctx, d.userID, days)
}

func (d *Dashboard) Stats(ctx context.Context) (domain.UserStats, error) {
	if err := d.ready(); err != nil {
		return domain.UserStats{}, err
	}
	return d.store.Stats(ctx, d.userID)
}

func (d *Dashboard) ready() error {
	if d.userID == "" {
		return ErrMissingUserID
	}
	if d.store == nil {
		return fmt.Errorf("progress store is not configured")
	}
	return nil
}

// Assistant wraps the chat and contact endpoints of the inference service.
type Assistant struct {
	inference ports.InferenceService
	userID    string
}

func NewAssistant(inference ports.InferenceService, userID string) *Assistant {
	return &Assistant{inference: inference, userID: strings.TrimSpace(userID)}
}

func (a *Assistant) Chat(ctx context.Context, message string) (domain.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.ChatReply{}, ErrEmptyMessage
	}
	return a.inference.Chat(ctx, message)
}

// SendContactMessage validates and forwards a support request. The signed-in
// user id is attached when the message does not carry one.
func (a *Assistant) SendContactMessage(ctx context.Context, msg domain.ContactMessage) error {
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Message = strings.TrimSpace(msg.Message)
	if msg.Name == "" || msg.Email == "" || msg.Message == "" {
		return fmt.Errorf("%w: name, email and message are required", ErrInvalidContact)
	}
	if _, err := mail.ParseAddress(msg.Email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrInvalidContact, msg.Email)
	}
	if msg.UserID == "" {
		msg.UserID = a.userID
	}
	return a.inference.SendContactMessage(ctx, msg)
}
