package usecase

import (
	"context"
	"errors"
	"testing"

	"speakwell/internal/domain"
)

func TestDashboardRequiresUser(t *testing.T) {
	t.Parallel()

	d := NewDashboard(&fakeStore{}, "  ")
	if _, err := d.History(context.Background(), 0); !errors.Is(err, ErrMissingUserID) {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}
	if _, err := d.WeakAreas(context.Background()); !errors.Is(err, ErrMissingUserID) {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}
}

func TestDashboardAppliesDefaults(t *testing.T) {
	t.Parallel()

	store := &fakeStore{history: []domain.ExerciseRecord{{ExerciseType: "fluency", Score: 70}}}
	d := NewDashboard(store, "user-1")

	records, err := d.History(context.Background(), 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(records) != 1 || store.limits[0] != defaultHistoryLimit {
		t.Fatalf("unexpected history call: %+v %v", records, store.limits)
	}

	progress, err := d.Progress(context.Background(), 0)
	if err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	if len(progress) != 1 || progress[0].Sessions != defaultProgressDays {
		t.Fatalf("expected default day window, got %+v", progress)
	}
}

func TestAssistantChatRejectsBlankMessage(t *testing.T) {
	t.Parallel()

	a := NewAssistant(&fakeInference{chatReply: domain.ChatReply{Message: "Try tongue twisters"}}, "")
	if _, err := a.Chat(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	reply, err := a.Chat(context.Background(), "how do I improve?")
	if err != nil || reply.Message != "Try tongue twisters" {
		t.Fatalf("unexpected reply: %+v %v", reply, err)
	}
}

func TestAssistantSendContactMessage(t *testing.T) {
	t.Parallel()

	inference := &fakeInference{}
	a := NewAssistant(inference, "user-1")

	err := a.SendContactMessage(context.Background(), domain.ContactMessage{Name: "Sam", Email: "nope", Message: "hi"})
	if !errors.Is(err, ErrInvalidContact) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	err = a.SendContactMessage(context.Background(), domain.ContactMessage{Name: "", Email: "sam@example.com", Message: "hi"})
	if !errors.Is(err, ErrInvalidContact) {
		t.Fatalf("expected missing name, got %v", err)
	}

	err = a.SendContactMessage(context.Background(), domain.ContactMessage{Name: " Sam ", Email: "sam@example.com", Message: "hello"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(inference.contacts) != 1 || inference.contacts[0].UserID != "user-1" || inference.contacts[0].Name != "Sam" {
		t.Fatalf("unexpected contact: %+v", inference.contacts)
	}
}
