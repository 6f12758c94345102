package ports

import (
	"context"
	"io"

	"speakwell/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// CameraConfig describes how the webcam should be captured.
type CameraConfig struct {
	InputFormat string
	InputDevice string
	Width       int
	Height      int
	FrameRate   int
	Quality     int
}

// CameraSession is an acquired camera. Capture returns one encoded JPEG frame.
type CameraSession interface {
	Capture(ctx context.Context) ([]byte, error)
	Stop() error
}

// CameraCapture acquires the camera.
type CameraCapture interface {
	Start(ctx context.Context, cfg CameraConfig) (CameraSession, error)
}

// InferenceService is the remote speech evaluation backend.
type InferenceService interface {
	SubmitAudio(ctx context.Context, audio []byte, exerciseText string) (domain.SubmitResponse, error)
	GenerateExercises(ctx context.Context, exerciseType string, count int) ([]string, error)
	Chat(ctx context.Context, message string) (domain.ChatReply, error)
	SendContactMessage(ctx context.Context, msg domain.ContactMessage) error
}

// FrameStream is an open bidirectional frame channel to the streaming service.
type FrameStream interface {
	Send(frame []byte) error
	Frames() <-chan []byte
	Wait() error
	Close() error
}

// StreamingService is the remote pose analysis backend.
type StreamingService interface {
	Connect(ctx context.Context, userID string) (FrameStream, error)
	StartSession(ctx context.Context, userID string) (string, error)
	StopSession(ctx context.Context, userID string) (string, error)
	ProgressReport(ctx context.Context, userID string) (domain.ProgressReport, error)
}

// ProgressStore persists scored practice results per user.
type ProgressStore interface {
	SaveExerciseResult(ctx context.Context, userID string, record domain.ExerciseRecord) error
	History(ctx context.Context, userID string, limit int) ([]domain.ExerciseRecord, error)
	WeakAreas(ctx context.Context, userID string) ([]domain.WeakArea, error)
	Progress(ctx context.Context, userID string, days int) ([]domain.DailyProgress, error)
	Stats(ctx context.Context, userID string) (domain.UserStats, error)
}

// SpeechSynthesizer reads feedback aloud.
type SpeechSynthesizer interface {
	Speak(ctx context.Context, text string) error
	Cancel()
}

// OutcomePublisher forwards finished session outcomes downstream.
type OutcomePublisher interface {
	PublishExerciseOutcome(ctx context.Context, outcome domain.ExerciseOutcome) error
	PublishPhysioOutcome(ctx context.Context, outcome domain.PhysioOutcome) error
}

// EventSink emits controller state/events to the UI.
type EventSink interface {
	RecordingStateChanged(state domain.RecordingState, reason domain.StateReason)
	RecordingTick(elapsedSeconds int)
	StreamingStateChanged(state domain.StreamingState, reason domain.StateReason)
	FrameRendered(frame []byte)
	SessionError(code domain.ErrorCode, detail string)
}
