package domain

import (
	"errors"
	"time"
)

// RecordingState models the speech practice attempt lifecycle.
type RecordingState string

const (
	RecordingStateIdle       RecordingState = "idle"
	RecordingStateRecording  RecordingState = "recording"
	RecordingStateProcessing RecordingState = "processing"
	RecordingStateResulted   RecordingState = "resulted"
	RecordingStateError      RecordingState = "error"
)

// StreamingState models the physio video streaming lifecycle.
type StreamingState string

const (
	StreamingStateDisconnected StreamingState = "disconnected"
	StreamingStateConnecting   StreamingState = "connecting"
	StreamingStateStreaming    StreamingState = "streaming"
	StreamingStateStopped      StreamingState = "stopped"
	StreamingStateErrored      StreamingState = "errored"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonReady             StateReason = "ready"
	ReasonRecordingStarted  StateReason = "recording_started"
	ReasonMicrophoneDenied  StateReason = "microphone_denied"
	ReasonUploading         StateReason = "uploading"
	ReasonEmptyRecording    StateReason = "empty_recording"
	ReasonUploadFailed      StateReason = "upload_failed"
	ReasonRemoteError       StateReason = "remote_error"
	ReasonResultReady       StateReason = "result_ready"
	ReasonAttemptRetried    StateReason = "attempt_retried"
	ReasonAttemptRepeated   StateReason = "attempt_repeated"
	ReasonExerciseAdvanced  StateReason = "exercise_advanced"
	ReasonExercisesFinished StateReason = "exercises_finished"
	ReasonRecordingAborted  StateReason = "recording_aborted"

	ReasonConnecting     StateReason = "connecting"
	ReasonCameraDenied   StateReason = "camera_denied"
	ReasonSocketFailed   StateReason = "socket_failed"
	ReasonStreamOpened   StateReason = "stream_opened"
	ReasonStreamStalled  StateReason = "stream_stalled"
	ReasonStreamClosed   StateReason = "stream_closed"
	ReasonSessionStopped StateReason = "session_stopped"
	ReasonStreamReleased StateReason = "stream_released"
)

// ErrorCode identifies errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup          ErrorCode = "startup"
	ErrorCodePermissionDenied ErrorCode = "permission_denied"
	ErrorCodeTransport        ErrorCode = "transport"
	ErrorCodeRemote           ErrorCode = "remote"
	ErrorCodePersistence      ErrorCode = "persistence"
	ErrorCodeEmptyRecording   ErrorCode = "empty_recording"
	ErrorCodeAudioStop        ErrorCode = "audio_stop"
	ErrorCodeAudioCapture     ErrorCode = "audio_capture"
	ErrorCodeSpeech           ErrorCode = "speech"
)

var (
	// ErrNoProgress is returned when the streaming service has no sessions for a user.
	ErrNoProgress = errors.New("no physio sessions found")
	// ErrPermissionDenied marks a refused microphone or camera.
	ErrPermissionDenied = errors.New("permission denied")
)

// FallbackPrompt is used when no exercises could be fetched.
const FallbackPrompt = "Please say anything to test your speech clarity"

// SubmitStatus is the outcome flag returned by the inference service.
type SubmitStatus string

const (
	SubmitStatusSuccess SubmitStatus = "success"
	SubmitStatusError   SubmitStatus = "error"
)

// SessionResult is the scored evaluation of one recording.
type SessionResult struct {
	Transcript   string   `json:"transcript"`
	Score        float64  `json:"score"`
	Accuracy     float64  `json:"accuracy"`
	FeedbackText string   `json:"feedbackText"`
	Issues       []string `json:"issues,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
}

// SubmitResponse is the decoded reply of an audio submission.
type SubmitResponse struct {
	Status  SubmitStatus  `json:"status"`
	Message string        `json:"message,omitempty"`
	Result  SessionResult `json:"result"`
}

// ExerciseRecord is a persisted practice result.
type ExerciseRecord struct {
	ID           string    `json:"id,omitempty"`
	ExerciseType string    `json:"exerciseType"`
	ExerciseText string    `json:"exerciseText"`
	Transcript   string    `json:"transcription"`
	Score        float64   `json:"score"`
	Accuracy     float64   `json:"accuracy"`
	Feedback     string    `json:"feedback"`
	Issues       []string  `json:"issues,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// UserStats is the running summary kept next to a user's results.
type UserStats struct {
	TotalSessions int       `json:"totalSessions"`
	AverageScore  float64   `json:"averageScore"`
	SpeechIssues  []string  `json:"speechIssues,omitempty"`
	LastPractice  time.Time `json:"lastPractice"`
}

// WeakArea is an exercise type whose average score is below the threshold.
type WeakArea struct {
	Type         string  `json:"type"`
	AverageScore float64 `json:"averageScore"`
}

// DailyProgress is the per-day average of practice scores.
type DailyProgress struct {
	Date         string  `json:"date"`
	AverageScore float64 `json:"averageScore"`
	Sessions     int     `json:"sessions"`
}

// PhysioSession is one entry of the streaming service session history.
type PhysioSession struct {
	Date            string  `json:"date"`
	Reps            int     `json:"reps"`
	DurationSeconds float64 `json:"duration"`
}

// ProgressReport aggregates physio sessions for one user.
type ProgressReport struct {
	TotalReps            int             `json:"totalReps"`
	TotalDurationSeconds float64         `json:"totalDuration"`
	SessionHistory       []PhysioSession `json:"sessionHistory"`
	LastUpdated          string          `json:"lastUpdated,omitempty"`
}

// ChatReply is an assistant answer.
type ChatReply struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ContactMessage is a support request.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
	UserID  string `json:"userId,omitempty"`
}

// RecordingStatus summarizes the speech practice session.
type RecordingStatus struct {
	State          RecordingState `json:"state"`
	Prompt         string         `json:"prompt"`
	Index          int            `json:"index"`
	Total          int            `json:"total"`
	Finished       bool           `json:"finished"`
	ElapsedSeconds int            `json:"elapsedSeconds"`
	Result         *SessionResult `json:"result,omitempty"`
	Message        string         `json:"message,omitempty"`
}

// StreamingStatus summarizes the physio streaming session.
type StreamingStatus struct {
	State          StreamingState `json:"state"`
	FramesSent     int            `json:"framesSent"`
	FramesReceived int            `json:"framesReceived"`
	Message        string         `json:"message,omitempty"`
}

// ExerciseOutcome is published once a recording has been scored.
type ExerciseOutcome struct {
	AttemptID    string    `json:"attemptId"`
	UserID       string    `json:"userId,omitempty"`
	ExerciseType string    `json:"exerciseType"`
	ExerciseText string    `json:"exerciseText"`
	Score        float64   `json:"score"`
	Accuracy     float64   `json:"accuracy"`
	Issues       []string  `json:"issues,omitempty"`
	CompletedAt  time.Time `json:"completedAt"`
}

// PhysioOutcome is published once a streaming session has ended.
type PhysioOutcome struct {
	SessionID       string    `json:"sessionId"`
	UserID          string    `json:"userId"`
	FramesSent      int       `json:"framesSent"`
	FramesReceived  int       `json:"framesReceived"`
	DurationSeconds float64   `json:"durationSeconds"`
	FinalState      string    `json:"finalState"`
	ServerMessage   string    `json:"serverMessage,omitempty"`
	EndedAt         time.Time `json:"endedAt"`
}
