package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speakwell/internal/domain"
	"speakwell/internal/observability/logging"
	"speakwell/internal/observability/metrics"
	"speakwell/internal/ports"
)

// RecordingConfig controls speech practice behavior.
type RecordingConfig struct {
	Audio           ports.AudioConfig
	UserID          string
	ChunkSize       int
	UploadTimeout   time.Duration
	TickInterval    time.Duration
	BackgroundLimit time.Duration
	Mute            bool
	Metrics         *metrics.Metrics
}

// RecordingDeps bundles the collaborators of a RecordingController.
// Store, Publisher and Speech are optional.
type RecordingDeps struct {
	Audio     ports.AudioCapture
	Inference ports.InferenceService
	Events    ports.EventSink
	Store     ports.ProgressStore
	Publisher ports.OutcomePublisher
	Speech    ports.SpeechSynthesizer
}

// RecordingController drives one speech practice session: an exercise queue
// and a sequence of record, upload and review attempts.
type RecordingController struct {
	audio     ports.AudioCapture
	inference ports.InferenceService
	events    ports.EventSink
	results   *resultDispatcher
	metrics   *metrics.Metrics
	cfg       RecordingConfig
	log       zerolog.Logger

	// opMu serializes user actions so concurrent Starts acquire the microphone once.
	opMu sync.Mutex

	mu      sync.Mutex
	state   domain.RecordingState
	queue   *ExerciseQueue
	loaded  bool
	current *attempt
	result  *domain.SessionResult
	message string
	elapsed int
	closed  bool
}

func NewRecordingController(deps RecordingDeps, cfg RecordingConfig) *RecordingController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &RecordingController{
		audio:     deps.Audio,
		inference: deps.Inference,
		events:    deps.Events,
		results:   newResultDispatcher(deps.Store, deps.Publisher, deps.Speech, m, cfg.UserID, cfg.Mute, cfg.BackgroundLimit),
		metrics:   m,
		cfg:       cfg,
		log:       logging.WithComponent("recording"),
		state:     domain.RecordingStateIdle,
		queue:     NewExerciseQueue("", nil),
	}
}

// LoadExercises fetches the exercise queue once. A failed or empty fetch
// leaves the single fallback prompt in place.
func (c *RecordingController) LoadExercises(ctx context.Context, exerciseType string, count int) (domain.RecordingStatus, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.RecordingStatus{}, ErrControllerClosed
	}
	if c.loaded {
		c.mu.Unlock()
		return domain.RecordingStatus{}, ErrExercisesLoaded
	}
	c.loaded = true
	c.mu.Unlock()

	prompts, err := c.inference.GenerateExercises(ctx, exerciseType, count)
	if err != nil {
		c.log.Warn().Err(err).Str("exerciseType", exerciseType).Msg("Failed to fetch exercises, using fallback prompt")
		prompts = nil
	}
	queue := NewExerciseQueue(exerciseType, prompts)

	c.mu.Lock()
	c.queue = queue
	c.mu.Unlock()

	c.events.RecordingStateChanged(domain.RecordingStateIdle, domain.ReasonReady)
	return c.Status(), nil
}

// Start acquires the microphone and begins recording the current prompt.
// Calling Start while already recording is a no-op.
func (c *RecordingController) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	switch c.state {
	case domain.RecordingStateRecording:
		c.mu.Unlock()
		return nil
	case domain.RecordingStateIdle:
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, state)
	}
	if c.queue.Finished() {
		c.mu.Unlock()
		return ErrSessionFinished
	}
	prompt := c.queue.Current()
	c.mu.Unlock()

	attemptCtx, cancel := context.WithCancel(ctx)
	audioSession, err := c.audio.Start(attemptCtx, c.cfg.Audio)
	if err != nil {
		cancel()
		c.transition(domain.RecordingStateError, domain.ReasonMicrophoneDenied, "Microphone permission denied")
		c.events.SessionError(domain.ErrorCodePermissionDenied, err.Error())
		c.metrics.RecordRecordingResult(string(domain.ErrorCodePermissionDenied))
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}

	active := newAttempt(attemptCtx, cancel, uuid.NewString(), prompt, audioSession)

	c.mu.Lock()
	c.current = active
	c.result = nil
	c.elapsed = 0
	c.mu.Unlock()

	go pumpAudioChunks(active.audio, active.chunks, c.cfg.ChunkSize, c.events, active.pumpDone)
	go runElapsedTicker(active, c.cfg.TickInterval, c.events)

	c.metrics.RecordRecordingStart()
	c.transition(domain.RecordingStateRecording, domain.ReasonRecordingStarted, "")
	return nil
}

// Stop releases the microphone, uploads the recording and returns the scored result.
func (c *RecordingController) Stop(ctx context.Context) (domain.SessionResult, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != domain.RecordingStateRecording || c.current == nil {
		c.mu.Unlock()
		return domain.SessionResult{}, ErrNoActiveRecording
	}
	active := c.current
	exerciseType := c.queue.Type()
	c.mu.Unlock()

	c.transition(domain.RecordingStateProcessing, domain.ReasonUploading, "")
	log := logging.WithAttempt(active.id, c.cfg.UserID)

	if err := active.release(); err != nil {
		log.Warn().Err(err).Msg("Microphone did not stop cleanly")
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop microphone cleanly")
	}
	<-active.pumpDone
	active.stopTicker()

	c.mu.Lock()
	c.elapsed = int(active.elapsed.Load())
	c.mu.Unlock()

	if active.chunks.Blank() {
		c.failAttempt(active, domain.ReasonEmptyRecording, domain.ErrorCodeEmptyRecording, "No audio was captured. Please try again.")
		return domain.SessionResult{}, ErrEmptyRecording
	}

	payload := active.chunks.Bytes()
	uploadCtx, cancel := context.WithTimeout(active.ctx, c.cfg.UploadTimeout)
	started := time.Now()
	response, err := c.inference.SubmitAudio(uploadCtx, payload, active.prompt)
	cancel()
	c.metrics.RecordUpload(len(payload), time.Since(started).Seconds())

	if !c.isLive(active) {
		log.Debug().Msg("Discarding upload result for a released attempt")
		return domain.SessionResult{}, ErrAttemptDiscarded
	}

	if err != nil {
		message := "Failed to submit recording"
		if errors.Is(err, context.DeadlineExceeded) {
			message = "Submitting the recording timed out"
		}
		log.Error().Err(err).Int("bytes", len(payload)).Msg("Audio submission failed")
		c.failAttempt(active, domain.ReasonUploadFailed, domain.ErrorCodeTransport, message)
		return domain.SessionResult{}, fmt.Errorf("submit audio: %w", err)
	}

	if response.Status != domain.SubmitStatusSuccess {
		message := strings.TrimSpace(response.Message)
		if message == "" {
			message = "Speech evaluation failed"
		}
		log.Warn().Str("status", string(response.Status)).Str("message", message).Msg("Speech evaluation returned an error")
		c.failAttempt(active, domain.ReasonRemoteError, domain.ErrorCodeRemote, message)
		return domain.SessionResult{}, fmt.Errorf("speech evaluation: %s", message)
	}

	result := response.Result
	c.mu.Lock()
	c.current = nil
	c.state = domain.RecordingStateResulted
	c.result = &result
	c.message = ""
	c.mu.Unlock()
	active.cancel()

	log.Info().Float64("score", result.Score).Float64("accuracy", result.Accuracy).Msg("Recording scored")
	c.metrics.RecordRecordingResult("")
	c.events.RecordingStateChanged(domain.RecordingStateResulted, domain.ReasonResultReady)
	c.results.Dispatch(ctx, log, active, exerciseType, result)
	return result, nil
}

// Retry discards a failed attempt and returns to Idle on the same prompt.
func (c *RecordingController) Retry() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.requireState(domain.RecordingStateError); err != nil {
		return err
	}
	c.mu.Lock()
	c.message = ""
	c.elapsed = 0
	c.mu.Unlock()
	c.transition(domain.RecordingStateIdle, domain.ReasonAttemptRetried, "")
	return nil
}

// TryAgain drops the shown result and returns to Idle on the same prompt.
func (c *RecordingController) TryAgain() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.requireState(domain.RecordingStateResulted); err != nil {
		return err
	}
	c.results.CancelSpeech()
	c.mu.Lock()
	c.result = nil
	c.elapsed = 0
	c.mu.Unlock()
	c.transition(domain.RecordingStateIdle, domain.ReasonAttemptRepeated, "")
	return nil
}

// Next advances to the following prompt. It reports finished once the last
// prompt has been completed.
func (c *RecordingController) Next() (finished bool, err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.requireState(domain.RecordingStateResulted); err != nil {
		return false, err
	}
	c.results.CancelSpeech()

	c.mu.Lock()
	finished = c.queue.Advance()
	c.result = nil
	c.elapsed = 0
	c.mu.Unlock()

	if finished {
		c.transition(domain.RecordingStateIdle, domain.ReasonExercisesFinished, "All exercises completed")
		return true, nil
	}
	c.transition(domain.RecordingStateIdle, domain.ReasonExerciseAdvanced, "")
	return false, nil
}

// Close tears the session down: the microphone is released, an outstanding
// upload is cancelled and its result discarded, and speech is stopped.
func (c *RecordingController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	active := c.current
	c.mu.Unlock()

	if active != nil {
		active.cancel()
		_ = active.release()
	}
	c.results.CancelSpeech()

	c.opMu.Lock()
	c.mu.Lock()
	late := c.current
	c.current = nil
	wasActive := c.state == domain.RecordingStateRecording || c.state == domain.RecordingStateProcessing
	c.state = domain.RecordingStateIdle
	c.mu.Unlock()
	for _, a := range []*attempt{active, late} {
		if a == nil {
			continue
		}
		a.cancel()
		_ = a.release()
		<-a.pumpDone
		a.stopTicker()
	}
	c.opMu.Unlock()

	c.results.Wait()
	if wasActive {
		c.events.RecordingStateChanged(domain.RecordingStateIdle, domain.ReasonRecordingAborted)
	}
	return nil
}

// Status returns a snapshot of the practice session.
func (c *RecordingController) Status() domain.RecordingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.RecordingStatus{
		State:          c.state,
		Prompt:         c.queue.Current(),
		Index:          c.queue.Index(),
		Total:          c.queue.Len(),
		Finished:       c.queue.Finished(),
		ElapsedSeconds: c.elapsed,
		Message:        c.message,
	}
	if c.current != nil {
		status.ElapsedSeconds = int(c.current.elapsed.Load())
	}
	if c.result != nil {
		result := *c.result
		status.Result = &result
	}
	return status
}

func (c *RecordingController) requireState(want domain.RecordingState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrControllerClosed
	}
	if c.state != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidTransition, want, c.state)
	}
	return nil
}

func (c *RecordingController) isLive(active *attempt) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.current == active
}

func (c *RecordingController) failAttempt(active *attempt, reason domain.StateReason, code domain.ErrorCode, message string) {
	c.mu.Lock()
	if c.current == active {
		c.current = nil
	}
	c.mu.Unlock()
	active.cancel()

	c.metrics.RecordRecordingResult(string(code))
	c.events.SessionError(code, message)
	c.transition(domain.RecordingStateError, reason, message)
}

func (c *RecordingController) transition(state domain.RecordingState, reason domain.StateReason, message string) {
	c.mu.Lock()
	c.state = state
	c.message = message
	c.mu.Unlock()

	c.events.RecordingStateChanged(state, reason)
}
