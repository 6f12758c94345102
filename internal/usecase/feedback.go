package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speakwell/internal/domain"
	"speakwell/internal/observability/metrics"
	"speakwell/internal/ports"
)

// resultDispatcher runs the detached work that follows a scored attempt:
// persisting the result, publishing the outcome and speaking the feedback.
// None of it can change the attempt state.
type resultDispatcher struct {
	store     ports.ProgressStore
	publisher ports.OutcomePublisher
	speech    ports.SpeechSynthesizer
	metrics   *metrics.Metrics
	userID    string
	mute      bool
	timeout   time.Duration

	mu           sync.Mutex
	cancelSpeech context.CancelFunc
	wg           sync.WaitGroup
}

func newResultDispatcher(
	store ports.ProgressStore,
	publisher ports.OutcomePublisher,
	speech ports.SpeechSynthesizer,
	m *metrics.Metrics,
	userID string,
	mute bool,
	timeout time.Duration,
) *resultDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &resultDispatcher{
		store:     store,
		publisher: publisher,
		speech:    speech,
		metrics:   m,
		userID:    strings.TrimSpace(userID),
		mute:      mute,
		timeout:   timeout,
	}
}

func (d *resultDispatcher) Dispatch(ctx context.Context, log zerolog.Logger, a *attempt, exerciseType string, result domain.SessionResult) {
	detached := context.WithoutCancel(ctx)
	now := time.Now().UTC()

	if d.store != nil && d.userID != "" {
		record := domain.ExerciseRecord{
			ExerciseType: exerciseType,
			ExerciseText: a.prompt,
			Transcript:   result.Transcript,
			Score:        result.Score,
			Accuracy:     result.Accuracy * 100,
			Feedback:     result.FeedbackText,
			Issues:       append([]string(nil), result.Issues...),
			Timestamp:    now,
		}
		d.goDetached(detached, func(ctx context.Context) {
			if err := d.store.SaveExerciseResult(ctx, d.userID, record); err != nil {
				log.Warn().Err(err).Str("code", string(domain.ErrorCodePersistence)).Msg("Failed to save exercise result")
				d.metrics.RecordPersistenceFailure()
			}
		})
	}

	if d.publisher != nil {
		outcome := domain.ExerciseOutcome{
			AttemptID:    a.id,
			UserID:       d.userID,
			ExerciseType: exerciseType,
			ExerciseText: a.prompt,
			Score:        result.Score,
			Accuracy:     result.Accuracy,
			Issues:       append([]string(nil), result.Issues...),
			CompletedAt:  now,
		}
		d.goDetached(detached, func(ctx context.Context) {
			if err := d.publisher.PublishExerciseOutcome(ctx, outcome); err != nil {
				log.Warn().Err(err).Msg("Failed to publish exercise outcome")
			}
		})
	}

	text := strings.TrimSpace(result.FeedbackText)
	if d.mute || d.speech == nil || text == "" {
		return
	}

	speechCtx, cancel := context.WithCancel(detached)
	d.mu.Lock()
	previous := d.cancelSpeech
	d.cancelSpeech = cancel
	d.mu.Unlock()
	if previous != nil {
		previous()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		if err := d.speech.Speak(speechCtx, text); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("code", string(domain.ErrorCodeSpeech)).Msg("Failed to speak feedback")
			d.metrics.RecordSpeechFailure()
		}
	}()
}

// CancelSpeech stops any feedback that is still being spoken.
func (d *resultDispatcher) CancelSpeech() {
	d.mu.Lock()
	cancel := d.cancelSpeech
	d.cancelSpeech = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if d.speech != nil {
		d.speech.Cancel()
	}
}

// Wait blocks until every detached task has returned.
func (d *resultDispatcher) Wait() {
	d.wg.Wait()
}

func (d *resultDispatcher) goDetached(ctx context.Context, task func(context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		taskCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		task(taskCtx)
	}()
}
