package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"speakwell/internal/ports"
)

// attempt is one microphone acquisition from Start until the result is handled.
type attempt struct {
	id        string
	prompt    string
	ctx       context.Context
	cancel    context.CancelFunc
	audio     ports.AudioSession
	chunks    *chunkBuffer
	startedAt time.Time
	elapsed   atomic.Int64

	pumpDone chan struct{}
	tickStop chan struct{}
	tickDone chan struct{}

	tickOnce    sync.Once
	releaseOnce sync.Once
	releaseErr  error
}

func newAttempt(ctx context.Context, cancel context.CancelFunc, id, prompt string, audio ports.AudioSession) *attempt {
	return &attempt{
		id:        id,
		prompt:    prompt,
		ctx:       ctx,
		cancel:    cancel,
		audio:     audio,
		chunks:    newChunkBuffer(),
		startedAt: time.Now(),
		pumpDone:  make(chan struct{}),
		tickStop:  make(chan struct{}),
		tickDone:  make(chan struct{}),
	}
}

// release stops the microphone exactly once.
func (a *attempt) release() error {
	a.releaseOnce.Do(func() {
		a.releaseErr = a.audio.Stop()
	})
	return a.releaseErr
}

func (a *attempt) stopTicker() {
	a.tickOnce.Do(func() {
		close(a.tickStop)
	})
	<-a.tickDone
}

func runElapsedTicker(a *attempt, interval time.Duration, events ports.EventSink) {
	defer close(a.tickDone)

	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.tickStop:
			return
		case <-ticker.C:
			events.RecordingTick(int(a.elapsed.Add(1)))
		}
	}
}
