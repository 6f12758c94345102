package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"speakwell/internal/ports"
)

// streamSession owns the camera and socket of one physio streaming session.
type streamSession struct {
	id        string
	userID    string
	ctx       context.Context
	cancel    context.CancelFunc
	camera    ports.CameraSession
	stream    ports.FrameStream
	startedAt time.Time

	// sendMu is held for the duration of every send; halt takes it to clear
	// streaming, so no send can begin once teardown has started.
	sendMu    sync.Mutex
	streaming bool
	// inFlight is the single permit of the frame loop.
	inFlight atomic.Bool
	sentAt   time.Time

	framesSent     atomic.Int64
	framesReceived atomic.Int64

	halted      chan struct{}
	haltOnce    sync.Once
	loopDone    chan struct{}
	releaseOnce sync.Once
}

func newStreamSession(ctx context.Context, cancel context.CancelFunc, id, userID string, camera ports.CameraSession, stream ports.FrameStream) *streamSession {
	return &streamSession{
		id:        id,
		userID:    userID,
		ctx:       ctx,
		cancel:    cancel,
		camera:    camera,
		stream:    stream,
		startedAt: time.Now(),
		streaming: true,
		halted:    make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
}

// halt clears the streaming flag; no frame is sent after it returns.
func (s *streamSession) halt() {
	s.sendMu.Lock()
	s.streaming = false
	s.sendMu.Unlock()
	s.haltOnce.Do(func() {
		close(s.halted)
	})
}

func (s *streamSession) isHalted() bool {
	select {
	case <-s.halted:
		return true
	default:
		return false
	}
}

// release closes the socket and stops the camera exactly once.
func (s *streamSession) release() {
	s.releaseOnce.Do(func() {
		s.cancel()
		_ = s.stream.Close()
		_ = s.camera.Stop()
	})
}
