package usecase

import (
	"context"
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

// StreamingConfig controls physio streaming behavior.
type StreamingConfig struct {
	Camera         ports.CameraConfig
	UserID         string
	FrameTimeout   time.Duration
	ControlTimeout time.Duration
	Metrics        *metrics.Metrics
}

// StreamingDeps bundles the collaborators of a StreamingController.
// Publisher is optional.
type StreamingDeps struct {
	Camera    ports.CameraCapture
	Service   ports.StreamingService
	Events    ports.EventSink
	Publisher ports.OutcomePublisher
}

// StreamingController drives the physio video session: camera, frame socket
// and the server-side session counters.
type StreamingController struct {
	camera    ports.CameraCapture
	service   ports.StreamingService
	events    ports.EventSink
	publisher ports.OutcomePublisher
	metrics   *metrics.Metrics
	cfg       StreamingConfig
	log       zerolog.Logger

	opMu sync.Mutex

	mu      sync.Mutex
	state   domain.StreamingState
	message string
	current *streamSession
	last    *streamSession
	closed  bool

	background sync.WaitGroup
}

func NewStreamingController(deps StreamingDeps, cfg StreamingConfig) *StreamingController {
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = 10 * time.Second
	}
	if cfg.ControlTimeout <= 0 {
		cfg.ControlTimeout = 10 * time.Second
	}
	cfg.UserID = strings.TrimSpace(cfg.UserID)
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &StreamingController{
		camera:    deps.Camera,
		service:   deps.Service,
		events:    deps.Events,
		publisher: deps.Publisher,
		metrics:   m,
		cfg:       cfg,
		log:       logging.WithComponent("streaming"),
		state:     domain.StreamingStateDisconnected,
	}
}

// Start acquires the camera, opens the frame socket and starts the server
// session. Calling Start while connecting or streaming is a no-op.
func (c *StreamingController) Start(ctx context.Context) error {
	if c.cfg.UserID == "" {
		return ErrMissingUserID
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.state == domain.StreamingStateConnecting || c.state == domain.StreamingStateStreaming {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	c.transition(domain.StreamingStateConnecting, domain.ReasonConnecting, "")

	sessionCtx, cancel := context.WithCancel(ctx)
	camera, err := c.camera.Start(sessionCtx, c.cfg.Camera)
	if err != nil {
		cancel()
		c.events.SessionError(domain.ErrorCodePermissionDenied, err.Error())
		c.transition(domain.StreamingStateErrored, domain.ReasonCameraDenied, "Camera permission denied")
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}

	stream, err := c.service.Connect(sessionCtx, c.cfg.UserID)
	if err != nil {
		_ = camera.Stop()
		cancel()
		c.events.SessionError(domain.ErrorCodeTransport, err.Error())
		c.transition(domain.StreamingStateErrored, domain.ReasonSocketFailed, "Could not connect to the exercise service")
		return fmt.Errorf("connect frame stream: %w", err)
	}

	session := newStreamSession(sessionCtx, cancel, uuid.NewString(), c.cfg.UserID, camera, stream)
	log := logging.WithStream(session.id, session.userID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		session.halt()
		session.release()
		return ErrControllerClosed
	}
	c.current = session
	c.last = session
	c.mu.Unlock()

	c.metrics.RecordStreamStart()
	c.transition(domain.StreamingStateStreaming, domain.ReasonStreamOpened, "")
	log.Info().Msg("Physio stream opened")
	go c.runFrameLoop(session)

	controlCtx, controlCancel := context.WithTimeout(ctx, c.cfg.ControlTimeout)
	defer controlCancel()
	if _, err := c.service.StartSession(controlCtx, c.cfg.UserID); err != nil {
		log.Warn().Err(err).Msg("Failed to start server-side physio session")
		c.metrics.RecordControlFailure("start")
		c.events.SessionError(domain.ErrorCodeRemote, fmt.Sprintf("failed to start session: %v", err))
	}
	return nil
}

// Stop asks the server to persist the session counters, then closes the
// socket and releases the camera whatever the server answered.
func (c *StreamingController) Stop(ctx context.Context) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != domain.StreamingStateStreaming || c.current == nil {
		c.mu.Unlock()
		return "", ErrNoActiveStream
	}
	session := c.current
	c.mu.Unlock()
	log := logging.WithStream(session.id, session.userID)

	controlCtx, cancel := context.WithTimeout(ctx, c.cfg.ControlTimeout)
	message, stopErr := c.service.StopSession(controlCtx, session.userID)
	cancel()

	c.mu.Lock()
	owned := c.current == session
	if owned {
		c.current = nil
	}
	c.mu.Unlock()

	session.halt()
	session.release()
	<-session.loopDone

	if stopErr != nil {
		log.Warn().Err(stopErr).Msg("Failed to stop server-side physio session")
		c.metrics.RecordControlFailure("stop")
		c.events.SessionError(domain.ErrorCodeRemote, fmt.Sprintf("failed to stop session: %v", stopErr))
		stopErr = fmt.Errorf("stop session: %w", stopErr)
	}
	if !owned {
		return message, stopErr
	}

	c.metrics.RecordStreamEnd("", time.Since(session.startedAt).Seconds())
	c.transition(domain.StreamingStateStopped, domain.ReasonSessionStopped, message)
	log.Info().
		Int64("framesSent", session.framesSent.Load()).
		Int64("framesReceived", session.framesReceived.Load()).
		Msg("Physio stream stopped")
	c.publishOutcome(session, domain.StreamingStateStopped, message)
	return message, stopErr
}

// Close releases the camera and socket without the server stop call.
func (c *StreamingController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	session := c.current
	c.current = nil
	c.mu.Unlock()

	if session != nil {
		session.halt()
		session.release()
		<-session.loopDone
		c.metrics.RecordStreamEnd("", time.Since(session.startedAt).Seconds())
		c.transition(domain.StreamingStateDisconnected, domain.ReasonStreamReleased, "")
	}

	c.opMu.Lock()
	c.opMu.Unlock()
	c.background.Wait()
	return nil
}

// ProgressReport returns the server-side physio counters for the user.
func (c *StreamingController) ProgressReport(ctx context.Context) (domain.ProgressReport, error) {
	if c.cfg.UserID == "" {
		return domain.ProgressReport{}, ErrMissingUserID
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ControlTimeout)
	defer cancel()
	return c.service.ProgressReport(ctx, c.cfg.UserID)
}

// Status returns a snapshot of the streaming session.
func (c *StreamingController) Status() domain.StreamingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.StreamingStatus{State: c.state, Message: c.message}
	if c.last != nil {
		status.FramesSent = int(c.last.framesSent.Load())
		status.FramesReceived = int(c.last.framesReceived.Load())
	}
	return status
}

// failStream tears a session down after a socket, capture or stall failure.
// It is a no-op when the session has already been replaced or stopped.
func (c *StreamingController) failStream(session *streamSession, reason domain.StateReason, err error) {
	c.mu.Lock()
	if c.current != session {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.mu.Unlock()

	session.halt()
	session.release()

	log := logging.WithStream(session.id, session.userID)
	log.Error().Err(err).Str("reason", string(reason)).Msg("Physio stream failed")
	c.metrics.RecordStreamEnd(string(reason), time.Since(session.startedAt).Seconds())
	c.publishOutcome(session, domain.StreamingStateErrored, "")
	c.events.SessionError(domain.ErrorCodeTransport, err.Error())
	c.transition(domain.StreamingStateErrored, reason, err.Error())
}

func (c *StreamingController) publishOutcome(session *streamSession, state domain.StreamingState, serverMessage string) {
	if c.publisher == nil {
		return
	}
	outcome := domain.PhysioOutcome{
		SessionID:       session.id,
		UserID:          session.userID,
		FramesSent:      int(session.framesSent.Load()),
		FramesReceived:  int(session.framesReceived.Load()),
		DurationSeconds: time.Since(session.startedAt).Seconds(),
		FinalState:      string(state),
		ServerMessage:   serverMessage,
		EndedAt:         time.Now().UTC(),
	}

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ControlTimeout)
		defer cancel()
		if err := c.publisher.PublishPhysioOutcome(ctx, outcome); err != nil {
			c.log.Warn().Err(err).Str("sessionId", outcome.SessionID).Msg("Failed to publish physio outcome")
		}
	}()
}

func (c *StreamingController) transition(state domain.StreamingState, reason domain.StateReason, message string) {
	c.mu.Lock()
	c.state = state
	c.message = message
	c.mu.Unlock()

	c.events.StreamingStateChanged(state, reason)
}
