package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"speakwell/internal/domain"
)

var (
	errStreamHalted = errors.New("stream halted")
	errFrameStalled = errors.New("frame stalled")
)

// runFrameLoop sends one frame on open and then exactly one frame per reply.
// It never sends on a timer; a camera frame or a reply that does not arrive
// within the frame timeout ends the session.
func (c *StreamingController) runFrameLoop(s *streamSession) {
	defer close(s.loopDone)

	if err := c.sendNextFrame(s); err != nil {
		c.failSend(s, err)
		return
	}

	timer := time.NewTimer(c.cfg.FrameTimeout)
	defer timer.Stop()
	frames := s.stream.Frames()

	for {
		select {
		case <-s.halted:
			return
		case frame, ok := <-frames:
			if !ok {
				err := s.stream.Wait()
				if err == nil {
					err = errors.New("stream closed by server")
				}
				c.failStream(s, domain.ReasonStreamClosed, err)
				return
			}
			// replies racing teardown are dropped
			if s.isHalted() {
				return
			}
			c.completeFrame(s)
			c.events.FrameRendered(frame)

			if err := c.sendNextFrame(s); err != nil {
				c.failSend(s, err)
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.cfg.FrameTimeout)
		case <-timer.C:
			c.failStream(s, domain.ReasonStreamStalled, fmt.Errorf("no frame reply within %s", c.cfg.FrameTimeout))
			return
		}
	}
}

func (c *StreamingController) sendNextFrame(s *streamSession) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil
	}

	captureCtx, cancel := context.WithTimeout(s.ctx, c.cfg.FrameTimeout)
	frame, err := s.camera.Capture(captureCtx)
	cancel()
	if err != nil {
		s.inFlight.Store(false)
		if s.isHalted() {
			return errStreamHalted
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: no camera frame within %s", errFrameStalled, c.cfg.FrameTimeout)
		}
		return fmt.Errorf("capture frame: %w", err)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.streaming {
		s.inFlight.Store(false)
		return errStreamHalted
	}
	if err := s.stream.Send(frame); err != nil {
		s.inFlight.Store(false)
		return fmt.Errorf("send frame: %w", err)
	}
	s.sentAt = time.Now()
	s.framesSent.Add(1)
	c.metrics.RecordFrameSent()
	return nil
}

func (c *StreamingController) failSend(s *streamSession, err error) {
	switch {
	case errors.Is(err, errStreamHalted):
	case errors.Is(err, errFrameStalled):
		c.failStream(s, domain.ReasonStreamStalled, err)
	default:
		c.failStream(s, domain.ReasonStreamClosed, err)
	}
}

func (c *StreamingController) completeFrame(s *streamSession) {
	s.framesReceived.Add(1)
	s.sendMu.Lock()
	sentAt := s.sentAt
	s.sendMu.Unlock()
	c.metrics.RecordFrameReceived(time.Since(sentAt).Seconds())
	s.inFlight.Store(false)
}
