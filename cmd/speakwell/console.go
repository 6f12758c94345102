package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"speakwell/internal/domain"
)

// consoleSink prints controller events to the terminal and mirrors the latest
// annotated physio frame to a file.
type consoleSink struct {
	out      io.Writer
	frameOut string

	mu     sync.Mutex
	frames int
}

func newConsoleSink(out io.Writer, frameOut string) *consoleSink {
	return &consoleSink{out: out, frameOut: frameOut}
}

func (s *consoleSink) RecordingStateChanged(state domain.RecordingState, reason domain.StateReason) {
	s.printf("[%s] %s\n", state, firstNonEmpty(reasonMessage(reason), string(reason)))
}

func (s *consoleSink) RecordingTick(elapsedSeconds int) {
	s.printf("\rrecording %ds ", elapsedSeconds)
}

func (s *consoleSink) StreamingStateChanged(state domain.StreamingState, reason domain.StateReason) {
	s.printf("[%s] %s\n", state, firstNonEmpty(reasonMessage(reason), string(reason)))
}

func (s *consoleSink) FrameRendered(frame []byte) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()

	if s.frameOut == "" {
		return
	}
	if err := writeFileAtomic(s.frameOut, frame); err != nil {
		log.Warn().Err(err).Str("path", s.frameOut).Msg("Failed to write annotated frame")
	}
}

func (s *consoleSink) SessionError(code domain.ErrorCode, detail string) {
	msg := errorMessage(code, detail)
	if detail != "" && detail != msg {
		s.printf("error: %s (%s)\n", msg, detail)
		return
	}
	s.printf("error: %s\n", msg)
}

// FramesRendered returns how many annotated frames were shown.
func (s *consoleSink) FramesRendered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *consoleSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.out, format, args...)
}

// writeFileAtomic replaces path so viewers never see a half written frame.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".frame-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func reasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Ready. Press enter to record"
	case domain.ReasonRecordingStarted:
		return "Recording started. Press enter to stop"
	case domain.ReasonMicrophoneDenied:
		return "Microphone unavailable"
	case domain.ReasonUploading:
		return "Recording stopped. Analyzing..."
	case domain.ReasonEmptyRecording:
		return "No audio captured"
	case domain.ReasonUploadFailed:
		return "Upload failed"
	case domain.ReasonRemoteError:
		return "Speech evaluation failed"
	case domain.ReasonResultReady:
		return "Result ready"
	case domain.ReasonAttemptRetried:
		return "Attempt discarded; try the same exercise again"
	case domain.ReasonAttemptRepeated:
		return "Repeating the same exercise"
	case domain.ReasonExerciseAdvanced:
		return "Next exercise"
	case domain.ReasonExercisesFinished:
		return "All exercises completed"
	case domain.ReasonRecordingAborted:
		return "Recording discarded"
	case domain.ReasonConnecting:
		return "Connecting to the physio service..."
	case domain.ReasonCameraDenied:
		return "Camera unavailable"
	case domain.ReasonSocketFailed:
		return "Could not open the frame stream"
	case domain.ReasonStreamOpened:
		return "Streaming. Press Ctrl-C to stop"
	case domain.ReasonStreamStalled:
		return "Stream stalled; no reply from the physio service"
	case domain.ReasonStreamClosed:
		return "Stream closed by the physio service"
	case domain.ReasonSessionStopped:
		return "Session stopped"
	case domain.ReasonStreamReleased:
		return "Camera released"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermissionDenied:
		return "Device permission denied"
	case domain.ErrorCodeTransport:
		return "Could not reach the service"
	case domain.ErrorCodeRemote:
		return "Service reported an error"
	case domain.ErrorCodePersistence:
		return "Could not save the result"
	case domain.ErrorCodeEmptyRecording:
		return "No audio captured"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioCapture:
		return "Audio capture issue"
	case domain.ErrorCodeSpeech:
		return "Could not read feedback aloud"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
