package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"speakwell/internal/domain"
)

func TestReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.StateReason]string{
		domain.ReasonReady:             "Ready. Press enter to record",
		domain.ReasonRecordingStarted:  "Recording started. Press enter to stop",
		domain.ReasonUploading:         "Recording stopped. Analyzing...",
		domain.ReasonResultReady:       "Result ready",
		domain.ReasonExercisesFinished: "All exercises completed",
		domain.ReasonStreamOpened:      "Streaming. Press Ctrl-C to stop",
		domain.ReasonStreamStalled:     "Stream stalled; no reply from the physio service",
		domain.ReasonSessionStopped:    "Session stopped",
	}

	for reason, want := range cases {
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := reasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := reasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:          "Startup failed",
		domain.ErrorCodePermissionDenied: "Device permission denied",
		domain.ErrorCodeTransport:        "Could not reach the service",
		domain.ErrorCodeRemote:           "Service reported an error",
		domain.ErrorCodePersistence:      "Could not save the result",
		domain.ErrorCodeAudioCapture:     "Audio capture issue",
	}
	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("custom", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("custom", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestConsoleSinkPrintsStateAndErrors(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	sink := newConsoleSink(&out, "")

	sink.RecordingStateChanged(domain.RecordingStateRecording, domain.ReasonRecordingStarted)
	sink.StreamingStateChanged(domain.StreamingStateErrored, "odd_reason")
	sink.SessionError(domain.ErrorCodeTransport, "dial tcp: refused")
	sink.SessionError("custom", "only detail")

	got := out.String()
	for _, want := range []string{
		"[recording] Recording started. Press enter to stop\n",
		"[errored] odd_reason\n",
		"error: Could not reach the service (dial tcp: refused)\n",
		"error: only detail\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output:\n%s", want, got)
		}
	}
}

func TestConsoleSinkWritesLatestFrame(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "frame.jpg")
	sink := newConsoleSink(&bytes.Buffer{}, path)

	sink.FrameRendered([]byte("first"))
	sink.FrameRendered([]byte("second"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("expected latest frame, got %q", data)
	}
	if sink.FramesRendered() != 2 {
		t.Fatalf("expected 2 frames, got %d", sink.FramesRendered())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, got %d entries", len(entries))
	}
}

func TestConsoleSinkWithoutFrameFileOnlyCounts(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	sink := newConsoleSink(&out, "")
	sink.FrameRendered([]byte("frame"))

	if sink.FramesRendered() != 1 || out.Len() != 0 {
		t.Fatalf("unexpected sink state: frames=%d out=%q", sink.FramesRendered(), out.String())
	}
}
