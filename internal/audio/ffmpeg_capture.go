// Package audio captures the microphone and the webcam through ffmpeg.
package audio

import (
	"context"
	"runtime"
	"strconv"

	"speakwell/internal/ports"
)

// FFMPEGCapture streams microphone PCM audio using ffmpeg.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

// Start opens the microphone. A refused or missing device surfaces as an early ffmpeg exit.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	proc, err := startProcess(ctx, c.command, microphoneArgs(cfg))
	if err != nil {
		return nil, err
	}
	return &micSession{proc: proc}, nil
}

func microphoneArgs(cfg ports.AudioConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	format, device := defaultMicrophone()
	if cfg.InputFormat == "" {
		cfg.InputFormat = format
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = device
	}

	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

func defaultMicrophone() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

type micSession struct {
	proc *ffmpegProcess
}

func (s *micSession) Read(p []byte) (int, error) {
	return s.proc.stdout.Read(p)
}

func (s *micSession) Close() error {
	return s.Stop()
}

func (s *micSession) Stop() error {
	return s.proc.stop()
}
