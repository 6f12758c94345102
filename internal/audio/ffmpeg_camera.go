package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"speakwell/internal/ports"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// ErrCameraStopped is returned by Capture once the camera process has ended.
var ErrCameraStopped = errors.New("camera stopped")

// FFMPEGCamera grabs webcam frames as an MJPEG stream using ffmpeg.
type FFMPEGCamera struct {
	command string
}

func NewFFMPEGCamera(command string) *FFMPEGCamera {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCamera{command: command}
}

// Start acquires the camera and begins decoding frames in the background.
func (c *FFMPEGCamera) Start(ctx context.Context, cfg ports.CameraConfig) (ports.CameraSession, error) {
	proc, err := startProcess(ctx, c.command, cameraArgs(cfg))
	if err != nil {
		return nil, err
	}

	s := &cameraSession{
		proc:  proc,
		first: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func cameraArgs(cfg ports.CameraConfig) []string {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 640, 480
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 15
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 60
	}
	format, device := defaultCamera()
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
		"-framerate", strconv.Itoa(cfg.FrameRate),
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-i", cfg.InputDevice,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", strconv.Itoa(jpegQScale(cfg.Quality)),
		"-",
	}
}

// jpegQScale maps a 1..100 quality percentage onto ffmpeg's 2..31 qscale, where lower is better.
func jpegQScale(quality int) int {
	return 2 + (100-quality)*29/100
}

func defaultCamera() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", "0"
	case "windows":
		return "dshow", "video=default"
	default:
		return "v4l2", "/dev/video0"
	}
}

type cameraSession struct {
	proc *ffmpegProcess

	mu        sync.Mutex
	latest    []byte
	first     chan struct{}
	firstOnce sync.Once
	done      chan struct{}
	readErr   error
}

// Capture returns the most recent frame, waiting for the first one if needed.
func (s *cameraSession) Capture(ctx context.Context) ([]byte, error) {
	select {
	case <-s.first:
	case <-s.done:
		select {
		case <-s.first:
		default:
			return nil, s.endErr()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case <-s.done:
		return nil, s.endErr()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.latest...), nil
}

func (s *cameraSession) Stop() error {
	err := s.proc.stop()
	<-s.done
	return err
}

func (s *cameraSession) endErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return fmt.Errorf("%w: %v", ErrCameraStopped, s.readErr)
	}
	return ErrCameraStopped
}

func (s *cameraSession) readLoop() {
	defer close(s.done)

	buf := make([]byte, 0, 256*1024)
	chunk := make([]byte, 64*1024)
	for {
		n, err := s.proc.stdout.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			var frames [][]byte
			frames, buf = splitJPEGFrames(buf)
			if len(frames) > 0 {
				s.publish(frames[len(frames)-1])
			}
		}
		if err != nil {
			s.mu.Lock()
			if !isClosedRead(err) {
				s.readErr = err
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *cameraSession) publish(frame []byte) {
	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()
	s.firstOnce.Do(func() { close(s.first) })
}

// splitJPEGFrames extracts complete SOI..EOI frames and returns the unconsumed tail.
func splitJPEGFrames(buf []byte) ([][]byte, []byte) {
	var frames [][]byte
	for {
		start := bytes.Index(buf, jpegSOI)
		if start < 0 {
			// keep a trailing 0xFF that may begin the next marker
			if n := len(buf); n > 0 && buf[n-1] == 0xFF {
				return frames, append(buf[:0], 0xFF)
			}
			return frames, buf[:0]
		}
		end := bytes.Index(buf[start+len(jpegSOI):], jpegEOI)
		if end < 0 {
			rest := append(buf[:0], buf[start:]...)
			return frames, rest
		}
		stop := start + len(jpegSOI) + end + len(jpegEOI)
		frames = append(frames, append([]byte(nil), buf[start:stop]...))
		buf = buf[stop:]
	}
}
