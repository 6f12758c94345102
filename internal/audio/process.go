package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	startupGrace = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond
)

// ffmpegProcess is a running capture subprocess whose stdout carries media.
type ffmpegProcess struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

// startProcess launches command and fails if it exits during the startup grace period.
func startProcess(ctx context.Context, command string, args []string) (*ffmpegProcess, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimOutput(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(startupGrace):
	}

	return &ffmpegProcess{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

// stop interrupts the process, kills it after stopGrace and closes stdout. Safe to call repeatedly.
func (p *ffmpegProcess) stop() error {
	p.stopOnce.Do(func() {
		if p.process != nil {
			_ = p.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-p.waitErr:
			if ok {
				p.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if p.process != nil {
				_ = p.process.Kill()
			}
			err, ok := <-p.waitErr
			if ok {
				p.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := p.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if p.stopErr == nil {
				p.stopErr = closeErr
			}
		}

		if p.stopErr != nil && p.stderr != nil && p.stderr.Len() > 0 {
			p.stopErr = fmt.Errorf("%w: %s", p.stopErr, trimOutput(p.stderr.String()))
		}
	})

	return p.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}

func isClosedRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed)
}
