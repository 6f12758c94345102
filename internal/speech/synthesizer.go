// Package speech reads practice feedback aloud through a local text-to-speech command.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speakwell/internal/observability/logging"
	"speakwell/internal/rules"
)

const waitDelay = 500 * time.Millisecond

// Config controls the synthesizer command.
type Config struct {
	// Command is the TTS binary. The text is passed as the last argument.
	Command string
	Args    []string
	Voice   string
	// WordsPerMinute is forwarded as -s when greater than zero.
	WordsPerMinute int
}

// CommandSynthesizer implements ports.SpeechSynthesizer by running one process per utterance.
// Only one utterance plays at a time; a new Speak call interrupts the previous one.
type CommandSynthesizer struct {
	cfg    Config
	engine *rules.Engine
	log    zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	current context.CancelFunc
}

func NewCommandSynthesizer(cfg Config, engine *rules.Engine) *CommandSynthesizer {
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = "espeak"
	}
	return &CommandSynthesizer{
		cfg:    cfg,
		engine: engine,
		log:    logging.WithComponent("speech"),
	}
}

// Speak blocks until the utterance finishes. Cancellation returns context.Canceled.
func (s *CommandSynthesizer) Speak(ctx context.Context, text string) error {
	spoken := s.engine.Apply(text)
	if spoken == "" {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.current != nil {
		s.current()
	}
	s.seq++
	seq := s.seq
	s.current = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.seq == seq {
			s.current = nil
		}
		s.mu.Unlock()
	}()

	cmd := exec.CommandContext(runCtx, s.cfg.Command, s.args(spoken)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	s.log.Debug().Int("chars", len(spoken)).Msg("Speaking feedback")
	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return fmt.Errorf("speech interrupted: %w", context.Canceled)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("speech command failed: %w: %s", err, msg)
		}
		return fmt.Errorf("speech command failed: %w", err)
	}
	return nil
}

// Cancel interrupts the utterance that is currently playing, if any.
func (s *CommandSynthesizer) Cancel() {
	s.mu.Lock()
	cancel := s.current
	s.current = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *CommandSynthesizer) args(text string) []string {
	args := append([]string(nil), s.cfg.Args...)
	if s.cfg.Voice != "" {
		args = append(args, "-v", s.cfg.Voice)
	}
	if s.cfg.WordsPerMinute > 0 {
		args = append(args, "-s", strconv.Itoa(s.cfg.WordsPerMinute))
	}
	return append(args, text)
}

// Muted discards every utterance.
type Muted struct{}

func (Muted) Speak(context.Context, string) error { return nil }
func (Muted) Cancel()                             {}
