package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"speakwell/internal/domain"
)

type chatter interface {
	Chat(ctx context.Context, message string) (domain.ChatReply, error)
}

func runChat(ctx context.Context, assistant chatter, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return fmt.Errorf("could not open terminal: %w", err)
	}
	defer func() {
		_ = rl.Close()
	}()

	fmt.Fprintln(out, "Ask about your speech practice. Empty line or Ctrl-D to leave.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			return nil
		}
		reply, err := assistant.Chat(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printChatReply(out, reply)
	}
}

func printChatReply(out io.Writer, reply domain.ChatReply) {
	fmt.Fprintf(out, "coach> %s\n", reply.Message)
	for _, s := range reply.Suggestions {
		fmt.Fprintf(out, "  - %s\n", s)
	}
}

// promptIfEmpty asks on the terminal for a value that was not given as a flag.
func promptIfEmpty(value *string, name string) error {
	if strings.TrimSpace(*value) != "" {
		return nil
	}
	rl, err := readline.NewEx(&readline.Config{
		Stdin:  os.Stdin,
		Stdout: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("could not read from terminal for prompt %q: %w", name, err)
	}
	defer func() {
		_ = rl.Close()
	}()

	rl.SetPrompt(fmt.Sprintf("Enter %s: ", name))
	for strings.TrimSpace(*value) == "" {
		line, err := rl.Readline()
		if err != nil {
			return fmt.Errorf("could not read from terminal for prompt %q: %w", name, err)
		}
		*value = strings.TrimSpace(line)
	}
	return nil
}
