package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"speakwell/internal/domain"
	"speakwell/internal/usecase"
)

// practiceSession is the part of the recording controller the prompt loop drives.
type practiceSession interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (domain.SessionResult, error)
	Retry() error
	TryAgain() error
	Next() (finished bool, err error)
	Status() domain.RecordingStatus
}

const practiceHelp = "enter: start/stop recording  r: retry  t: try again  n: next  s: status  q: quit"

func runPractice(ctx context.Context, session practiceSession, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "q",
	})
	if err != nil {
		return fmt.Errorf("could not open terminal: %w", err)
	}
	defer func() {
		_ = rl.Close()
	}()

	fmt.Fprintln(out, practiceHelp)
	printPrompt(out, session.Status())

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		quit, err := handlePracticeInput(ctx, session, line, out)
		if err != nil {
			fmt.Fprintf(out, "%v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// handlePracticeInput runs one prompt command. Errors are meant for display;
// the loop keeps going.
func handlePracticeInput(ctx context.Context, session practiceSession, line string, out io.Writer) (quit bool, err error) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return false, toggleRecording(ctx, session, out)
	case "r", "retry":
		if err := session.Retry(); err != nil {
			return false, err
		}
		printPrompt(out, session.Status())
	case "t", "try", "again":
		if err := session.TryAgain(); err != nil {
			return false, err
		}
		printPrompt(out, session.Status())
	case "n", "next":
		finished, err := session.Next()
		if err != nil {
			return false, err
		}
		if finished {
			fmt.Fprintln(out, "All exercises completed. Well done!")
			return true, nil
		}
		printPrompt(out, session.Status())
	case "s", "status":
		printStatus(out, session.Status())
	case "q", "quit", "exit":
		return true, nil
	case "h", "help", "?":
		fmt.Fprintln(out, practiceHelp)
	default:
		return false, fmt.Errorf("unknown command %q (%s)", line, practiceHelp)
	}
	return false, nil
}

func toggleRecording(ctx context.Context, session practiceSession, out io.Writer) error {
	status := session.Status()
	switch status.State {
	case domain.RecordingStateRecording:
		result, err := session.Stop(ctx)
		fmt.Fprintln(out)
		if err != nil {
			if errors.Is(err, usecase.ErrAttemptDiscarded) {
				return nil
			}
			return fmt.Errorf("%w (r to retry)", err)
		}
		printResult(out, result)
		return nil
	case domain.RecordingStateIdle:
		if status.Finished {
			return usecase.ErrSessionFinished
		}
		return session.Start(ctx)
	case domain.RecordingStateResulted:
		return errors.New("press t to try again or n for the next exercise")
	case domain.RecordingStateError:
		return errors.New("press r to retry")
	default:
		return fmt.Errorf("busy (%s)", status.State)
	}
}

func printPrompt(out io.Writer, status domain.RecordingStatus) {
	if status.Total > 0 {
		fmt.Fprintf(out, "Exercise %d/%d: %s\n", status.Index+1, status.Total, status.Prompt)
		return
	}
	fmt.Fprintf(out, "Exercise: %s\n", status.Prompt)
}

func printStatus(out io.Writer, status domain.RecordingStatus) {
	fmt.Fprintf(out, "state: %s\n", status.State)
	printPrompt(out, status)
	if status.State == domain.RecordingStateRecording {
		fmt.Fprintf(out, "elapsed: %ds\n", status.ElapsedSeconds)
	}
	if status.Message != "" {
		fmt.Fprintf(out, "message: %s\n", status.Message)
	}
}

func printResult(out io.Writer, result domain.SessionResult) {
	fmt.Fprintf(out, "Score: %.0f  Accuracy: %.0f%%\n", result.Score, result.Accuracy*100)
	if result.Transcript != "" {
		fmt.Fprintf(out, "You said: %s\n", result.Transcript)
	}
	if len(result.Issues) > 0 {
		fmt.Fprintf(out, "Issues: %s\n", strings.Join(result.Issues, ", "))
	}
	if result.FeedbackText != "" {
		fmt.Fprintf(out, "Feedback: %s\n", result.FeedbackText)
	}
	for _, s := range result.Suggestions {
		fmt.Fprintf(out, "  - %s\n", s)
	}
	fmt.Fprintln(out, "t: try again  n: next exercise")
}
