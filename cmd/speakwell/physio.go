package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"speakwell/internal/domain"
	"speakwell/internal/usecase"
)

// physioSession is the part of the streaming controller the physio command drives.
type physioSession interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (string, error)
	Status() domain.StreamingStatus
}

// frameCounter reports how many annotated frames reached the terminal.
type frameCounter interface {
	FramesRendered() int
}

const physioPollInterval = 250 * time.Millisecond

// runPhysio streams until ctx is cancelled or the stream fails, then stops the
// server session and prints the summary.
func runPhysio(ctx context.Context, session physioSession, rendered frameCounter, stopTimeout time.Duration, out io.Writer) error {
	// the stream outlives ctx so that Stop still reaches the server after Ctrl-C
	if err := session.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	ticker := time.NewTicker(physioPollInterval)
	defer ticker.Stop()

	var streamErr error
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-ticker.C:
			status := session.Status()
			if status.State == domain.StreamingStateErrored {
				streamErr = fmt.Errorf("physio stream failed: %s", firstNonEmpty(status.Message, string(status.State)))
				break wait
			}
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	message, err := session.Stop(stopCtx)
	if err != nil && !errors.Is(err, usecase.ErrNoActiveStream) {
		return errors.Join(streamErr, err)
	}

	status := session.Status()
	fmt.Fprintf(out, "Frames sent: %d  received: %d", status.FramesSent, status.FramesReceived)
	if rendered != nil {
		fmt.Fprintf(out, "  rendered: %d", rendered.FramesRendered())
	}
	fmt.Fprintln(out)
	if message != "" {
		fmt.Fprintln(out, message)
	}
	return streamErr
}
