package usecase

import (
	"errors"
	"fmt"
	"io"
	"os"

	"speakwell/internal/domain"
	"speakwell/internal/ports"
)

func pumpAudioChunks(
	audio ports.AudioSession,
	chunks *chunkBuffer,
	chunkSize int,
	events ports.EventSink,
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			chunks.Append(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				events.SessionError(domain.ErrorCodeAudioCapture, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}
