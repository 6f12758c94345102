package physio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	jpegDataURLPrefix = "data:image/jpeg;base64,"
	closeGracePeriod  = time.Second
)

// ErrStreamClosed is returned by Send after Close.
var ErrStreamClosed = errors.New("frame stream is closed")

// FrameStream carries JPEG frames to the service and annotated frames back.
type FrameStream struct {
	conn *websocket.Conn

	frames  chan []byte
	closing chan struct{}
	done    chan struct{}

	writeMu sync.Mutex

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func newFrameStream(conn *websocket.Conn) *FrameStream {
	s := &FrameStream{
		conn:    conn,
		frames:  make(chan []byte, 8),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Send writes one JPEG frame as a data URL text message.
func (s *FrameStream) Send(frame []byte) error {
	if len(frame) == 0 {
		return errors.New("empty frame")
	}
	select {
	case <-s.closing:
		return ErrStreamClosed
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return ErrStreamClosed
	default:
	}

	payload := encodeDataURL(frame)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		err = fmt.Errorf("failed to send frame: %w", err)
		s.setErr(err)
		return err
	}
	return nil
}

// Frames yields decoded reply frames. It is closed when the socket ends.
func (s *FrameStream) Frames() <-chan []byte {
	return s.frames
}

func (s *FrameStream) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *FrameStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *FrameStream) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *FrameStream) setErr(err error) {
	if err == nil {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && websocket.IsCloseError(closeErr,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *FrameStream) readLoop() {
	defer close(s.done)
	defer close(s.frames)

	for {
		kind, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closing:
			default:
				s.setErr(fmt.Errorf("failed to read frame: %w", err))
			}
			return
		}

		frame, err := decodeFrame(kind, payload)
		if err != nil || len(frame) == 0 {
			continue
		}

		select {
		case s.frames <- frame:
		case <-s.closing:
			return
		}
	}
}

func encodeDataURL(frame []byte) []byte {
	out := make([]byte, len(jpegDataURLPrefix)+base64.StdEncoding.EncodedLen(len(frame)))
	copy(out, jpegDataURLPrefix)
	base64.StdEncoding.Encode(out[len(jpegDataURLPrefix):], frame)
	return out
}

// decodeFrame accepts data URLs, bare base64 text and raw binary payloads.
func decodeFrame(kind int, payload []byte) ([]byte, error) {
	if kind == websocket.BinaryMessage {
		return append([]byte(nil), payload...), nil
	}

	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "data:") {
		comma := strings.IndexByte(text, ',')
		if comma < 0 {
			return nil, errors.New("malformed data url")
		}
		header := text[:comma]
		if !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("unsupported data url encoding: %s", header)
		}
		text = text[comma+1:]
	}
	return base64.StdEncoding.DecodeString(text)
}
