package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"speakwell/internal/domain"
	"speakwell/internal/ports"
)

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.calls > len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	return f.sessions[f.calls-1], nil
}

func (f *fakeAudioCapture) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeAudioSession yields its chunks and then, when live, blocks like an open
// microphone until Stop is called.
type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	live      bool
	stopped   chan struct{}
	stopOnce  sync.Once
	stopCalls int
	stopErr   error
}

func newLiveAudioSession(chunks ...[]byte) *fakeAudioSession {
	return &fakeAudioSession{chunks: chunks, live: true, stopped: make(chan struct{})}
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.index < len(f.chunks) {
		n := copy(p, f.chunks[f.index])
		f.index++
		f.mu.Unlock()
		return n, nil
	}
	live := f.live
	f.mu.Unlock()

	if live {
		<-f.stopped
	}
	return 0, io.EOF
}

func (f *fakeAudioSession) Close() error { return f.Stop() }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	if f.stopped != nil {
		f.stopOnce.Do(func() { close(f.stopped) })
	}
	return f.stopErr
}

func (f *fakeAudioSession) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeInference struct {
	mu          sync.Mutex
	response    domain.SubmitResponse
	err         error
	block       bool
	submitted   chan struct{}
	payloads    [][]byte
	prompts     []string
	exercises   []string
	exerciseErr error
	chatReply   domain.ChatReply
	contacts    []domain.ContactMessage
}

func (f *fakeInference) SubmitAudio(ctx context.Context, audio []byte, exerciseText string) (domain.SubmitResponse, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, append([]byte(nil), audio...))
	f.prompts = append(f.prompts, exerciseText)
	block := f.block
	submitted := f.submitted
	f.mu.Unlock()

	if submitted != nil {
		close(submitted)
	}
	if block {
		<-ctx.Done()
		return domain.SubmitResponse{}, ctx.Err()
	}
	return f.response, f.err
}

func (f *fakeInference) GenerateExercises(_ context.Context, _ string, count int) ([]string, error) {
	if f.exerciseErr != nil {
		return nil, f.exerciseErr
	}
	return f.exercises, nil
}

func (f *fakeInference) Chat(_ context.Context, _ string) (domain.ChatReply, error) {
	return f.chatReply, nil
}

func (f *fakeInference) SendContactMessage(_ context.Context, msg domain.ContactMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts = append(f.contacts, msg)
	return nil
}

func (f *fakeInference) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type fakeStore struct {
	mu      sync.Mutex
	userIDs []string
	records []domain.ExerciseRecord
	err     error
	history []domain.ExerciseRecord
	limits  []int
}

func (f *fakeStore) SaveExerciseResult(_ context.Context, userID string, record domain.ExerciseRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userIDs = append(f.userIDs, userID)
	f.records = append(f.records, record)
	return f.err
}

func (f *fakeStore) History(_ context.Context, _ string, limit int) ([]domain.ExerciseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	return f.history, nil
}

func (f *fakeStore) WeakAreas(_ context.Context, _ string) ([]domain.WeakArea, error) {
	return []domain.WeakArea{{Type: "fluency", AverageScore: 55}}, nil
}

func (f *fakeStore) Progress(_ context.Context, _ string, days int) ([]domain.DailyProgress, error) {
	return []domain.DailyProgress{{Date: "2026-10-01", AverageScore: 80, Sessions: days}}, nil
}

func (f *fakeStore) Stats(_ context.Context, _ string) (domain.UserStats, error) {
	return domain.UserStats{TotalSessions: 3}, nil
}

func (f *fakeStore) snapshot() []domain.ExerciseRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ExerciseRecord(nil), f.records...)
}

type fakePublisher struct {
	mu       sync.Mutex
	exercise []domain.ExerciseOutcome
	physio   []domain.PhysioOutcome
}

func (f *fakePublisher) PublishExerciseOutcome(_ context.Context, outcome domain.ExerciseOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exercise = append(f.exercise, outcome)
	return nil
}

func (f *fakePublisher) PublishPhysioOutcome(_ context.Context, outcome domain.PhysioOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.physio = append(f.physio, outcome)
	return nil
}

type fakeSpeech struct {
	mu        sync.Mutex
	spoken    []string
	cancels   int
	block     bool
	started   chan struct{}
	startOnce sync.Once
}

func (f *fakeSpeech) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	block := f.block
	started := f.started
	f.mu.Unlock()
	if started != nil {
		f.startOnce.Do(func() { close(started) })
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeSpeech) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeSpeech) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...), f.cancels
}

type fakeCamera struct {
	mu      sync.Mutex
	session *fakeCameraSession
	err     error
	calls   int
}

func (f *fakeCamera) Start(_ context.Context, _ ports.CameraConfig) (ports.CameraSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type fakeCameraSession struct {
	mu        sync.Mutex
	captures  int
	stopCalls int
	// hang makes Capture wait for ctx, like a camera that never yields a frame.
	hang bool
}

func (f *fakeCameraSession) Capture(ctx context.Context) ([]byte, error) {
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	return []byte{byte(f.captures)}, nil
}

func (f *fakeCameraSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeCameraSession) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

// fakeFrameStream records sends and tracks how many frames are outstanding.
type fakeFrameStream struct {
	mu          sync.Mutex
	sent        chan []byte
	frames      chan []byte
	outstanding int
	maxInFlight int
	sendCount   int
	sendsAfter  int
	closed      bool
	closeCalls  int
	waitErr     error
}

func newFakeFrameStream() *fakeFrameStream {
	return &fakeFrameStream{sent: make(chan []byte, 64), frames: make(chan []byte, 64)}
}

func (f *fakeFrameStream) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.sendsAfter++
		return errors.New("stream closed")
	}
	f.sendCount++
	f.outstanding++
	if f.outstanding > f.maxInFlight {
		f.maxInFlight = f.outstanding
	}
	f.sent <- frame
	return nil
}

// reply delivers the annotated response to the oldest outstanding frame.
func (f *fakeFrameStream) reply(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.outstanding--
	f.frames <- frame
	return true
}

func (f *fakeFrameStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeFrameStream) Frames() <-chan []byte { return f.frames }

func (f *fakeFrameStream) Wait() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitErr
}

func (f *fakeFrameStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
	return nil
}

// serverClose simulates the remote end dropping the socket.
func (f *fakeFrameStream) serverClose(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitErr = err
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
}

func (f *fakeFrameStream) stats() (sends, maxInFlight, sendsAfter, closeCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCount, f.maxInFlight, f.sendsAfter, f.closeCalls
}

type fakeStreamingService struct {
	mu           sync.Mutex
	stream       *fakeFrameStream
	connectErr   error
	startErr     error
	stopErr      error
	stopMessage  string
	report       domain.ProgressReport
	reportErr    error
	connects     int
	starts       int
	stops        int
	userIDs      []string
	closedAtStop bool
}

func (f *fakeStreamingService) Connect(_ context.Context, userID string) (ports.FrameStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.userIDs = append(f.userIDs, userID)
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.stream, nil
}

func (f *fakeStreamingService) StartSession(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return "Session started", f.startErr
}

func (f *fakeStreamingService) StopSession(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stream != nil {
		f.closedAtStop = f.stream.isClosed()
	}
	return f.stopMessage, f.stopErr
}

func (f *fakeStreamingService) counts() (connects, starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.starts, f.stops
}

func (f *fakeStreamingService) ProgressReport(_ context.Context, _ string) (domain.ProgressReport, error) {
	return f.report, f.reportErr
}

type fakeEventSink struct {
	mu sync.Mutex

	recording []recordingEvent
	streaming []streamingEvent
	ticks     []int
	frames    [][]byte
	errors    []errEvent
}

type recordingEvent struct {
	state  domain.RecordingState
	reason domain.StateReason
}

type streamingEvent struct {
	state  domain.StreamingState
	reason domain.StateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) RecordingStateChanged(state domain.RecordingState, reason domain.StateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = append(f.recording, recordingEvent{state: state, reason: reason})
}

func (f *fakeEventSink) RecordingTick(elapsed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, elapsed)
}

func (f *fakeEventSink) StreamingStateChanged(state domain.StreamingState, reason domain.StateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming = append(f.streaming, streamingEvent{state: state, reason: reason})
}

func (f *fakeEventSink) FrameRendered(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), frame...))
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotRecording() []recordingEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordingEvent(nil), f.recording...)
}

func (f *fakeEventSink) snapshotStreaming() []streamingEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]streamingEvent(nil), f.streaming...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
