package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"parlante/internal/domain"
	"parlante/internal/ports"
)

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	err      error
	availErr error
	calls    int
}

func (f *fakeAudioCapture) Available() error { return f.availErr }

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
	stopErr   error
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeAudioSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type errorAudioSession struct {
	err error
}

func (e *errorAudioSession) Read([]byte) (int, error) { return 0, e.err }
func (e *errorAudioSession) Close() error             { return nil }
func (e *errorAudioSession) Stop() error              { return nil }

type fakeProvider struct {
	mu       sync.Mutex
	sessions []ports.StreamingSession
	err      error
	availErr error
	calls    int
	configs  []ports.StreamingConfig
}

func (f *fakeProvider) Available() error { return f.availErr }

func (f *fakeProvider) StartStreaming(_ context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no stream session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeStreamingSession struct {
	mu         sync.Mutex
	events     chan domain.TranscriptEvent
	waitErr    error
	closeSend  int
	closeCalls int
	closed     bool
	sent       [][]byte
}

func newFakeStreamingSession(texts ...string) *fakeStreamingSession {
	s := &fakeStreamingSession{events: make(chan domain.TranscriptEvent, 16)}
	for _, text := range texts {
		s.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: text}
	}
	return s
}

func (f *fakeStreamingSession) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeStreamingSession) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSend++
	f.closeEventsLocked()
	return nil
}

func (f *fakeStreamingSession) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeStreamingSession) Wait() error {
	time.Sleep(5 * time.Millisecond)
	return f.waitErr
}

func (f *fakeStreamingSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.closeEventsLocked()
	return nil
}

func (f *fakeStreamingSession) closeEventsLocked() {
	if !f.closed {
		close(f.events)
		f.closed = true
	}
}

func (f *fakeStreamingSession) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// fakeCompletion answers with result; when gate is set it waits for it first.
type fakeCompletion struct {
	mu       sync.Mutex
	result   domain.CompletionResult
	gate     chan struct{}
	started  chan struct{}
	requests []domain.CompletionRequest
}

func (f *fakeCompletion) Complete(_ context.Context, req domain.CompletionRequest) domain.CompletionResult {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gate
	started := f.started
	result := f.result
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	return result
}

func (f *fakeCompletion) snapshotRequests() []domain.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CompletionRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// fakeSynth signals started on each call and, when gate is set, waits for it
// before returning audio.
type fakeSynth struct {
	mu         sync.Mutex
	gate       chan struct{}
	started    chan struct{}
	voices     []string
	voicesErr  error
	availErr   error
	err        error
	utterances []domain.Utterance
}

func (f *fakeSynth) Available() error { return f.availErr }

func (f *fakeSynth) Voices(context.Context) ([]string, error) {
	if f.voicesErr != nil {
		return nil, f.voicesErr
	}
	return f.voices, nil
}

func (f *fakeSynth) Synthesize(_ context.Context, utterance domain.Utterance) (io.ReadCloser, error) {
	f.mu.Lock()
	f.utterances = append(f.utterances, utterance)
	gate, started, err := f.gate, f.started, f.err
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("audio:" + utterance.Text)), nil
}

func (f *fakeSynth) snapshotUtterances() []domain.Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Utterance, len(f.utterances))
	copy(out, f.utterances)
	return out
}

type fakePlayer struct {
	mu        sync.Mutex
	availErr  error
	err       error
	playbacks []*fakePlayback
}

func (f *fakePlayer) Available() error { return f.availErr }

func (f *fakePlayer) Play(_ context.Context, audio io.ReadCloser, _ domain.Utterance) (ports.Playback, error) {
	_ = audio.Close()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	playback := &fakePlayback{done: make(chan struct{})}
	f.playbacks = append(f.playbacks, playback)
	return playback, nil
}

func (f *fakePlayer) snapshotPlaybacks() []*fakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakePlayback, len(f.playbacks))
	copy(out, f.playbacks)
	return out
}

type fakePlayback struct {
	mu        sync.Mutex
	done      chan struct{}
	stopCalls int
}

func (f *fakePlayback) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	select {
	case <-f.done:
	default:
		close(f.done)
	}
	return nil
}

func (f *fakePlayback) Done() <-chan struct{} { return f.done }

func (f *fakePlayback) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeEventSink struct {
	mu sync.Mutex

	states      []stateEvent
	transcripts []string
	responses   []string
	alerts      []string
	errors      []errEvent
}

type stateEvent struct {
	state  domain.InteractionState
	reason domain.StateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) StateChanged(state domain.InteractionState, reason domain.StateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) TranscriptUpdated(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
}

func (f *fakeEventSink) ResponseUpdated(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, text)
}

func (f *fakeEventSink) Alert(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, message)
}

func (f *fakeEventSink) InteractionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) snapshotAlerts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.alerts...)
}

func (f *fakeEventSink) snapshotResponses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.responses...)
}

func (f *fakeEventSink) snapshotTranscripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transcripts...)
}

func (f *fakeEventSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states) + len(f.transcripts) + len(f.responses) + len(f.alerts) + len(f.errors)
}
