package ports

import (
	"context"
	"io"

	"parlante/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Available() error
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	Available() error
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// CompletionClient sends one prompt to the completion endpoint.
// Complete never retries; every error is folded into a failed result.
type CompletionClient interface {
	Complete(ctx context.Context, req domain.CompletionRequest) domain.CompletionResult
}

// SpeechSynthesizer turns text into encoded audio.
type SpeechSynthesizer interface {
	Available() error
	Voices(ctx context.Context) ([]string, error)
	Synthesize(ctx context.Context, utterance domain.Utterance) (io.ReadCloser, error)
}

// Playback is one utterance being played.
type Playback interface {
	Stop() error
	Done() <-chan struct{}
}

// AudioPlayer plays encoded audio through the local output device.
type AudioPlayer interface {
	Available() error
	Play(ctx context.Context, audio io.ReadCloser, utterance domain.Utterance) (Playback, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	StateChanged(state domain.InteractionState, reason domain.StateReason)
	TranscriptUpdated(text string)
	ResponseUpdated(text string)
	Alert(message string)
	InteractionError(code domain.ErrorCode, detail string)
}
