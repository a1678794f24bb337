package domain

import (
	"errors"
	"strings"
)

// InteractionState models the capture/request/playback lifecycle.
type InteractionState string

const (
	StateIdle       InteractionState = "idle"
	StateRecording  InteractionState = "recording"
	StateSubmitting InteractionState = "submitting"
	StateSpeaking   InteractionState = "speaking"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonReady                StateReason = "ready"
	ReasonRecordingStarted     StateReason = "recording_started"
	ReasonRecordingStopped     StateReason = "recording_stopped"
	ReasonSubmissionSent       StateReason = "submission_sent"
	ReasonSubmissionSuperseded StateReason = "submission_superseded"
	ReasonResponseReceived     StateReason = "response_received"
	ReasonResponseSpoken       StateReason = "response_spoken"
	ReasonPlaybackFailed       StateReason = "playback_failed"
	ReasonSubmissionFailed     StateReason = "submission_failed"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeCapture     ErrorCode = "capture"
	ErrorCodeAudioStream ErrorCode = "audio_stream"
	ErrorCodeCompletion  ErrorCode = "completion"
	ErrorCodePlayback    ErrorCode = "playback"
)

// ErrorMarker replaces the transcript when a submission fails.
const ErrorMarker = "Error: no se pudo obtener una respuesta."

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent is one recognition result from a provider.
type TranscriptEvent struct {
	Kind TranscriptKind `json:"kind"`
	Text string         `json:"text"`
}

// Fixed sampling parameters sent with every submission.
const (
	CompletionMaxTokens   = 500
	CompletionCandidates  = 1
	CompletionTemperature = float32(0.5)
)

// CompletionRequest is the immutable payload of one submission.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	N           int
	Temperature float32
}

func NewCompletionRequest(prompt string) CompletionRequest {
	return CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   CompletionMaxTokens,
		N:           CompletionCandidates,
		Temperature: CompletionTemperature,
	}
}

// CompletionResult is either a success carrying Text or a failure carrying Err.
type CompletionResult struct {
	Text string
	Err  error
}

func Success(text string) CompletionResult {
	return CompletionResult{Text: text}
}

func Failure(err error) CompletionResult {
	if err == nil {
		err = errors.New("completion failed")
	}
	return CompletionResult{Err: err}
}

func (r CompletionResult) Succeeded() bool {
	return r.Err == nil
}

// Reason returns a human-readable failure description, or "" on success.
func (r CompletionResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return strings.TrimSpace(r.Err.Error())
}

// Utterance is one unit of synthesized speech.
type Utterance struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

// Status is the state visible to the presentation layer.
type Status struct {
	State             InteractionState `json:"state"`
	Transcript        string           `json:"transcript"`
	Response          string           `json:"response"`
	CanStart          bool             `json:"canStart"`
	CanStop           bool             `json:"canStop"`
	CanSubmit         bool             `json:"canSubmit"`
	CanReplay         bool             `json:"canReplay"`
	CaptureSupported  bool             `json:"captureSupported"`
	PlaybackSupported bool             `json:"playbackSupported"`
	Message           string           `json:"message,omitempty"`
}
