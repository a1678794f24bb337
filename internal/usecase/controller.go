package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parlante/internal/domain"
	"parlante/internal/logging"
	"parlante/internal/ports"
)

var (
	ErrClosed               = errors.New("interaction controller is closed")
	ErrAlreadyRecording     = errors.New("already recording")
	ErrSubmitWhileRecording = errors.New("cannot submit while recording")
	ErrEmptyTranscript      = errors.New("transcript is empty")
	ErrBusy                 = errors.New("another submission or utterance is in progress")
	ErrNoResponse           = errors.New("no response to replay")
)

// InteractionController owns the visible state and sequences capture,
// completion and playback. It is safe for concurrent use; no lock is held
// while waiting on a collaborator.
type InteractionController struct {
	capture    *SpeechCapture
	completion ports.CompletionClient
	playback   *SpeechPlayback
	events     ports.EventSink
	logger     *zap.Logger

	captureErr  error
	playbackErr error

	mu         sync.Mutex
	state      domain.InteractionState
	transcript string
	response   string
	recording  *recording
	submission string
	closed     bool
}

// recording is the subscription of one Recording state to SpeechCapture.
type recording struct {
	session  *CaptureSession
	stopping bool
}

func NewInteractionController(
	capture *SpeechCapture,
	completion ports.CompletionClient,
	playback *SpeechPlayback,
	events ports.EventSink,
	logger *zap.Logger,
) *InteractionController {
	logger = logging.OrNop(logger).Named("controller")

	c := &InteractionController{
		capture:     capture,
		completion:  completion,
		playback:    playback,
		events:      events,
		logger:      logger,
		captureErr:  capture.Unsupported(),
		playbackErr: playback.Unsupported(),
		state:       domain.StateIdle,
	}
	if c.captureErr != nil {
		logger.Warn("recording disabled", zap.Error(c.captureErr))
	}
	if c.playbackErr != nil {
		logger.Warn("spoken responses disabled", zap.Error(c.playbackErr))
	}
	return c
}

// Start clears the transcript and response and begins recording.
func (c *InteractionController) Start(ctx context.Context) error {
	if c.captureErr != nil {
		return c.captureErr
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == domain.StateRecording {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	reason := domain.ReasonRecordingStarted
	if c.submission != "" {
		c.logger.Info("pending submission superseded by new recording", zap.String("submission", c.submission))
		c.submission = ""
		reason = domain.ReasonSubmissionSuperseded
	}
	rec := &recording{}
	c.recording = rec
	c.state = domain.StateRecording
	c.transcript = ""
	c.response = ""
	c.mu.Unlock()

	c.playback.Stop()
	c.events.TranscriptUpdated("")
	c.events.ResponseUpdated("")
	c.events.StateChanged(domain.StateRecording, reason)

	session, err := c.capture.Start(ctx, func(text string) {
		c.applyTranscript(rec, text)
	})
	if err != nil {
		c.logger.Error("failed to start capture", zap.Error(err))
		c.events.InteractionError(domain.ErrorCodeCapture, err.Error())
		c.finishRecording(rec)
		return err
	}

	c.mu.Lock()
	if c.recording != rec {
		c.mu.Unlock()
		session.Abort()
		return ErrClosed
	}
	rec.session = session
	stopRequested := rec.stopping
	c.mu.Unlock()

	if stopRequested {
		c.stopSession(ctx, rec, session)
	}
	return nil
}

// Stop ends recording and keeps the transcript. It is a no-op unless recording.
func (c *InteractionController) Stop(ctx context.Context) error {
	c.mu.Lock()
	rec := c.recording
	if c.state != domain.StateRecording || rec == nil || rec.stopping {
		c.mu.Unlock()
		return nil
	}
	rec.stopping = true
	session := rec.session
	c.mu.Unlock()

	// Start is still opening the session and will stop it once it is ready.
	if session == nil {
		return nil
	}
	c.stopSession(ctx, rec, session)
	return nil
}

func (c *InteractionController) stopSession(ctx context.Context, rec *recording, session *CaptureSession) {
	if err := session.Stop(ctx); err != nil {
		c.logger.Warn("capture did not stop cleanly", zap.Error(err))
		c.events.InteractionError(domain.ErrorCodeCapture, err.Error())
	}
	c.finishRecording(rec)
}

func (c *InteractionController) finishRecording(rec *recording) {
	c.mu.Lock()
	if c.recording != rec {
		c.mu.Unlock()
		return
	}
	c.recording = nil
	c.state = domain.StateIdle
	c.mu.Unlock()

	c.events.StateChanged(domain.StateIdle, domain.ReasonRecordingStopped)
}

// applyTranscript replaces the transcript while rec is the active recording.
func (c *InteractionController) applyTranscript(rec *recording, text string) {
	c.mu.Lock()
	if c.recording != rec {
		c.mu.Unlock()
		return
	}
	c.transcript = text
	c.mu.Unlock()

	c.events.TranscriptUpdated(text)
}

// Submit sends the frozen transcript to the completion endpoint. The request
// is not cancelled with ctx; a result that arrives after Close or after a new
// recording started is discarded.
func (c *InteractionController) Submit(ctx context.Context) (domain.CompletionResult, error) {
	c.mu.Lock()
	if err := c.submitGuardLocked(); err != nil {
		c.mu.Unlock()
		return domain.CompletionResult{}, err
	}
	id := uuid.NewString()
	c.submission = id
	c.state = domain.StateSubmitting
	c.response = ""
	prompt := c.transcript
	c.mu.Unlock()

	logger := c.logger.With(zap.String("submission", id))
	logger.Info("submitting transcript", zap.Int("chars", len(prompt)))
	c.events.ResponseUpdated("")
	c.events.StateChanged(domain.StateSubmitting, domain.ReasonSubmissionSent)

	result := c.completion.Complete(context.WithoutCancel(ctx), domain.NewCompletionRequest(prompt))

	c.mu.Lock()
	if c.closed || c.submission != id {
		c.mu.Unlock()
		logger.Info("discarding result of superseded submission", zap.Bool("succeeded", result.Succeeded()))
		return result, nil
	}
	c.submission = ""

	if !result.Succeeded() {
		c.transcript = domain.ErrorMarker
		c.state = domain.StateIdle
		c.mu.Unlock()

		logger.Warn("submission failed", zap.Error(result.Err))
		c.events.TranscriptUpdated(domain.ErrorMarker)
		c.events.InteractionError(domain.ErrorCodeCompletion, result.Reason())
		c.events.StateChanged(domain.StateIdle, domain.ReasonSubmissionFailed)
		c.events.Alert(alertMessage(result))
		return result, nil
	}

	c.response = result.Text
	speak := c.playbackErr == nil
	if speak {
		c.state = domain.StateSpeaking
	} else {
		c.state = domain.StateIdle
	}
	c.mu.Unlock()

	logger.Info("response received", zap.Int("chars", len(result.Text)))
	c.events.ResponseUpdated(result.Text)
	if !speak {
		c.events.StateChanged(domain.StateIdle, domain.ReasonResponseReceived)
		return result, nil
	}
	c.events.StateChanged(domain.StateSpeaking, domain.ReasonResponseReceived)
	c.speak(ctx, result.Text)
	return result, nil
}

func (c *InteractionController) submitGuardLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.state == domain.StateRecording:
		return ErrSubmitWhileRecording
	case c.state != domain.StateIdle:
		return ErrBusy
	case strings.TrimSpace(c.transcript) == "":
		return ErrEmptyTranscript
	}
	return nil
}

// Replay speaks the displayed response again, interrupting any utterance
// still playing.
func (c *InteractionController) Replay(ctx context.Context) error {
	if c.playbackErr != nil {
		return c.playbackErr
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.state != domain.StateIdle && c.state != domain.StateSpeaking:
		c.mu.Unlock()
		return ErrBusy
	case c.response == "":
		c.mu.Unlock()
		return ErrNoResponse
	}
	text := c.response
	c.state = domain.StateSpeaking
	c.mu.Unlock()

	c.events.StateChanged(domain.StateSpeaking, domain.ReasonResponseReceived)
	c.speak(ctx, text)
	return nil
}

// speak hands text to playback and leaves Speaking once playback has started.
func (c *InteractionController) speak(ctx context.Context, text string) {
	err := c.playback.Speak(ctx, text)
	if errors.Is(err, ErrUtteranceCancelled) || errors.Is(err, ErrPlaybackClosed) {
		// A new recording or Close took over; it owns the state.
		c.logger.Debug("utterance cancelled before playback")
		return
	}

	c.mu.Lock()
	changed := !c.closed && c.state == domain.StateSpeaking
	if changed {
		c.state = domain.StateIdle
	}
	c.mu.Unlock()

	if !changed {
		return
	}
	reason := domain.ReasonResponseSpoken
	if err != nil {
		c.logger.Warn("failed to speak response", zap.Error(err))
		c.events.InteractionError(domain.ErrorCodePlayback, err.Error())
		reason = domain.ReasonPlaybackFailed
	}
	c.events.StateChanged(domain.StateIdle, reason)
}

// Status returns the state visible to the presentation layer.
func (c *InteractionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{
		State:             c.state,
		Transcript:        c.transcript,
		Response:          c.response,
		CaptureSupported:  c.captureErr == nil,
		PlaybackSupported: c.playbackErr == nil,
	}
	if c.closed {
		status.Message = ErrClosed.Error()
		return status
	}

	status.CanStart = status.CaptureSupported && c.state != domain.StateRecording
	status.CanStop = c.state == domain.StateRecording && c.recording != nil && !c.recording.stopping
	status.CanSubmit = c.submitGuardLocked() == nil
	status.CanReplay = status.PlaybackSupported && c.response != "" &&
		(c.state == domain.StateIdle || c.state == domain.StateSpeaking)

	var notes []string
	if c.captureErr != nil {
		notes = append(notes, c.captureErr.Error())
	}
	if c.playbackErr != nil {
		notes = append(notes, c.playbackErr.Error())
	}
	status.Message = strings.Join(notes, "; ")
	return status
}

// Close releases the recording subscription and playback. Results of
// submissions still in flight are discarded.
func (c *InteractionController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var session *CaptureSession
	if c.recording != nil {
		session = c.recording.session
	}
	c.recording = nil
	c.submission = ""
	c.state = domain.StateIdle
	c.mu.Unlock()

	if session != nil {
		session.Abort()
	}
	c.playback.Close()
	c.logger.Debug("controller closed")
	return nil
}

func alertMessage(result domain.CompletionResult) string {
	reason := result.Reason()
	if reason == "" {
		return "No se pudo obtener una respuesta."
	}
	return "No se pudo obtener una respuesta: " + reason
}
