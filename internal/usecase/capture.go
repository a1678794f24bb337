package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"parlante/internal/domain"
	"parlante/internal/logging"
	"parlante/internal/ports"
)

var ErrCaptureUnsupported = errors.New("speech capture is not supported in this environment")

// CaptureConfig controls microphone and recognizer settings.
type CaptureConfig struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
}

// SpeechCapture pairs a microphone with a streaming recognizer.
type SpeechCapture struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	events   ports.EventSink
	cfg      CaptureConfig
	logger   *zap.Logger
}

func NewSpeechCapture(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	events ports.EventSink,
	cfg CaptureConfig,
	logger *zap.Logger,
) *SpeechCapture {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	cfg.Streaming.InterimResults = true
	return &SpeechCapture{
		audio:    audio,
		provider: provider,
		events:   events,
		cfg:      cfg,
		logger:   logging.OrNop(logger).Named("capture"),
	}
}

// Unsupported returns why capture cannot run here, or nil.
func (c *SpeechCapture) Unsupported() error {
	if c == nil || c.audio == nil || c.provider == nil {
		return ErrCaptureUnsupported
	}
	if err := c.audio.Available(); err != nil {
		return fmt.Errorf("%w: %w", ErrCaptureUnsupported, err)
	}
	if err := c.provider.Available(); err != nil {
		return fmt.Errorf("%w: %w", ErrCaptureUnsupported, err)
	}
	return nil
}

func (c *SpeechCapture) Supported() bool {
	return c.Unsupported() == nil
}

// Start begins listening. onTranscript receives the text of each recognition
// result as it arrives; it is never called after the returned session's Stop
// returns.
func (c *SpeechCapture) Start(ctx context.Context, onTranscript func(text string)) (*CaptureSession, error) {
	if err := c.Unsupported(); err != nil {
		return nil, err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	stream, err := c.provider.StartStreaming(sessionCtx, c.cfg.Streaming)
	if err != nil {
		cancel()
		return nil, err
	}

	audioSession, err := c.audio.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, err
	}

	session := &CaptureSession{
		cancel:     cancel,
		audio:      audioSession,
		stream:     stream,
		grace:      c.cfg.StreamingGrace,
		logger:     c.logger,
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}

	go consumeTranscriptionEvents(stream, onTranscript, session.eventsDone)
	go pumpAudioChunks(audioSession, stream, c.cfg.ChunkSize, c.events, session.audioDone)

	c.logger.Debug("capture started", zap.String("language", c.cfg.Streaming.Language))
	return session, nil
}

// CaptureSession is one recording's subscription to the recognizer.
type CaptureSession struct {
	cancel func()
	audio  ports.AudioSession
	stream ports.StreamingSession
	grace  time.Duration
	logger *zap.Logger

	eventsDone chan struct{}
	audioDone  chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// Stop ends listening and releases the recognizer. Results that arrive during
// the grace period are still delivered. Safe to call more than once.
func (s *CaptureSession) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		defer s.cancel()

		var errs []error
		if err := s.audio.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audio capture cleanly: %w", err))
		}

		if s.grace > 0 {
			timer := time.NewTimer(s.grace)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}

		_ = s.stream.CloseSend()
		if err := waitForStream(s.stream, 4*time.Second); err != nil {
			errs = append(errs, err)
		}
		<-s.eventsDone
		<-s.audioDone

		s.stopErr = errors.Join(errs...)
		s.logger.Debug("capture stopped", zap.Error(s.stopErr))
	})
	return s.stopErr
}

// Abort releases the recognizer immediately, discarding pending results.
func (s *CaptureSession) Abort() {
	s.stopOnce.Do(func() {
		s.cancel()
		_ = s.audio.Stop()
		_ = s.stream.Close()
		<-s.eventsDone
		<-s.audioDone
	})
}

// consumeTranscriptionEvents forwards each result's own text; results are not
// accumulated.
func consumeTranscriptionEvents(session ports.StreamingSession, onTranscript func(string), done chan struct{}) {
	defer close(done)

	for event := range session.Events() {
		text := strings.TrimSpace(event.Text)
		if text == "" {
			continue
		}
		onTranscript(text)
	}
}

func pumpAudioChunks(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	events ports.EventSink,
	done chan struct{},
) {
	defer close(done)

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				events.InteractionError(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to stream audio: %v", sendErr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				events.InteractionError(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
