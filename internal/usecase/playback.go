package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"parlante/internal/domain"
	"parlante/internal/logging"
	"parlante/internal/ports"
)

var (
	ErrPlaybackUnsupported = errors.New("speech playback is not supported in this environment")
	ErrUtteranceCancelled  = errors.New("utterance cancelled before playback started")
	ErrPlaybackClosed      = errors.New("speech playback is closed")
)

// Playback uses fixed prosody.
const (
	defaultPitch = 1.0
	defaultRate  = 1.0
)

// SpeechPlayback speaks text through a synthesizer and an audio player.
// A new utterance interrupts the one still playing.
type SpeechPlayback struct {
	synth  ports.SpeechSynthesizer
	player ports.AudioPlayer
	logger *zap.Logger

	mu      sync.Mutex
	current ports.Playback
	// generation advances on every Stop; an utterance synthesized under an
	// older generation is dropped.
	generation uint64
	closed     bool
}

func NewSpeechPlayback(synth ports.SpeechSynthesizer, player ports.AudioPlayer, logger *zap.Logger) *SpeechPlayback {
	return &SpeechPlayback{
		synth:  synth,
		player: player,
		logger: logging.OrNop(logger).Named("playback"),
	}
}

// Unsupported returns why playback cannot run here, or nil.
func (p *SpeechPlayback) Unsupported() error {
	if p == nil || p.synth == nil || p.player == nil {
		return ErrPlaybackUnsupported
	}
	if err := p.synth.Available(); err != nil {
		return fmt.Errorf("%w: %w", ErrPlaybackUnsupported, err)
	}
	if err := p.player.Available(); err != nil {
		return fmt.Errorf("%w: %w", ErrPlaybackUnsupported, err)
	}
	return nil
}

func (p *SpeechPlayback) Supported() bool {
	return p.Unsupported() == nil
}

// Speak synthesizes text with the first available voice and starts playing
// it. It returns once playback has started.
func (p *SpeechPlayback) Speak(ctx context.Context, text string) error {
	if err := p.Unsupported(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlaybackClosed
	}
	generation := p.generation
	p.mu.Unlock()

	voices, err := p.synth.Voices(ctx)
	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}
	if len(voices) == 0 {
		return fmt.Errorf("%w: no voices available", ErrPlaybackUnsupported)
	}

	utterance := domain.Utterance{
		Text:  text,
		Voice: voices[0],
		Pitch: defaultPitch,
		Rate:  defaultRate,
	}

	audio, err := p.synth.Synthesize(ctx, utterance)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.generation != generation {
		_ = audio.Close()
		return ErrUtteranceCancelled
	}
	p.stopCurrentLocked()
	playback, err := p.player.Play(context.WithoutCancel(ctx), audio, utterance)
	if err != nil {
		return fmt.Errorf("start playback: %w", err)
	}
	p.current = playback
	p.logger.Debug("utterance playing", zap.String("voice", utterance.Voice), zap.Int("chars", len(text)))
	return nil
}

// Stop interrupts the utterance currently playing, if any, and cancels any
// utterance still being synthesized.
func (p *SpeechPlayback) Stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.stopCurrentLocked()
}

// Close stops playback for good. Later calls to Speak fail with
// ErrPlaybackClosed.
func (p *SpeechPlayback) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.generation++
	p.stopCurrentLocked()
}

func (p *SpeechPlayback) stopCurrentLocked() {
	if p.current == nil {
		return
	}
	select {
	case <-p.current.Done():
	default:
		if err := p.current.Stop(); err != nil {
			p.logger.Warn("failed to interrupt utterance", zap.Error(err))
		} else {
			p.logger.Debug("utterance interrupted")
		}
	}
	p.current = nil
}
