package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"parlante/internal/domain"
	"parlante/internal/logging"
)

var ErrNoVoices = errors.New("no synthesis voices configured")

// SpeechConfig selects the synthesis model and the voices offered to playback.
type SpeechConfig struct {
	Model  string
	Voices []string
}

// SpeechSynthesizer implements ports.SpeechSynthesizer with /audio/speech.
type SpeechSynthesizer struct {
	cfg    Config
	speech SpeechConfig
	client *goopenai.Client
	logger *zap.Logger
}

func NewSpeechSynthesizer(cfg Config, speech SpeechConfig, logger *zap.Logger) *SpeechSynthesizer {
	cfg = cfg.withDefaults()
	if speech.Model == "" {
		speech.Model = string(goopenai.TTSModel1)
	}
	voices := make([]string, 0, len(speech.Voices))
	for _, voice := range speech.Voices {
		if trimmed := strings.TrimSpace(voice); trimmed != "" {
			voices = append(voices, trimmed)
		}
	}
	speech.Voices = voices

	return &SpeechSynthesizer{
		cfg:    cfg,
		speech: speech,
		client: newClient(cfg),
		logger: logging.OrNop(logger).Named("speech"),
	}
}

func (s *SpeechSynthesizer) Available() error {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if len(s.speech.Voices) == 0 {
		return ErrNoVoices
	}
	return nil
}

// Voices lists the configured voices in preference order.
func (s *SpeechSynthesizer) Voices(_ context.Context) ([]string, error) {
	if len(s.speech.Voices) == 0 {
		return nil, ErrNoVoices
	}
	return append([]string(nil), s.speech.Voices...), nil
}

// Synthesize returns mp3 audio for the utterance. The caller closes the reader.
func (s *SpeechSynthesizer) Synthesize(ctx context.Context, utterance domain.Utterance) (io.ReadCloser, error) {
	if err := s.Available(); err != nil {
		return nil, err
	}
	speed := utterance.Rate
	if speed <= 0 {
		speed = 1
	}

	resp, err := s.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(s.speech.Model),
		Input:          utterance.Text,
		Voice:          goopenai.SpeechVoice(utterance.Voice),
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	s.logger.Debug("speech synthesized", zap.String("voice", utterance.Voice), zap.Int("chars", len(utterance.Text)))
	return resp.ReadCloser, nil
}
