package bootstrap

import (
	"go.uber.org/zap"

	"parlante/internal/audio"
	"parlante/internal/config"
	"parlante/internal/logging"
	"parlante/internal/ports"
	"parlante/internal/providers/deepgram"
	"parlante/internal/providers/openai"
	"parlante/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.InteractionController
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime. Missing
// credentials or binaries do not fail the build; the affected capability is
// reported as unsupported instead.
func Build(cfg config.Config, eventSink ports.EventSink, logger *zap.Logger) (Services, error) {
	logger = logging.OrNop(logger)

	recorder, err := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)
	if err != nil {
		return Services{}, err
	}
	player, err := audio.NewFFPlayPlayer(cfg.Speech.PlayerCommand)
	if err != nil {
		return Services{}, err
	}

	openaiCfg := openai.Config{
		APIKey:         cfg.Completion.APIKey,
		APIBaseURL:     cfg.Completion.APIBaseURL,
		Model:          cfg.Completion.Model,
		RequestTimeout: cfg.Completion.RequestTimeout,
	}

	capture := usecase.NewSpeechCapture(
		recorder,
		deepgram.NewProvider(deepgram.Config{
			APIKey:     cfg.Deepgram.APIKey,
			APIBaseURL: cfg.Deepgram.APIBaseURL,
			Model:      cfg.Deepgram.Model,
			Language:   cfg.Deepgram.Language,
		}, logger),
		eventSink,
		usecase.CaptureConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				Language:       cfg.Deepgram.Language,
				InterimResults: true,
			},
			ChunkSize:      cfg.Session.ChunkSize,
			StreamingGrace: cfg.Session.StreamingGrace,
		},
		logger,
	)

	playback := usecase.NewSpeechPlayback(
		openai.NewSpeechSynthesizer(openaiCfg, openai.SpeechConfig{
			Model:  cfg.Speech.Model,
			Voices: cfg.Speech.Voices,
		}, logger),
		player,
		logger,
	)

	controller := usecase.NewInteractionController(
		capture,
		openai.NewCompletionClient(openaiCfg, logger),
		playback,
		eventSink,
		logger,
	)

	return Services{Controller: controller, Config: cfg}, nil
}
