package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"parlante/internal/bootstrap"
	"parlante/internal/config"
	"parlante/internal/domain"
	"parlante/internal/logging"
	"parlante/internal/usecase"
)

const (
	eventState      = "parlante:state"
	eventTranscript = "parlante:transcript"
	eventResponse   = "parlante:response"
	eventError      = "parlante:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.InteractionController
	cfg        config.Config
	bootErr    error
	logger     *zap.Logger
}

func NewApp(cfg config.Config, logger *zap.Logger) *App {
	return &App{cfg: cfg, logger: logging.OrNop(logger)}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a.cfg, a, a.logger)
	if err != nil {
		a.bootErr = err
		a.logger.Error("startup failed", zap.Error(err))
		a.InteractionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.StateChanged(domain.StateIdle, domain.ReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		_ = a.controller.Close()
	}
	_ = a.logger.Sync()
}

// StartRecording clears the previous interaction and starts listening.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Start(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// StopRecording stops listening and keeps the transcript.
func (a *App) StopRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Stop(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// Submit sends the transcript for completion and speaks the response.
// Failures are reported through events and an alert, not the returned error.
func (a *App) Submit() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if _, err := a.controller.Submit(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// Replay speaks the current response again.
func (a *App) Replay() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Replay(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// GetStatus returns the current interaction status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{State: domain.StateIdle}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"recognizer":       "Deepgram",
		"recognizerModel":  a.cfg.Deepgram.Model,
		"language":         a.cfg.Deepgram.Language,
		"completionModel":  a.cfg.Completion.Model,
		"speechModel":      a.cfg.Speech.Model,
		"voices":           strings.Join(a.cfg.Speech.Voices, ", "),
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// StateChanged emits interaction state updates to the frontend.
func (a *App) StateChanged(state domain.InteractionState, reason domain.StateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventState, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": stateReasonMessage(reason),
	})
}

// TranscriptUpdated emits the transcript shown to the user.
func (a *App) TranscriptUpdated(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]string{"text": text})
}

// ResponseUpdated emits the completion text shown to the user.
func (a *App) ResponseUpdated(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventResponse, map[string]string{"text": text})
}

// Alert shows a blocking error dialog.
func (a *App) Alert(message string) {
	if a.ctx == nil {
		return
	}
	if _, err := runtime.MessageDialog(a.ctx, runtime.MessageDialogOptions{
		Type:    runtime.ErrorDialog,
		Title:   "Parlante",
		Message: message,
	}); err != nil {
		a.logger.Warn("failed to show alert", zap.Error(err))
	}
}

// InteractionError emits backend errors to the UI.
func (a *App) InteractionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Listo"
	case domain.ReasonRecordingStarted:
		return "Escuchando..."
	case domain.ReasonSubmissionSuperseded:
		return "Escuchando... (consulta anterior descartada)"
	case domain.ReasonRecordingStopped:
		return "Grabación detenida"
	case domain.ReasonSubmissionSent:
		return "Enviando..."
	case domain.ReasonResponseReceived:
		return "Respuesta recibida"
	case domain.ReasonResponseSpoken:
		return "Respuesta reproducida"
	case domain.ReasonPlaybackFailed:
		return "No se pudo reproducir la respuesta"
	case domain.ReasonSubmissionFailed:
		return "La consulta falló"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Error al iniciar"
	case domain.ErrorCodeCapture:
		return "Error de captura de voz"
	case domain.ErrorCodeAudioStream:
		return "Error de transmisión de audio"
	case domain.ErrorCodeCompletion:
		return "Error de la consulta"
	case domain.ErrorCodePlayback:
		return "Error de reproducción"
	default:
		if detail == "" {
			return "Error desconocido"
		}
		return detail
	}
}
