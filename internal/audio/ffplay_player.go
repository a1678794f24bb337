package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"parlante/internal/domain"
	"parlante/internal/ports"
)

var ErrUnsupportedPitch = errors.New("player only supports pitch 1.0")

// FFPlayPlayer plays encoded audio by piping it into ffplay.
type FFPlayPlayer struct {
	command command
}

func NewFFPlayPlayer(commandLine string) (*FFPlayPlayer, error) {
	cmd, err := parseCommand(commandLine, "ffplay")
	if err != nil {
		return nil, fmt.Errorf("player command: %w", err)
	}
	return &FFPlayPlayer{command: cmd}, nil
}

func (p *FFPlayPlayer) Available() error {
	return p.command.lookPath()
}

// Play starts playback and returns without waiting for it to finish.
// Speaking rate is applied by the synthesizer; ffplay has no pitch control.
// audio is always closed.
func (p *FFPlayPlayer) Play(ctx context.Context, audio io.ReadCloser, utterance domain.Utterance) (ports.Playback, error) {
	if utterance.Pitch != 0 && utterance.Pitch != 1 {
		_ = audio.Close()
		return nil, ErrUnsupportedPitch
	}

	cmd := p.command.build(ctx, "-nodisp", "-autoexit", "-hide_banner", "-loglevel", "warning", "-i", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = audio.Close()
		return nil, fmt.Errorf("failed to create player stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = audio.Close()
		return nil, fmt.Errorf("failed to start player: %w", err)
	}

	playback := &processPlayback{
		process: cmd.Process,
		stderr:  &stderr,
		waitErr: make(chan error, 1),
		done:    make(chan struct{}),
	}

	go func() {
		_, _ = io.Copy(stdin, audio)
		_ = audio.Close()
		_ = stdin.Close()
	}()
	go func() {
		playback.waitErr <- cmd.Wait()
		close(playback.waitErr)
		close(playback.done)
	}()

	return playback, nil
}

type processPlayback struct {
	process *os.Process
	stderr  *bytes.Buffer
	waitErr chan error
	done    chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (p *processPlayback) Done() <-chan struct{} {
	return p.done
}

// Stop interrupts playback. It is a no-op once playback has finished.
func (p *processPlayback) Stop() error {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		p.stopErr = terminate(p.process, p.waitErr, 500*time.Millisecond)
		if p.stopErr != nil && p.stderr != nil && p.stderr.Len() > 0 {
			p.stopErr = fmt.Errorf("%w: %s", p.stopErr, trimOutput(p.stderr.String()))
		}
	})
	return p.stopErr
}
