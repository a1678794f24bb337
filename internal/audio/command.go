package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// command is an external program plus its leading arguments.
type command struct {
	path string
	args []string
}

func parseCommand(line string, fallback string) (command, error) {
	if strings.TrimSpace(line) == "" {
		line = fallback
	}
	words, err := shellwords.Parse(line)
	if err != nil {
		return command{}, fmt.Errorf("parse %q: %w", line, err)
	}
	if len(words) == 0 {
		return command{}, errors.New("command is empty")
	}
	return command{path: words[0], args: words[1:]}, nil
}

func (c command) lookPath() error {
	if _, err := exec.LookPath(c.path); err != nil {
		return fmt.Errorf("%s not available: %w", c.path, err)
	}
	return nil
}

func (c command) build(ctx context.Context, extra ...string) *exec.Cmd {
	args := make([]string, 0, len(c.args)+len(extra))
	args = append(args, c.args...)
	args = append(args, extra...)
	return exec.CommandContext(ctx, c.path, args...)
}

// terminate interrupts process and waits up to grace before killing it.
func terminate(process *os.Process, waitErr <-chan error, grace time.Duration) error {
	if process != nil {
		_ = process.Signal(os.Interrupt)
	}

	select {
	case err, ok := <-waitErr:
		if ok {
			return normalizeStopErr(err)
		}
		return nil
	case <-time.After(grace):
		if process != nil {
			_ = process.Kill()
		}
		err, ok := <-waitErr
		if ok {
			return normalizeStopErr(err)
		}
		return nil
	}
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	return strings.TrimSpace(input)
}
