// Package audio plays synthesized speech through an external player.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kalambet/reelchat/internal/logging"
)

const maxStderrBytes = 4096

// ExecPlayer writes audio to a temp file and hands the path to a command
// such as "ffplay -nodisp -autoexit". Cancelling the context kills the
// command.
type ExecPlayer struct {
	name   string
	args   []string
	logger *slog.Logger
}

// NewExecPlayer parses command into a program and its arguments. The audio
// file path is appended as the last argument.
func NewExecPlayer(command string, logger *slog.Logger) (*ExecPlayer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("audio: empty player command")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecPlayer{
		name:   fields[0],
		args:   fields[1:],
		logger: logging.WithComponent(logger, "audio"),
	}, nil
}

// Available reports whether the player program can be found.
func (p *ExecPlayer) Available() bool {
	_, err := exec.LookPath(p.name)
	return err == nil
}

func (p *ExecPlayer) Play(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return errors.New("audio: nothing to play")
	}

	f, err := os.CreateTemp("", "reelchat-speech-*.mp3")
	if err != nil {
		return fmt.Errorf("creating temp audio file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return fmt.Errorf("writing temp audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp audio file: %w", err)
	}

	args := append(append([]string{}, p.args...), path)
	cmd := exec.CommandContext(ctx, p.name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}
	cmd.Stdout = io.Discard
	cmd.WaitDelay = 2 * time.Second

	p.logger.Debug("playing audio", "cmd", p.name, "bytes", len(audio))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", p.name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// limitedWriter keeps the first limit bytes and drops the rest.
type limitedWriter struct {
	w     io.Writer
	limit int
	n     int
}

func (l *limitedWriter) Write(b []byte) (int, error) {
	if l.n >= l.limit {
		return len(b), nil
	}
	keep := b
	if len(keep) > l.limit-l.n {
		keep = keep[:l.limit-l.n]
	}
	n, err := l.w.Write(keep)
	l.n += n
	if err != nil {
		return n, err
	}
	return len(b), nil
}
