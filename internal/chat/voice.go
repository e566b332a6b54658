package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/reelchat/internal/logging"
	"github.com/kalambet/reelchat/internal/timestamp"
)

var (
	ErrVoiceDisabled    = errors.New("voice is turned off")
	ErrVoiceUnavailable = errors.New("voice is not available for this video")
	ErrAlreadyReading   = errors.New("another message is being read")
)

// VoiceBackend prepares a video's voice and synthesizes speech with it.
type VoiceBackend interface {
	CreateVoiceClone(ctx context.Context, videoURL string) error
	SpeakMessage(ctx context.Context, videoURL, message string) ([]byte, error)
}

// AudioPlayer plays synthesized audio until it ends or ctx is cancelled.
type AudioPlayer interface {
	Play(ctx context.Context, audio []byte) error
}

// VoiceState is a copy of the gate for rendering.
type VoiceState struct {
	Enabled   bool
	Available bool
	Failed    bool
	Reading   bool
	Source    string
}

// Voice gates read-aloud. Preparation is bound to one source; changing the
// source drops availability and re-prepares when voice is on.
type Voice struct {
	backend VoiceBackend
	audio   AudioPlayer
	logger  *slog.Logger

	mu        sync.Mutex
	enabled   bool
	source    string
	available bool
	failed    bool
	// epoch changes with the source and the enabled flag so a slow
	// preparation cannot mark a newer source available.
	epoch   uint64
	reading uint64
	cancel  context.CancelFunc
}

func NewVoice(b VoiceBackend, a AudioPlayer, logger *slog.Logger) *Voice {
	if logger == nil {
		logger = slog.Default()
	}
	return &Voice{backend: b, audio: a, logger: logging.WithComponent(logger, "voice")}
}

func (v *Voice) State() VoiceState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return VoiceState{
		Enabled:   v.enabled,
		Available: v.available,
		Failed:    v.failed,
		Reading:   v.cancel != nil,
		Source:    v.source,
	}
}

// Reading reports whether a message is being read aloud.
func (v *Voice) Reading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancel != nil
}

// Enable turns voice on and prepares the current source, if any. Enabling
// voice that is already on changes nothing; only an off/on toggle retries a
// failed source.
func (v *Voice) Enable(ctx context.Context) error {
	v.mu.Lock()
	if v.enabled {
		failed := v.failed
		v.mu.Unlock()
		if failed {
			return ErrVoiceUnavailable
		}
		return nil
	}
	v.enabled = true
	v.failed = false
	v.epoch++
	v.mu.Unlock()
	return v.prepare(ctx)
}

// Disable turns voice off, stops any reading and clears the error state.
func (v *Voice) Disable() {
	v.mu.Lock()
	v.enabled = false
	v.available = false
	v.failed = false
	v.epoch++
	v.stopLocked()
	v.mu.Unlock()
}

// SetSource binds voice to a new video. Playback stops and availability is
// reset; with voice on the new source is prepared right away.
func (v *Voice) SetSource(ctx context.Context, src string) error {
	v.mu.Lock()
	v.stopLocked()
	v.source = src
	v.available = false
	v.failed = false
	v.epoch++
	v.mu.Unlock()
	return v.prepare(ctx)
}

func (v *Voice) prepare(ctx context.Context) error {
	v.mu.Lock()
	if !v.enabled || v.source == "" {
		v.mu.Unlock()
		return nil
	}
	src, epoch := v.source, v.epoch
	v.mu.Unlock()

	err := v.backend.CreateVoiceClone(ctx, src)

	v.mu.Lock()
	defer v.mu.Unlock()
	if epoch != v.epoch {
		return nil
	}
	if err != nil {
		v.failed = true
		v.available = false
		v.logger.Error("voice preparation failed", "src", src, "error", err)
		return fmt.Errorf("%w: %v", ErrVoiceUnavailable, err)
	}
	v.available = true
	return nil
}

// ReadAloud speaks text with the current source's voice and blocks until
// playback ends. Timestamp markers are not read.
func (v *Voice) ReadAloud(ctx context.Context, text string) error {
	v.mu.Lock()
	switch {
	case !v.enabled:
		v.mu.Unlock()
		return ErrVoiceDisabled
	case !v.available || v.failed:
		v.mu.Unlock()
		return ErrVoiceUnavailable
	case v.cancel != nil:
		v.mu.Unlock()
		return ErrAlreadyReading
	}
	ctx, cancel := context.WithCancel(ctx)
	v.reading++
	id := v.reading
	v.cancel = cancel
	src := v.source
	v.mu.Unlock()

	defer func() {
		cancel()
		v.mu.Lock()
		if v.reading == id {
			v.cancel = nil
		}
		v.mu.Unlock()
	}()

	audio, err := v.backend.SpeakMessage(ctx, src, timestamp.Strip(text))
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		v.logger.Error("speech synthesis failed", "error", err)
		return fmt.Errorf("synthesizing speech: %w", err)
	}
	if err := v.audio.Play(ctx, audio); err != nil && ctx.Err() == nil {
		v.logger.Error("audio playback failed", "error", err)
		return fmt.Errorf("playing audio: %w", err)
	}
	return nil
}

// Stop interrupts the message being read, if any.
func (v *Voice) Stop() {
	v.mu.Lock()
	v.stopLocked()
	v.mu.Unlock()
}

func (v *Voice) stopLocked() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
		v.reading++
	}
}
