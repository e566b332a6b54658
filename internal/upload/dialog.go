// Package upload drives the two-phase upload: the file goes to the media
// host first, then the backend is told where to find it.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/reelchat/internal/backend"
	"github.com/kalambet/reelchat/internal/logging"
	"github.com/kalambet/reelchat/internal/mediahost"
)

// FailureMessage is shown when neither the host nor the backend explained
// what went wrong.
const FailureMessage = "Failed to upload video"

// DefaultConfirmDelay is how long a finished upload stays on screen.
const DefaultConfirmDelay = 500 * time.Millisecond

var (
	ErrInFlight = errors.New("an upload is already in progress")
	ErrNoFile   = errors.New("no file selected")
	ErrNotVideo = errors.New("not a video file")
	ErrTooLarge = errors.New("file exceeds the 2 GB limit")
)

type State int

const (
	Idle State = iota
	Uploading
	Registering
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Uploading:
		return "uploading"
	case Registering:
		return "registering"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Registrar is the backend half of an upload.
type Registrar interface {
	RegisterUpload(ctx context.Context, reg backend.Registration) (backend.RegistrationResult, error)
}

// Snapshot is a copy of the dialog state for rendering.
type Snapshot struct {
	State       State
	Progress    int
	Error       string
	File        *File
	Title       string
	Description string
}

// Result describes a finished upload.
type Result struct {
	Asset      mediahost.Asset
	Title      string
	Transcript string
}

// Dialog holds one upload's inputs and progress. It is safe for concurrent
// use; observers get a Snapshot after every change.
type Dialog struct {
	host      mediahost.Host
	registrar Registrar
	logger    *slog.Logger

	// ConfirmDelay is waited after reaching 100% before the dialog resets.
	ConfirmDelay time.Duration
	// OnChange, when set, is called with every new state. It must not call
	// back into the Dialog.
	OnChange func(Snapshot)

	mu          sync.Mutex
	file        *File
	title       string
	description string
	state       State
	progress    int
	errText     string
}

func NewDialog(host mediahost.Host, registrar Registrar, logger *slog.Logger) *Dialog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialog{
		host:         host,
		registrar:    registrar,
		logger:       logging.WithComponent(logger, "upload"),
		ConfirmDelay: DefaultConfirmDelay,
	}
}

func (d *Dialog) inFlight() bool {
	return d.state == Uploading || d.state == Registering
}

// SelectFile validates path and makes it the file to upload.
func (d *Dialog) SelectFile(path string) error {
	f, err := Inspect(path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	if d.inFlight() {
		d.mu.Unlock()
		return ErrInFlight
	}
	d.file = &f
	d.errText = ""
	d.mu.Unlock()
	d.notify()
	return nil
}

func (d *Dialog) SetTitle(title string) error {
	return d.edit(func() { d.title = title })
}

func (d *Dialog) SetDescription(description string) error {
	return d.edit(func() { d.description = description })
}

func (d *Dialog) edit(apply func()) error {
	d.mu.Lock()
	if d.inFlight() {
		d.mu.Unlock()
		return ErrInFlight
	}
	apply()
	d.mu.Unlock()
	d.notify()
	return nil
}

// Snapshot returns the current state.
func (d *Dialog) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Dialog) snapshotLocked() Snapshot {
	s := Snapshot{
		State:       d.state,
		Progress:    d.progress,
		Error:       d.errText,
		Title:       d.title,
		Description: d.description,
	}
	if d.file != nil {
		f := *d.file
		s.File = &f
	}
	return s
}

func (d *Dialog) notify() {
	if d.OnChange == nil {
		return
	}
	d.OnChange(d.Snapshot())
}

// Cancel closes the dialog and discards its inputs. It is refused while an
// upload is running.
func (d *Dialog) Cancel() error {
	d.mu.Lock()
	if d.inFlight() {
		d.mu.Unlock()
		return ErrInFlight
	}
	d.resetLocked()
	d.mu.Unlock()
	d.notify()
	return nil
}

func (d *Dialog) resetLocked() {
	d.file = nil
	d.title = ""
	d.description = ""
	d.state = Idle
	d.progress = 0
	d.errText = ""
}

// Start runs both phases. The backend is never called before the media host
// returned a URL. On failure the inputs are kept so the user can retry.
func (d *Dialog) Start(ctx context.Context) (Result, error) {
	d.mu.Lock()
	if d.inFlight() {
		d.mu.Unlock()
		return Result{}, ErrInFlight
	}
	if d.file == nil {
		d.mu.Unlock()
		return Result{}, ErrNoFile
	}
	file := *d.file
	title := strings.TrimSpace(d.title)
	if title == "" {
		title = file.Name
	}
	description := strings.TrimSpace(d.description)
	d.state = Uploading
	d.progress = 0
	d.errText = ""
	d.mu.Unlock()
	d.notify()

	asset, err := d.uploadToHost(ctx, file, title, description)
	if err != nil {
		return Result{}, d.fail("media host upload", err)
	}
	if asset.SecureURL == "" {
		return Result{}, d.fail("media host upload", errors.New("host returned no URL"))
	}

	d.setPhase(Registering, 60)

	res, err := d.registrar.RegisterUpload(ctx, backend.Registration{
		VideoURL:    asset.SecureURL,
		PublicID:    title,
		Title:       title,
		Description: description,
	})
	if err != nil {
		return Result{}, d.fail("backend registration", err)
	}
	d.setPhase(Registering, 95)

	d.logger.Info("upload complete", "title", title, "url", asset.SecureURL, "transcript_chars", len(res.Transcript))
	d.setPhase(Done, 100)

	result := Result{Asset: asset, Title: title, Transcript: res.Transcript}

	select {
	case <-time.After(d.ConfirmDelay):
	case <-ctx.Done():
	}
	d.mu.Lock()
	d.resetLocked()
	d.mu.Unlock()
	d.notify()

	return result, nil
}

func (d *Dialog) uploadToHost(ctx context.Context, file File, title, description string) (mediahost.Asset, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return mediahost.Asset{}, fmt.Errorf("opening %s: %w", file.Name, err)
	}
	defer f.Close()

	progress := func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := int(math.Round(float64(sent) * 60 / float64(total)))
		if pct > 60 {
			pct = 60
		}
		d.mu.Lock()
		changed := d.state == Uploading && pct > d.progress
		if changed {
			d.progress = pct
		}
		d.mu.Unlock()
		if changed {
			d.notify()
		}
	}

	return d.host.Upload(ctx, mediahost.Source{
		Name:        file.Name,
		Size:        file.Size,
		ContentType: file.ContentType,
		Body:        f,
	}, mediahost.Request{PublicID: title, Description: description}, progress)
}

func (d *Dialog) setPhase(state State, progress int) {
	d.mu.Lock()
	d.state = state
	d.progress = progress
	d.mu.Unlock()
	d.notify()
}

func (d *Dialog) fail(phase string, err error) error {
	msg := failureText(err)
	d.logger.Error("upload failed", "phase", phase, "error", err)

	d.mu.Lock()
	d.state = Failed
	d.errText = msg
	d.mu.Unlock()
	d.notify()

	return fmt.Errorf("%s: %w", phase, err)
}

// failureText prefers an explanation from the media host or the backend.
func failureText(err error) string {
	var hostErr *mediahost.Error
	if errors.As(err, &hostErr) && hostErr.Message != "" {
		return hostErr.Message
	}
	return backend.UserMessage(err, FailureMessage)
}
