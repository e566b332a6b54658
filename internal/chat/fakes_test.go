package chat

import (
	"context"
	"sync"

	"github.com/kalambet/reelchat/internal/backend"
)

type fakePlayer struct {
	mu      sync.Mutex
	src     string
	calls   []string
	seconds []int
	loadErr error
}

func (p *fakePlayer) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

func (p *fakePlayer) Load(ctx context.Context, src string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "load "+src)
	if p.loadErr != nil {
		return p.loadErr
	}
	p.src = src
	return nil
}

func (p *fakePlayer) SeekAndPlay(ctx context.Context, seconds int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "seek")
	p.seconds = append(p.seconds, seconds)
	return nil
}

func (p *fakePlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type fakeQuerier struct {
	mu       sync.Mutex
	results  []backend.QueryResult
	err      error
	calls    int
	gotName  string
	gotQuery string
	// release, when set, holds Query until it receives.
	release chan struct{}
	entered chan struct{}
}

func (q *fakeQuerier) Query(ctx context.Context, query, videoName string) ([]backend.QueryResult, error) {
	q.mu.Lock()
	q.calls++
	q.gotName = videoName
	q.gotQuery = query
	entered, release := q.entered, q.release
	q.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return q.results, q.err
}

type fakeVoiceBackend struct {
	mu         sync.Mutex
	cloneErr   error
	cloneCalls []string
	spoken     []string
	audio      []byte
}

func (b *fakeVoiceBackend) CreateVoiceClone(ctx context.Context, videoURL string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cloneCalls = append(b.cloneCalls, videoURL)
	return b.cloneErr
}

func (b *fakeVoiceBackend) SpeakMessage(ctx context.Context, videoURL, message string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spoken = append(b.spoken, videoURL+"|"+message)
	return b.audio, nil
}

func (b *fakeVoiceBackend) Clones() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.cloneCalls...)
}

// fakeAudio blocks Play until the context ends or done is closed.
type fakeAudio struct {
	started chan struct{}
	done    chan struct{}
}

func (a *fakeAudio) Play(ctx context.Context, audio []byte) error {
	if a.started != nil {
		a.started <- struct{}{}
	}
	if a.done == nil {
		return nil
	}
	select {
	case <-a.done:
	case <-ctx.Done():
	}
	return nil
}
