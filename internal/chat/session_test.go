package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/reelchat/internal/backend"
	"github.com/kalambet/reelchat/internal/library"
)

var talk = library.Video{PublicID: "talk", URL: "https://cdn/v1/talk.mp4"}

func newTestSession(q *fakeQuerier, p *fakePlayer, v *Voice) *Session {
	return NewSession(q, p, NewSeekController(p, 0), v, nil)
}

func TestNewSessionGreets(t *testing.T) {
	s := newTestSession(&fakeQuerier{}, &fakePlayer{}, nil)
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleBot || msgs[0].Text != Greeting {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSubmitBlankIsNoop(t *testing.T) {
	q := &fakeQuerier{}
	s := newTestSession(q, &fakePlayer{}, nil)
	s.Select(context.Background(), SelectVideo(talk))

	added, err := s.Submit(context.Background(), "   \n")
	if err != nil || added != nil {
		t.Errorf("Submit(blank) = %v, %v", added, err)
	}
	if q.calls != 0 || len(s.Messages()) != 0 {
		t.Errorf("calls = %d, messages = %d", q.calls, len(s.Messages()))
	}
}

func TestSubmitWithoutSelection(t *testing.T) {
	q := &fakeQuerier{}
	s := newTestSession(q, &fakePlayer{}, nil)

	added, err := s.Submit(context.Background(), "what happens?")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if q.calls != 0 {
		t.Errorf("backend called %d times without a selection", q.calls)
	}
	if len(added) != 2 || added[0].Role != RoleUser || added[1].Text != NoSelectionReply {
		t.Errorf("added = %+v", added)
	}
}

func TestSubmitTopResult(t *testing.T) {
	q := &fakeQuerier{results: []backend.QueryResult{
		{Content: "It starts [00:00:05]", Timestamp: "00:00:05", Source: "talk", VideoURL: talk.URL},
		{Content: "second", Timestamp: "00:10:00", Source: "talk"},
	}}
	p := &fakePlayer{}
	s := newTestSession(q, p, nil)
	s.Select(context.Background(), SelectVideo(talk))

	added, err := s.Submit(context.Background(), "  how does it start? ")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if q.gotName != "talk" || q.gotQuery != "how does it start?" {
		t.Errorf("query = %q / %q", q.gotQuery, q.gotName)
	}
	if len(added) != 2 {
		t.Fatalf("added %d messages, want 2", len(added))
	}
	bot := added[1]
	if bot.Text != "It starts [00:00:05]" || bot.Timestamp != "00:00:05" || bot.Source != "talk" || bot.VideoURL != talk.URL {
		t.Errorf("bot = %+v", bot)
	}
	if len(s.Messages()) != 2 {
		t.Errorf("messages = %d, want 2", len(s.Messages()))
	}
}

func TestSubmitNoResults(t *testing.T) {
	q := &fakeQuerier{results: []backend.QueryResult{}}
	s := newTestSession(q, &fakePlayer{}, nil)
	s.Select(context.Background(), SelectVideo(talk))

	added, _ := s.Submit(context.Background(), "anything?")
	if len(added) != 2 || added[1].Text != NotFoundReply {
		t.Errorf("added = %+v", added)
	}
}

func TestSubmitFailureHidesError(t *testing.T) {
	q := &fakeQuerier{err: errors.New("dial tcp: connection refused")}
	s := newTestSession(q, &fakePlayer{}, nil)
	s.Select(context.Background(), SelectVideo(talk))

	added, err := s.Submit(context.Background(), "anything?")
	if err != nil {
		t.Fatalf("Submit returned %v, want the error swallowed", err)
	}
	if len(added) != 2 || added[1].Text != FailureReply {
		t.Errorf("added = %+v", added)
	}
}

func TestSubmitAllVideosAdoptsSource(t *testing.T) {
	other := "https://cdn/v1/other.mp4"
	q := &fakeQuerier{results: []backend.QueryResult{{Content: "there", Timestamp: "00:01:00", Source: "other", VideoURL: other}}}
	p := &fakePlayer{src: talk.URL}
	vb := &fakeVoiceBackend{}
	v := NewVoice(vb, &fakeAudio{}, nil)
	s := newTestSession(q, p, v)

	s.Select(context.Background(), SelectAll())
	v.Enable(context.Background())

	if _, err := s.Submit(context.Background(), "where?"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if q.gotName != AllVideosName {
		t.Errorf("video_name = %q, want %q", q.gotName, AllVideosName)
	}
	if p.Source() != other {
		t.Errorf("player source = %q, want %q", p.Source(), other)
	}
	if st := v.State(); st.Source != other || !st.Available {
		t.Errorf("voice state = %+v, want prepared for %q", st, other)
	}
}

func TestSubmitAllVideosSameSourceKeepsPlayer(t *testing.T) {
	q := &fakeQuerier{results: []backend.QueryResult{{Content: "here", VideoURL: talk.URL}}}
	p := &fakePlayer{src: talk.URL}
	s := newTestSession(q, p, nil)
	s.Select(context.Background(), SelectAll())

	s.Submit(context.Background(), "where?")
	for _, c := range p.Calls() {
		if c == "load "+talk.URL {
			t.Errorf("player reloaded the current source: %v", p.Calls())
		}
	}
}

func TestSubmitBusy(t *testing.T) {
	q := &fakeQuerier{
		results: []backend.QueryResult{{Content: "a"}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := newTestSession(q, &fakePlayer{}, nil)
	s.Select(context.Background(), SelectVideo(talk))

	done := make(chan struct{})
	go func() {
		s.Submit(context.Background(), "first")
		close(done)
	}()
	<-q.entered

	if !s.Submitting() {
		t.Error("Submitting() = false during a query")
	}
	if _, err := s.Submit(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}

	close(q.release)
	<-done
	if s.Submitting() {
		t.Error("Submitting() = true after the answer")
	}
}

func TestStaleAnswerDropped(t *testing.T) {
	q := &fakeQuerier{
		results: []backend.QueryResult{{Content: "late answer"}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := newTestSession(q, &fakePlayer{}, nil)
	s.Select(context.Background(), SelectVideo(talk))

	type result struct {
		added []Message
		err   error
	}
	done := make(chan result, 1)
	go func() {
		added, err := s.Submit(context.Background(), "question")
		done <- result{added, err}
	}()
	<-q.entered

	s.Select(context.Background(), SelectVideo(library.Video{PublicID: "other", URL: "u2"}))
	close(q.release)

	select {
	case r := <-done:
		if r.err != nil || r.added != nil {
			t.Errorf("stale Submit = %+v, %v", r.added, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return")
	}
	for _, m := range s.Messages() {
		if m.Text == "late answer" {
			t.Error("stale answer appended after selection change")
		}
	}
}

func TestClearDropsPendingAnswer(t *testing.T) {
	q := &fakeQuerier{
		results: []backend.QueryResult{{Content: "late"}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := newTestSession(q, &fakePlayer{}, nil)
	s.Select(context.Background(), SelectVideo(talk))

	done := make(chan struct{})
	go func() {
		s.Submit(context.Background(), "q")
		close(done)
	}()
	<-q.entered
	s.Clear()
	close(q.release)
	<-done

	if n := len(s.Messages()); n != 0 {
		t.Errorf("messages = %d after Clear, want 0", n)
	}
}

func TestClearFreesSubmitForNewQuestion(t *testing.T) {
	first := make(chan struct{})
	q := &fakeQuerier{
		results: []backend.QueryResult{{Content: "answer"}},
		entered: make(chan struct{}, 1),
		release: first,
	}
	s := newTestSession(q, &fakePlayer{}, nil)
	s.Select(context.Background(), SelectVideo(talk))

	firstDone := make(chan struct{})
	go func() {
		s.Submit(context.Background(), "old question")
		close(firstDone)
	}()
	<-q.entered
	s.Clear()
	if s.Submitting() {
		t.Error("Submitting() = true after Clear")
	}

	second := make(chan struct{})
	q.mu.Lock()
	q.release = second
	q.mu.Unlock()

	secondDone := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "new question")
		secondDone <- err
	}()
	<-q.entered

	close(first)
	<-firstDone
	if !s.Submitting() {
		t.Error("stale answer cleared the busy flag of the newer question")
	}

	close(second)
	if err := <-secondDone; err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if s.Submitting() {
		t.Error("Submitting() = true after the answer")
	}
	msgs := s.Messages()
	if len(msgs) != 2 || msgs[0].Text != "new question" || msgs[1].Text != "answer" {
		t.Errorf("messages = %+v, want the new question and its answer", msgs)
	}
}

func TestSelectLoadsPlayerAndResetsVoice(t *testing.T) {
	p := &fakePlayer{}
	vb := &fakeVoiceBackend{}
	v := NewVoice(vb, &fakeAudio{}, nil)
	s := newTestSession(&fakeQuerier{}, p, v)
	v.Enable(context.Background())

	if err := s.Select(context.Background(), SelectVideo(talk)); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.Source() != talk.URL {
		t.Errorf("player source = %q", p.Source())
	}
	if len(s.Messages()) != 0 {
		t.Errorf("messages not cleared")
	}
	if clones := vb.Clones(); len(clones) != 1 || clones[0] != talk.URL {
		t.Errorf("clone calls = %v", clones)
	}
}

func TestSelectAllWithoutPlaybackSkipsVoice(t *testing.T) {
	vb := &fakeVoiceBackend{}
	v := NewVoice(vb, &fakeAudio{}, nil)
	s := newTestSession(&fakeQuerier{}, &fakePlayer{}, v)
	v.Enable(context.Background())

	s.Select(context.Background(), SelectAll())
	if clones := vb.Clones(); len(clones) != 0 {
		t.Errorf("voice prepared without a source: %v", clones)
	}
}

func TestPlaySwitchesSourceThenSeeks(t *testing.T) {
	p := &fakePlayer{src: talk.URL}
	s := newTestSession(&fakeQuerier{}, p, nil)

	msg := Message{Text: "see [00:01:30]", VideoURL: "https://cdn/v1/other.mp4"}
	if err := s.Play(context.Background(), msg, "00:01:30"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	calls := p.Calls()
	if len(calls) != 2 || calls[0] != "load https://cdn/v1/other.mp4" || calls[1] != "seek" {
		t.Errorf("calls = %v", calls)
	}
	if p.seconds[0] != 90 {
		t.Errorf("seconds = %d, want 90", p.seconds[0])
	}
}
