package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/reelchat/internal/backend"
	"github.com/kalambet/reelchat/internal/chat"
	"github.com/kalambet/reelchat/internal/library"
	"github.com/kalambet/reelchat/internal/player"
)

type nullTokens struct{}

func (nullTokens) Token() (string, error) { return "tok", nil }
func (nullTokens) ClearToken() error      { return nil }

type recordingAudio struct {
	mu     sync.Mutex
	played [][]byte
}

func (a *recordingAudio) Play(_ context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.played = append(a.played, audio)
	return nil
}

type testChat struct {
	ui     *chatUI
	out    *bytes.Buffer
	player *player.Server
	audio  *recordingAudio
	ts     *testServer
}

const (
	keynoteURL = "https://res.cloudinary.com/demo/video/upload/v1/Keynote.mp4"
	standupURL = "https://res.cloudinary.com/demo/video/upload/v2/Standup.mp4"
)

func newTestChat(t *testing.T) *testChat {
	t.Helper()
	old := noColor
	noColor = true
	t.Cleanup(func() { noColor = old })

	ts := newTestServer(t, map[string]string{
		"GET /preview":        `{"videos":[{"publicID":"Keynote","video_url":"` + keynoteURL + `"},{"publicID":"Standup","video_url":"` + standupURL + `"}]}`,
		"POST /query":         `{"results":[{"content":"Pricing is at [00:01:30] and [00:02:00].","timestamp":"00:01:30","source":"Standup","video_url":"` + standupURL + `"}]}`,
		"POST /create_clone":  `{}`,
		"POST /speak_message": `ID3-audio`,
	})
	client, err := backend.New(ts.server.URL, 5*time.Second, nullTokens{}, discardLogger)
	if err != nil {
		t.Fatal(err)
	}

	p := player.New(discardLogger)
	audio := &recordingAudio{}
	voice := chat.NewVoice(client, audio, discardLogger)
	sess := chat.NewSession(client, p, chat.NewSeekController(p, 0), voice, discardLogger)

	var out bytes.Buffer
	ui := newChatUI(sess, voice, p, library.NewService(client, discardLogger), &out, discardLogger)
	return &testChat{ui: ui, out: &out, player: p, audio: audio, ts: ts}
}

func (c *testChat) send(lines ...string) string {
	c.out.Reset()
	for _, l := range lines {
		c.ui.handle(context.Background(), l)
	}
	return c.out.String()
}

func TestChatGreets(t *testing.T) {
	c := newTestChat(t)
	c.ui.greet()
	if !strings.Contains(c.out.String(), chat.Greeting) {
		t.Errorf("output = %q, want greeting", c.out.String())
	}
}

func TestChatQuestionWithoutSelection(t *testing.T) {
	c := newTestChat(t)
	out := c.send("what is this about?")
	if !strings.Contains(out, chat.NoSelectionReply) {
		t.Errorf("output = %q", out)
	}
	for _, r := range c.ts.recorded() {
		if r.Path == "/query" {
			t.Error("query sent without a selection")
		}
	}
}

func TestChatAllVideosAnswer(t *testing.T) {
	c := newTestChat(t)
	out := c.send("/select all", "how much does it cost?")

	if !strings.Contains(out, "Chatting about All videos") {
		t.Errorf("missing selection line:\n%s", out)
	}
	if strings.Contains(out, "[00:01:30]") {
		t.Errorf("markers not stripped:\n%s", out)
	}
	if !strings.Contains(out, "1) 00:01:30  2) 00:02:00") {
		t.Errorf("missing controls:\n%s", out)
	}
	if !strings.Contains(out, "from Standup") {
		t.Errorf("missing source:\n%s", out)
	}
	if got := c.player.Source(); got != standupURL {
		t.Errorf("player source = %q, want adopted %q", got, standupURL)
	}

	var sawAll bool
	for _, r := range c.ts.recorded() {
		if r.Path == "/query" && strings.Contains(r.Body, `"video_name":"all"`) {
			sawAll = true
		}
	}
	if !sawAll {
		t.Error("query did not target all videos")
	}
}

func TestChatSelectByNumber(t *testing.T) {
	c := newTestChat(t)
	out := c.send("/videos", "/select 1")
	if !strings.Contains(out, "Chatting about Keynote") {
		t.Errorf("output:\n%s", out)
	}
	if got := c.player.Source(); got != keynoteURL {
		t.Errorf("player source = %q, want %q", got, keynoteURL)
	}

	out = c.send("/select 9")
	if !strings.Contains(out, "no video number 9") {
		t.Errorf("output = %q", out)
	}
}

func TestChatSelectUnknownName(t *testing.T) {
	c := newTestChat(t)
	out := c.send("/select nope")
	if !strings.Contains(out, `no video named "nope"`) {
		t.Errorf("output = %q", out)
	}
}

func TestChatPlay(t *testing.T) {
	c := newTestChat(t)
	if out := c.send("/play"); !strings.Contains(out, "No answer with a timestamp yet") {
		t.Errorf("output = %q", out)
	}

	c.send("/select Keynote", "pricing?")
	out := c.send("/play 2")
	if !strings.Contains(out, "playing from 00:02:00") {
		t.Errorf("output = %q", out)
	}
	if got := c.player.Source(); got != standupURL {
		t.Errorf("player source = %q, want the answer's video", got)
	}

	if out := c.send("/play 7"); !strings.Contains(out, "playing from 00:00:07") {
		t.Errorf("number past the controls: output = %q", out)
	}
	if out := c.send("/play 45s"); !strings.Contains(out, "playing from 00:00:45") {
		t.Errorf("seconds suffix: output = %q", out)
	}
	if out := c.send("/play -1"); !strings.Contains(out, "between 1 and 2") {
		t.Errorf("negative: output = %q", out)
	}
	if out := c.send("/play soon"); !strings.Contains(out, "between 1 and 2") {
		t.Errorf("word: output = %q", out)
	}
	if out := c.send("/play 00:00:10"); !strings.Contains(out, "playing from 00:00:10") {
		t.Errorf("output = %q", out)
	}
}

type fakePages struct{ clients int }

func (f fakePages) Clients() int { return f.clients }
func (f fakePages) URL() string  { return "http://127.0.0.1:4750/" }

func TestChatPlayHintsWhenNoPageOpen(t *testing.T) {
	c := newTestChat(t)
	c.ui.pages = fakePages{}
	c.send("/select Keynote", "pricing?")
	if out := c.send("/play"); !strings.Contains(out, "No player page is open; visit http://127.0.0.1:4750/") {
		t.Errorf("output = %q", out)
	}

	c.ui.pages = fakePages{clients: 1}
	if out := c.send("/play"); strings.Contains(out, "No player page is open") {
		t.Errorf("hint shown with a page connected: %q", out)
	}
}

func TestChatClear(t *testing.T) {
	c := newTestChat(t)
	c.send("/select all", "pricing?")
	c.send("/clear")
	if n := len(c.ui.session.Messages()); n != 0 {
		t.Errorf("messages = %d after /clear", n)
	}
}

func TestChatReadAloud(t *testing.T) {
	c := newTestChat(t)
	if out := c.send("/select Keynote", "/read"); !strings.Contains(out, "Nothing to read yet") {
		t.Errorf("output = %q", out)
	}

	c.send("pricing?")
	if out := c.send("/read"); !strings.Contains(out, "Voice is off") {
		t.Errorf("output = %q", out)
	}

	out := c.send("/voice on")
	if !strings.Contains(out, "Voice on.") {
		t.Fatalf("output = %q", out)
	}
	c.send("/read")
	c.ui.reading.Wait()

	c.audio.mu.Lock()
	defer c.audio.mu.Unlock()
	if len(c.audio.played) != 1 || string(c.audio.played[0]) != "ID3-audio" {
		t.Errorf("played = %q", c.audio.played)
	}
}

func TestChatUnknownCommandAndQuit(t *testing.T) {
	c := newTestChat(t)
	if out := c.send("/dance"); !strings.Contains(out, "Unknown command /dance") {
		t.Errorf("output = %q", out)
	}
	if !c.ui.handle(context.Background(), "/quit") {
		t.Error("/quit did not end the chat")
	}
}

func TestChatRunStopsAtEOF(t *testing.T) {
	c := newTestChat(t)
	done := make(chan error, 1)
	go func() {
		done <- c.ui.run(context.Background(), strings.NewReader("/help\n"))
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return at EOF")
	}
	if !strings.Contains(c.out.String(), "/select <n|name|all>") {
		t.Errorf("help not printed:\n%s", c.out.String())
	}
}
