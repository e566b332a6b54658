package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/reelchat/internal/audio"
	"github.com/kalambet/reelchat/internal/chat"
	"github.com/kalambet/reelchat/internal/library"
	"github.com/kalambet/reelchat/internal/player"
	"github.com/kalambet/reelchat/internal/timestamp"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about your videos",
	Long: `Start an interactive chat about one video or the whole library.

A local player page opens in the browser; answers with timestamps can be
played from the terminal. Type /help inside the chat for commands.

Examples:
  reelchat chat
  reelchat chat --video Keynote
  reelchat chat --video all --no-browser`,
	RunE: func(cmd *cobra.Command, args []string) error {
		videoName, _ := cmd.Flags().GetString("video")
		noBrowser, _ := cmd.Flags().GetBool("no-browser")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireToken(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := player.New(a.logger)
		if err := srv.Start(ctx, a.cfg.Player.Port); err != nil {
			return err
		}
		defer srv.Close()
		printStep("Player at %s", srv.URL())
		if a.cfg.Player.OpenBrowser && !noBrowser {
			if err := openBrowser(srv.URL()); err != nil {
				printWarning("Could not open a browser: %v", err)
			}
		}

		speaker, err := audio.NewExecPlayer(a.cfg.Voice.Command, a.logger)
		if err != nil {
			return err
		}
		if !speaker.Available() {
			printWarning("Voice player %q not found; /read will fail until voice.command is set", a.cfg.Voice.Command)
		}

		voice := chat.NewVoice(a.client, speaker, a.logger)
		seek := chat.NewSeekController(srv, a.cfg.Player.SettleDelay)
		sess := chat.NewSession(a.client, srv, seek, voice, a.logger)

		ui := newChatUI(sess, voice, srv, library.NewService(a.client, a.logger), cmd.OutOrStdout(), a.logger)
		ui.greet()
		if videoName != "" {
			ui.handle(ctx, "/select "+videoName)
		}
		return ui.run(ctx, cmd.InOrStdin())
	},
}

func init() {
	chatCmd.Flags().String("video", "", "video to chat about (public id, list number, or \"all\")")
	chatCmd.Flags().Bool("no-browser", false, "do not open the player page")
}

// openBrowser opens url with the platform's default handler.
var openBrowser = func(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

const chatHelp = `Commands:
  /videos                 list your videos
  /select <n|name|all>    chat about a video, or "all" for the whole library
  /play [n|SSs|HH:MM:SS]  play the latest answer at its n-th timestamp or a time
  /voice on|off           read answers in the video's voice
  /read [n]               read message n (default: latest answer) aloud
  /stop                   stop reading
  /clear                  clear the conversation
  /help                   show this help
  /quit                   leave the chat
Anything else is sent as a question.`

type videoSource interface {
	List(ctx context.Context) ([]library.Video, error)
	Find(ctx context.Context, name string) (library.Video, error)
}

// syncWriter serializes writes from the REPL and the read-aloud goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(b)
}

// chatUI renders a chat.Session as a line-oriented REPL.
type chatUI struct {
	session *chat.Session
	voice   *chat.Voice
	pages   pageWatcher
	videos  videoSource
	out     io.Writer
	logger  *slog.Logger

	listed  []library.Video
	reading sync.WaitGroup
}

// pageWatcher reports whether anyone is looking at the player.
type pageWatcher interface {
	Clients() int
	URL() string
}

func newChatUI(s *chat.Session, v *chat.Voice, pages pageWatcher, videos videoSource, out io.Writer, logger *slog.Logger) *chatUI {
	if logger == nil {
		logger = slog.Default()
	}
	return &chatUI{session: s, voice: v, pages: pages, videos: videos, out: &syncWriter{w: out}, logger: logger}
}

func (u *chatUI) greet() {
	for i, m := range u.session.Messages() {
		u.render(i+1, m)
	}
	fmt.Fprintln(u.out, colorize(colorDim, "Type /help for commands."))
}

// run reads lines until EOF, /quit or ctx is done.
func (u *chatUI) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	defer u.reading.Wait()
	defer u.voice.Stop()
	for {
		fmt.Fprint(u.out, colorize(colorBold, "> "))
		select {
		case <-ctx.Done():
			fmt.Fprintln(u.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(u.out)
				return nil
			}
			if u.handle(ctx, line) {
				return nil
			}
		}
	}
}

// handle runs one line of input and reports whether the user asked to quit.
func (u *chatUI) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		u.ask(ctx, line)
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(u.out, chatHelp)
	case "/videos":
		u.listVideos(ctx)
	case "/select":
		u.selectVideo(ctx, arg)
	case "/play":
		u.play(ctx, arg)
	case "/voice":
		u.toggleVoice(ctx, arg)
	case "/read":
		u.read(ctx, arg)
	case "/stop":
		u.voice.Stop()
	case "/clear":
		u.session.Clear()
		fmt.Fprintln(u.out, colorize(colorDim, "Conversation cleared."))
	default:
		u.warn("Unknown command %s, try /help", name)
	}
	return false
}

func (u *chatUI) warn(format string, args ...any) {
	noticeWarning.fprint(u.out, format, args...)
}

func (u *chatUI) ask(ctx context.Context, text string) {
	added, err := u.session.Submit(ctx, text)
	if errors.Is(err, chat.ErrBusy) {
		u.warn("Still answering the previous question")
		return
	}
	if err != nil {
		u.warn("%s", errorText(err))
		return
	}
	msgs := u.session.Messages()
	for _, m := range added {
		if m.Role != chat.RoleBot {
			continue
		}
		u.render(indexOf(msgs, m.ID), m)
	}
}

func indexOf(msgs []chat.Message, id string) int {
	for i, m := range msgs {
		if m.ID == id {
			return i + 1
		}
	}
	return 0
}

func (u *chatUI) render(n int, m chat.Message) {
	who := colorize(colorCyan, "you")
	if m.Role == chat.RoleBot {
		who = colorize(colorGreen, "bot")
	}
	fmt.Fprintf(u.out, "%s %s %s\n", colorize(colorDim, fmt.Sprintf("[%d]", n)), who, strings.TrimSpace(m.Display()))

	if m.Source != "" {
		fmt.Fprintf(u.out, "    %s %s\n", colorize(colorDim, "from"), m.Source)
	}
	if controls := m.Controls(); len(controls) > 0 {
		parts := make([]string, len(controls))
		for i, c := range controls {
			parts[i] = fmt.Sprintf("%d) %s", i+1, c)
		}
		fmt.Fprintf(u.out, "    %s %s\n", colorize(colorCyan, "▶"), strings.Join(parts, "  "))
	}
}

func (u *chatUI) listVideos(ctx context.Context) {
	videos, err := u.videos.List(ctx)
	if err != nil {
		u.warn("%s", errorText(err))
		return
	}
	u.listed = videos
	printVideos(u.out, videos)
}

func (u *chatUI) selectVideo(ctx context.Context, arg string) {
	if arg == "" {
		u.warn("Usage: /select <n|name|all>")
		return
	}

	var sel chat.Selection
	if strings.EqualFold(arg, chat.AllVideosName) {
		sel = chat.SelectAll()
	} else {
		v, err := u.resolveVideo(ctx, arg)
		if err != nil {
			u.warn("%s", errorText(err))
			return
		}
		sel = chat.SelectVideo(v)
	}

	if err := u.session.Select(ctx, sel); err != nil {
		u.warn("%s", err)
	}
	fmt.Fprintf(u.out, "%s %s\n", colorize(colorDim, "Chatting about"), colorize(colorBold, sel.String()))
}

func (u *chatUI) resolveVideo(ctx context.Context, arg string) (library.Video, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if u.listed == nil {
			videos, err := u.videos.List(ctx)
			if err != nil {
				return library.Video{}, err
			}
			u.listed = videos
		}
		if n < 1 || n > len(u.listed) {
			return library.Video{}, fmt.Errorf("no video number %d, see /videos", n)
		}
		return u.listed[n-1], nil
	}
	v, err := u.videos.Find(ctx, arg)
	if errors.Is(err, library.ErrNotFound) {
		return library.Video{}, fmt.Errorf("no video named %q, see /videos", arg)
	}
	return v, err
}

// latestAnswer is the most recent bot message that points into a video.
func (u *chatUI) latestAnswer() (chat.Message, bool) {
	msgs := u.session.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleBot && len(msgs[i].Controls()) > 0 {
			return msgs[i], true
		}
	}
	return chat.Message{}, false
}

func (u *chatUI) play(ctx context.Context, arg string) {
	msg, ok := u.latestAnswer()
	if !ok {
		u.warn("No answer with a timestamp yet")
		return
	}
	controls := msg.Controls()

	ts := controls[0]
	switch {
	case arg == "":
	case strings.Contains(arg, ":"):
		ts = arg
	case strings.HasSuffix(arg, "s"):
		n, err := strconv.Atoi(strings.TrimSuffix(arg, "s"))
		if err != nil || n < 0 {
			u.warn("Pick a timestamp between 1 and %d, or seconds like 45s", len(controls))
			return
		}
		ts = timestamp.Format(n)
	default:
		// Numbers past the last control are a seconds offset.
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			u.warn("Pick a timestamp between 1 and %d, or seconds like 45s", len(controls))
			return
		}
		if n >= 1 && n <= len(controls) {
			ts = controls[n-1]
		} else {
			ts = timestamp.Format(n)
		}
	}

	if err := u.session.Play(ctx, msg, ts); err != nil {
		if errors.Is(err, player.ErrNoSource) {
			u.warn("Nothing loaded in the player; /select a video first")
			return
		}
		u.warn("%s", err)
		return
	}
	fmt.Fprintf(u.out, "%s %s\n", colorize(colorCyan, "▶ playing from"), ts)
	if u.pages != nil && u.pages.Clients() == 0 && u.pages.URL() != "" {
		u.warn("No player page is open; visit %s", u.pages.URL())
	}
}

func (u *chatUI) toggleVoice(ctx context.Context, arg string) {
	switch strings.ToLower(arg) {
	case "on":
		if err := u.voice.Enable(ctx); err != nil {
			u.logger.Debug("voice enable", "error", err)
			u.warn("Voice is not available for this video")
			return
		}
		if u.voice.State().Available {
			fmt.Fprintln(u.out, colorize(colorDim, "Voice on."))
		} else {
			fmt.Fprintln(u.out, colorize(colorDim, "Voice on; it becomes available once a video is playing."))
		}
	case "off":
		u.voice.Disable()
		fmt.Fprintln(u.out, colorize(colorDim, "Voice off."))
	default:
		u.warn("Usage: /voice on|off")
	}
}

func (u *chatUI) read(ctx context.Context, arg string) {
	var msg chat.Message
	if arg == "" {
		msgs := u.session.Messages()
		found := false
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == chat.RoleBot {
				msg, found = msgs[i], true
				break
			}
		}
		if !found {
			u.warn("Nothing to read yet")
			return
		}
	} else {
		n, err := strconv.Atoi(arg)
		m, ok := u.session.Message(n - 1)
		if err != nil || !ok {
			u.warn("No message number %s", arg)
			return
		}
		msg = m
	}

	state := u.voice.State()
	switch {
	case !state.Enabled:
		u.warn("Voice is off, use /voice on")
		return
	case state.Reading:
		u.warn("Already reading, use /stop first")
		return
	}

	u.reading.Add(1)
	go func() {
		defer u.reading.Done()
		err := u.voice.ReadAloud(ctx, msg.Text)
		switch {
		case err == nil:
		case errors.Is(err, chat.ErrVoiceUnavailable):
			u.warn("Voice is not available for this video")
		case errors.Is(err, chat.ErrAlreadyReading):
			u.warn("Already reading, use /stop first")
		default:
			u.logger.Debug("read aloud", "error", err)
			u.warn("Could not read the message aloud")
		}
	}()
}
