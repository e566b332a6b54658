package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/reelchat/internal/backend"
	"github.com/kalambet/reelchat/internal/logging"
)

// ErrBusy is returned by Submit while a previous question is unanswered.
var ErrBusy = errors.New("still waiting for the previous answer")

// Querier runs a search over one video or the whole library.
type Querier interface {
	Query(ctx context.Context, query, videoName string) ([]backend.QueryResult, error)
}

// Player shows a video and jumps around in it.
type Player interface {
	Source() string
	Load(ctx context.Context, src string) error
	SeekAndPlay(ctx context.Context, seconds int) error
}

// Session is one chat: its messages, its selection and the in-flight guard.
// It is safe for concurrent use.
type Session struct {
	querier Querier
	player  Player
	voice   *Voice
	seek    *SeekController
	logger  *slog.Logger

	mu         sync.Mutex
	messages   []Message
	selection  Selection
	submitting bool
	// generation changes whenever the context is reset; answers to
	// questions asked in an older generation are dropped.
	generation uint64
}

// NewSession starts a chat with the greeting message. voice may be nil.
func NewSession(q Querier, p Player, seek *SeekController, voice *Voice, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		querier:  q,
		player:   p,
		voice:    voice,
		seek:     seek,
		logger:   logging.WithComponent(logger, "chat"),
		messages: []Message{newMessage(RoleBot, Greeting)},
	}
}

// Messages returns a copy of the conversation.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Message returns the i-th message (0-based).
func (s *Session) Message(i int) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.messages) {
		return Message{}, false
	}
	return s.messages[i], true
}

func (s *Session) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Submitting reports whether a question is awaiting its answer.
func (s *Session) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Select switches the chat context. The conversation is cleared, a single
// video is loaded into the player, and voice follows the new source.
func (s *Session) Select(ctx context.Context, sel Selection) error {
	s.mu.Lock()
	s.selection = sel
	s.messages = nil
	s.generation++
	s.submitting = false
	s.mu.Unlock()

	var loadErr error
	if v, ok := sel.Video(); ok && v.URL != "" && s.player != nil {
		if err := s.player.Load(ctx, v.URL); err != nil {
			loadErr = fmt.Errorf("loading %s into the player: %w", v.Title(), err)
		}
	}

	if s.voice != nil {
		src := ""
		if v, ok := sel.Video(); ok {
			src = v.URL
		} else if sel.IsAll() && s.player != nil {
			src = s.player.Source()
		}
		if err := s.voice.SetSource(ctx, src); err != nil {
			s.logger.Warn("preparing voice failed", "error", err)
		}
	}
	return loadErr
}

// Clear empties the conversation. An answer still on its way is dropped
// and a new question may be asked right away.
func (s *Session) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.generation++
	s.submitting = false
	s.mu.Unlock()
}

// Submit asks a question. It returns the messages it appended: the user's
// question and the bot's reply. Blank input appends nothing. Errors from
// the backend become a fixed reply and are only logged.
func (s *Session) Submit(ctx context.Context, text string) ([]Message, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		return nil, nil
	}

	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	question := newMessage(RoleUser, query)
	s.messages = append(s.messages, question)

	if s.selection.IsNone() {
		reply := newMessage(RoleBot, NoSelectionReply)
		s.messages = append(s.messages, reply)
		s.mu.Unlock()
		return []Message{question, reply}, nil
	}

	sel := s.selection
	gen := s.generation
	s.submitting = true
	s.mu.Unlock()

	results, err := s.querier.Query(ctx, query, sel.VideoName())

	s.mu.Lock()
	if gen != s.generation {
		// The busy flag belongs to the newer context now.
		s.mu.Unlock()
		s.logger.Debug("dropping answer for a previous context", "query", query)
		return nil, nil
	}

	s.submitting = false

	var reply Message
	var adopt string
	switch {
	case err != nil:
		s.logger.Error("query failed", "video", sel.VideoName(), "error", err)
		reply = newMessage(RoleBot, FailureReply)
	case len(results) == 0:
		reply = newMessage(RoleBot, NotFoundReply)
	default:
		top := results[0]
		reply = newMessage(RoleBot, top.Content)
		reply.Timestamp = string(top.Timestamp)
		reply.Source = top.Source
		reply.VideoURL = top.VideoURL
		if v, ok := sel.Video(); ok && reply.VideoURL == "" {
			reply.VideoURL = v.URL
		}
		if sel.IsAll() && top.VideoURL != "" && s.player != nil && top.VideoURL != s.player.Source() {
			adopt = top.VideoURL
		}
	}
	s.messages = append(s.messages, reply)
	s.mu.Unlock()

	if adopt != "" {
		s.follow(ctx, adopt)
	}
	return []Message{question, reply}, nil
}

// Play jumps to ts in the video msg points at.
func (s *Session) Play(ctx context.Context, msg Message, ts string) error {
	if s.seek == nil {
		return errors.New("no player attached")
	}
	before := ""
	if s.player != nil {
		before = s.player.Source()
	}
	if err := s.seek.Seek(ctx, msg, ts); err != nil {
		return err
	}
	if s.player != nil && s.voice != nil {
		if after := s.player.Source(); after != before {
			if err := s.voice.SetSource(ctx, after); err != nil {
				s.logger.Warn("preparing voice failed", "error", err)
			}
		}
	}
	return nil
}

// follow makes src the playback target after an answer from another video.
func (s *Session) follow(ctx context.Context, src string) {
	if err := s.player.Load(ctx, src); err != nil {
		s.logger.Warn("switching player source failed", "src", src, "error", err)
		return
	}
	if s.voice != nil {
		if err := s.voice.SetSource(ctx, src); err != nil {
			s.logger.Warn("preparing voice failed", "error", err)
		}
	}
}
