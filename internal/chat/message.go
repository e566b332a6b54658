// Package chat holds the question/answer session about the user's videos:
// the message list, the selected context, timestamp seeking and voice
// read-aloud.
package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/reelchat/internal/library"
	"github.com/kalambet/reelchat/internal/timestamp"
)

// Fixed bot replies.
const (
	Greeting         = "Hello! I'm ready to help you analyze your videos. What would you like to know?"
	NoSelectionReply = "Please select a video first before asking questions."
	NotFoundReply    = "Sorry, I couldn't find any relevant information about that in the video."
	FailureReply     = "Sorry, I encountered an error while processing your request. Please try again."
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

type Message struct {
	ID   string
	Role Role
	Text string
	// Timestamp, Source and VideoURL are set on answers that point into a
	// video.
	Timestamp string
	Source    string
	VideoURL  string
	CreatedAt time.Time
}

func newMessage(role Role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// Display is the text with every [HH:MM:SS] marker removed.
func (m Message) Display() string {
	display, _ := timestamp.Extract(m.Text)
	return display
}

// Controls lists the positions a user can jump to from this message: the
// markers in the text in order, then the message's own timestamp, without
// duplicates.
func (m Message) Controls() []string {
	_, stamps := timestamp.Extract(m.Text)
	if m.Timestamp == "" {
		return stamps
	}
	for _, s := range stamps {
		if s == m.Timestamp {
			return stamps
		}
	}
	return append(stamps, m.Timestamp)
}

// Selection is the chat context: nothing, one video, or the whole library.
type Selection struct {
	all   bool
	video *library.Video
}

// AllVideosName is the video_name sent when querying the whole library.
const AllVideosName = "all"

func NoSelection() Selection { return Selection{} }

func SelectAll() Selection { return Selection{all: true} }

func SelectVideo(v library.Video) Selection { return Selection{video: &v} }

func (s Selection) IsNone() bool { return !s.all && s.video == nil }

func (s Selection) IsAll() bool { return s.all }

// Video returns the selected video, if a single one is selected.
func (s Selection) Video() (library.Video, bool) {
	if s.video == nil {
		return library.Video{}, false
	}
	return *s.video, true
}

// VideoName is the value the backend expects in video_name.
func (s Selection) VideoName() string {
	switch {
	case s.all:
		return AllVideosName
	case s.video != nil:
		return s.video.PublicID
	default:
		return ""
	}
}

func (s Selection) String() string {
	switch {
	case s.all:
		return "All videos"
	case s.video != nil:
		return s.video.Title()
	default:
		return "none"
	}
}
