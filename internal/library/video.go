// Package library lists, searches and deletes the user's uploaded videos.
package library

import (
	"regexp"
	"strings"

	"github.com/kalambet/reelchat/internal/backend"
)

const untitled = "Untitled Video"

var versionSegment = regexp.MustCompile(`/v\d+`)

// Video is one entry of the user's library.
type Video struct {
	PublicID    string
	URL         string
	Description string
	Processed   bool
}

func fromBackend(v backend.Video) Video {
	return Video{
		PublicID:    v.PublicID,
		URL:         v.VideoURL,
		Description: v.Description,
		Processed:   v.Processed,
	}
}

// Title is the public id, or "Untitled Video" when the host gave none.
func (v Video) Title() string {
	if strings.TrimSpace(v.PublicID) == "" {
		return untitled
	}
	return v.PublicID
}

// Status is "Processed" once the backend has ingested the transcript.
func (v Video) Status() string {
	if v.Processed {
		return "Processed"
	}
	return "Processing"
}

// ThumbnailURL derives a poster image from a Cloudinary delivery URL: the
// extension becomes .jpg and an auto-offset fill transformation goes in
// front of the version segment. Empty URLs give "".
func (v Video) ThumbnailURL() string {
	return thumbnailURL(v.URL)
}

func thumbnailURL(videoURL string) string {
	if videoURL == "" {
		return ""
	}
	dot := strings.LastIndex(videoURL, ".")
	if dot == -1 || dot < strings.LastIndex(videoURL, "/") {
		return videoURL
	}
	out := videoURL[:dot] + ".jpg"

	locs := versionSegment.FindAllStringIndex(out, -1)
	if len(locs) == 0 {
		return out
	}
	at := locs[len(locs)-1][0]
	return out[:at] + "/c_fill/so_auto" + out[at:]
}

// Filter returns the videos whose title contains query, ignoring case.
// A blank query matches everything.
func Filter(videos []Video, query string) []Video {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return videos
	}
	var out []Video
	for _, v := range videos {
		if strings.Contains(strings.ToLower(v.Title()), q) {
			out = append(out, v)
		}
	}
	return out
}
