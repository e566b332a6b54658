package backend

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/kalambet/reelchat/internal/timestamp"
)

type SignUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// Video is one library entry as the backend lists it.
type Video struct {
	PublicID    string `json:"publicID"`
	VideoURL    string `json:"video_url"`
	Description string `json:"description"`
	Processed   bool   `json:"processed"`
}

type previewResponse struct {
	Videos []Video `json:"videos"`
}

type deleteRequest struct {
	VideoID string `json:"videoId"`
}

// Registration tells the backend about a video already on the media host.
type Registration struct {
	VideoURL    string `json:"video_url"`
	PublicID    string `json:"public_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type RegistrationResult struct {
	Transcript string `json:"transcript,omitempty"`
	Error      string `json:"error,omitempty"`
}

type queryRequest struct {
	Query     string `json:"query"`
	VideoName string `json:"video_name"`
}

// QueryResult is one ranked answer. Results come best first.
type QueryResult struct {
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
	Source    string    `json:"source"`
	VideoURL  string    `json:"video_url"`
}

type queryResponse struct {
	Results []QueryResult `json:"results"`
}

type voiceRequest struct {
	CloudinaryURL string `json:"cloudinary_url"`
	Message       string `json:"message,omitempty"`
}

// Account holds the signed-in user's editable credentials.
type Account struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Timestamp is a playback position as the backend sends it. Some answers
// carry "HH:MM:SS" strings and others a number of seconds; both decode to
// the string form.
type Timestamp string

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Timestamp(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("timestamp: want string or number, got %s", data)
	}
	*t = Timestamp(timestamp.Format(int(math.Floor(f))))
	return nil
}
