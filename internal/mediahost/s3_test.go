package mediahost

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		publicID, filename, want string
	}{
		{"talk", "/tmp/talk.mp4", "videos/talk.mp4"},
		{"My Talk", "clip.MOV", "videos/My_Talk.mov"},
		{"talk.mp4", "talk.mp4", "videos/talk.mp4"},
		{"", "/tmp/clip.webm", "videos/clip.webm"},
		{"noext", "noext", "videos/noext"},
	}
	for _, tt := range tests {
		if got := objectKey(tt.publicID, tt.filename); got != tt.want {
			t.Errorf("objectKey(%q, %q) = %q, want %q", tt.publicID, tt.filename, got, tt.want)
		}
	}
}

func TestS3UploadPublicURL(t *testing.T) {
	var gotPath, gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, err := NewS3(context.Background(), S3Config{
		Endpoint:      srv.URL,
		Bucket:        "media",
		Region:        "eu-central-1",
		AccessKey:     "test",
		SecretKey:     "test",
		PublicBaseURL: "https://cdn.example.com/",
	}, nil)
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}

	asset, err := host.Upload(context.Background(), testSource("payload"), Request{PublicID: "talk"}, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if gotPath != "/media/videos/talk.mp4" {
		t.Errorf("path = %q, want /media/videos/talk.mp4", gotPath)
	}
	if !strings.Contains(gotBody, "payload") {
		t.Errorf("body = %q", gotBody)
	}
	if gotType != "video/mp4" {
		t.Errorf("Content-Type = %q, want video/mp4", gotType)
	}
	if asset.SecureURL != "https://cdn.example.com/videos/talk.mp4" {
		t.Errorf("SecureURL = %q", asset.SecureURL)
	}
}

func TestNewS3RequiresPublicBaseURL(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{
		Endpoint:  "http://127.0.0.1:9000",
		Bucket:    "media",
		AccessKey: "test",
		SecretKey: "test",
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "public base url") {
		t.Errorf("err = %v, want public base url error", err)
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{}, nil); err == nil {
		t.Error("expected error without bucket")
	}
}
