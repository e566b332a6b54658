package upload

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest video the dialog accepts.
const MaxFileSize int64 = 2 << 30

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".ogv":  "video/ogg",
	".3gp":  "video/3gpp",
}

// File is a validated video chosen for upload.
type File struct {
	Path        string
	Name        string
	Size        int64
	ContentType string
}

// Inspect checks that path is a regular video file within MaxFileSize.
func Inspect(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return File{}, fmt.Errorf("%s: %w", path, ErrNotVideo)
	}
	if info.Size() > MaxFileSize {
		return File{}, fmt.Errorf("%s is %d bytes: %w", filepath.Base(path), info.Size(), ErrTooLarge)
	}

	ct, err := contentType(path)
	if err != nil {
		return File{}, err
	}
	if !strings.HasPrefix(ct, "video/") {
		return File{}, fmt.Errorf("%s (%s): %w", filepath.Base(path), ct, ErrNotVideo)
	}

	return File{
		Path:        path,
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: ct,
	}, nil
}

// contentType trusts a known video extension first, then the system MIME
// table, then the file's leading bytes.
func contentType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := videoTypes[ext]; ok {
		return ct, nil
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	return http.DetectContentType(head[:n]), nil
}
