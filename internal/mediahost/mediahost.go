// Package mediahost uploads video files to the third-party host that serves
// them back to the browser and the backend.
package mediahost

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
)

// Source is a file to upload.
type Source struct {
	Name string
	Size int64
	// ContentType is the MIME type, e.g. video/mp4.
	ContentType string
	Body        io.ReadSeeker
}

// Request carries the host-side metadata for an upload.
type Request struct {
	PublicID    string
	Description string
}

// Asset is what the host hands back once the file is stored.
type Asset struct {
	SecureURL string
	PublicID  string
}

// ProgressFunc receives the bytes sent so far and the total size.
type ProgressFunc func(sent, total int64)

// Host stores a video and returns a stable URL for it.
type Host interface {
	Upload(ctx context.Context, src Source, req Request, progress ProgressFunc) (Asset, error)
}

// Error is a rejection from the media host.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("media host returned %d", e.StatusCode)
	}
	return fmt.Sprintf("media host returned %d: %s", e.StatusCode, e.Message)
}

// progressReader reports cumulative bytes read. Seeking restarts the count
// so SDK retries and checksum passes do not overshoot.
type progressReader struct {
	r        io.Reader
	total    int64
	sent     atomic.Int64
	progress ProgressFunc
}

func newProgressReader(r io.Reader, total int64, progress ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		sent := p.sent.Add(int64(n))
		if p.progress != nil {
			p.progress(sent, p.total)
		}
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	s, ok := p.r.(io.Seeker)
	if !ok {
		return 0, fmt.Errorf("seek not supported")
	}
	pos, err := s.Seek(offset, whence)
	if err == nil {
		p.sent.Store(pos)
	}
	return pos, err
}
