package mediahost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/kalambet/reelchat/internal/logging"
)

// Cloudinary uploads through an unsigned upload preset.
type Cloudinary struct {
	uploadURL  string
	preset     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCloudinary returns a host posting to uploadURL, normally
// https://api.cloudinary.com/v1_1/{cloud}/video/upload.
func NewCloudinary(uploadURL, preset string, logger *slog.Logger) *Cloudinary {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cloudinary{
		uploadURL: uploadURL,
		preset:    preset,
		// Large videos take a while; only the dial and headers are bounded.
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: 10 * time.Minute,
			},
		},
		logger: logging.WithComponent(logger, "cloudinary"),
	}
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Cloudinary) Upload(ctx context.Context, src Source, req Request, progress ProgressFunc) (Asset, error) {
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(c.writeForm(mw, src, req, progress))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, pr)
	if err != nil {
		return Asset{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Info("uploading video", "public_id", req.PublicID, "bytes", src.Size)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Asset{}, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var out cloudinaryResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := &Error{StatusCode: resp.StatusCode}
		if decodeErr == nil && out.Error != nil {
			e.Message = out.Error.Message
		}
		return Asset{}, e
	}
	if decodeErr != nil {
		return Asset{}, fmt.Errorf("decoding upload response: %w", decodeErr)
	}
	if out.SecureURL == "" {
		return Asset{}, &Error{StatusCode: resp.StatusCode, Message: "upload response carried no secure_url"}
	}

	c.logger.Info("video uploaded", "public_id", out.PublicID)
	return Asset{SecureURL: out.SecureURL, PublicID: out.PublicID}, nil
}

func (c *Cloudinary) writeForm(mw *multipart.Writer, src Source, req Request, progress ProgressFunc) error {
	fields := [][2]string{
		{"upload_preset", c.preset},
		{"resource_type", "video"},
		{"public_id", req.PublicID},
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		fields = append(fields, [2]string{"context", "description=" + d})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(src.Name)))
	ct := src.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, newProgressReader(src.Body, src.Size, progress)); err != nil {
		return fmt.Errorf("streaming file: %w", err)
	}
	return mw.Close()
}
