// Package backend is the HTTP client for the video-analysis REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/kalambet/reelchat/internal/logging"
)

// maxBodyBytes bounds any response read into memory, synthesized audio
// included.
const maxBodyBytes = 64 << 20

// TokenStore supplies the bearer token and forgets it on 401.
type TokenStore interface {
	Token() (string, error)
	ClearToken() error
}

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	tokens     TokenStore
	httpClient *http.Client
	logger     *slog.Logger
}

// New returns a client for baseURL. Cookies set by the backend are kept for
// the lifetime of the client.
func New(baseURL string, timeout time.Duration, tokens TokenStore, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		logger: logging.WithComponent(logger, "backend"),
	}, nil
}

// --- Auth ---

// SignUp creates an account. The backend may or may not sign the user in
// right away; the returned token is empty when it does not.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (string, error) {
	var resp authResponse
	if err := c.send(ctx, http.MethodPost, "/signup", req, &resp, false); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &APIError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	return resp.Token, nil
}

// Login signs in with a username or, when user contains "@", an email.
func (c *Client) Login(ctx context.Context, user, password string) (string, error) {
	req := loginRequest{Password: password}
	if strings.Contains(user, "@") {
		req.Email = user
	} else {
		req.Username = user
	}

	var resp authResponse
	if err := c.send(ctx, http.MethodPost, "/login", req, &resp, false); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &APIError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	if resp.Token == "" {
		return "", errors.New("login response carried no token")
	}
	return resp.Token, nil
}

// --- Library ---

func (c *Client) ListVideos(ctx context.Context) ([]Video, error) {
	var resp previewResponse
	if err := c.send(ctx, http.MethodGet, "/preview", nil, &resp, true); err != nil {
		return nil, err
	}
	if resp.Videos == nil {
		return []Video{}, nil
	}
	return resp.Videos, nil
}

// DeleteVideo removes one video. An explicit identifier is required.
func (c *Client) DeleteVideo(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("delete video: id is required")
	}
	return c.send(ctx, http.MethodDelete, "/delete-video", deleteRequest{VideoID: id}, nil, true)
}

// RegisterUpload asks the backend to ingest a video already on the media host.
func (c *Client) RegisterUpload(ctx context.Context, reg Registration) (RegistrationResult, error) {
	var resp RegistrationResult
	if err := c.send(ctx, http.MethodPost, "/upload-and-store", reg, &resp, true); err != nil {
		return RegistrationResult{}, err
	}
	if resp.Error != "" {
		return resp, &APIError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	return resp, nil
}

// --- Chat ---

// Query searches the transcripts of videoName ("all" searches the whole
// library) and returns ranked results.
func (c *Client) Query(ctx context.Context, query, videoName string) ([]QueryResult, error) {
	var resp queryResponse
	if err := c.send(ctx, http.MethodPost, "/query", queryRequest{Query: query, VideoName: videoName}, &resp, true); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// CreateVoiceClone prepares voice assets for a video. A 409 means they
// already exist and is not an error.
func (c *Client) CreateVoiceClone(ctx context.Context, videoURL string) error {
	err := c.send(ctx, http.MethodPost, "/create_clone", voiceRequest{CloudinaryURL: videoURL}, nil, true)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		c.logger.Debug("voice clone already exists", "video_url", videoURL)
		return nil
	}
	return err
}

// SpeakMessage returns synthesized audio of message in the voice of videoURL.
func (c *Client) SpeakMessage(ctx context.Context, videoURL, message string) ([]byte, error) {
	body, _, err := c.do(ctx, http.MethodPost, "/speak_message", voiceRequest{CloudinaryURL: videoURL, Message: message}, true)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("speak message: empty audio response")
	}
	return body, nil
}

// --- Account ---

func (c *Client) Account(ctx context.Context) (Account, error) {
	var acct Account
	if err := c.send(ctx, http.MethodGet, "/api/get_email_uname", nil, &acct, true); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// UpdateAccount sends only the non-empty fields. With both empty it returns
// false without calling the backend.
func (c *Client) UpdateAccount(ctx context.Context, update Account) (bool, error) {
	update.Username = strings.TrimSpace(update.Username)
	update.Email = strings.TrimSpace(update.Email)
	if update.Username == "" && update.Email == "" {
		return false, nil
	}
	if err := c.send(ctx, http.MethodPut, "/api/reset-email-uname", update, nil, true); err != nil {
		return false, err
	}
	return true, nil
}

// --- Transport ---

func (c *Client) send(ctx context.Context, method, path string, in, out any, auth bool) error {
	body, _, err := c.do(ctx, method, path, in, auth)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, auth bool) ([]byte, int, error) {
	var bodyReader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, 0, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, 0, fmt.Errorf("reading session token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("backend not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading %s response: %w", path, err)
	}

	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, resp.StatusCode, nil
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
		Body:       truncate(string(body), 512),
	}
	if resp.StatusCode == http.StatusUnauthorized && auth && c.tokens != nil {
		if err := c.tokens.ClearToken(); err != nil {
			c.logger.Warn("clearing token after 401 failed", "error", err)
		}
	}
	return nil, resp.StatusCode, apiErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
