package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/reelchat/internal/backend"
	"github.com/kalambet/reelchat/internal/library"
)

// --- mocks ---

type mockLibrary struct {
	videos []library.Video
	err    error
}

func (m *mockLibrary) List(_ context.Context) ([]library.Video, error) {
	return m.videos, m.err
}

func (m *mockLibrary) Find(_ context.Context, name string) (library.Video, error) {
	if m.err != nil {
		return library.Video{}, m.err
	}
	for _, v := range m.videos {
		if strings.EqualFold(v.PublicID, name) {
			return v, nil
		}
	}
	return library.Video{}, library.ErrNotFound
}

type mockQuerier struct {
	results   []backend.QueryResult
	err       error
	gotQuery  string
	gotVideo  string
	callCount int
}

func (m *mockQuerier) Query(_ context.Context, query, videoName string) ([]backend.QueryResult, error) {
	m.callCount++
	m.gotQuery = query
	m.gotVideo = videoName
	return m.results, m.err
}

// --- helpers ---

func newTestMCPDeps() (MCPDeps, *mockLibrary, *mockQuerier) {
	lib := &mockLibrary{videos: []library.Video{
		{PublicID: "Keynote", URL: "https://res.cloudinary.com/demo/video/upload/v1700/Keynote.mp4", Processed: true},
		{PublicID: "Standup", URL: "https://res.cloudinary.com/demo/video/upload/v1701/Standup.mp4"},
	}}
	q := &mockQuerier{}
	return MCPDeps{Library: lib, Querier: q}, lib, q
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestMCPTool_ListVideos(t *testing.T) {
	deps, _, _ := newTestMCPDeps()
	handler := mcpListVideos(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_videos", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var videos []videoResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &videos); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(videos))
	}
	if videos[0].Status != "Processed" || videos[1].Status != "Processing" {
		t.Errorf("statuses = %q, %q", videos[0].Status, videos[1].Status)
	}
	if !strings.Contains(videos[0].Thumbnail, "/c_fill/so_auto/v1700/Keynote.jpg") {
		t.Errorf("thumbnail = %q", videos[0].Thumbnail)
	}
}

func TestMCPTool_ListVideos_Search(t *testing.T) {
	deps, _, _ := newTestMCPDeps()
	handler := mcpListVideos(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("list_videos", map[string]any{"search": "stand"}))
	var videos []videoResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &videos); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(videos) != 1 || videos[0].PublicID != "Standup" {
		t.Fatalf("unexpected videos: %+v", videos)
	}
}

func TestMCPTool_ListVideos_BackendError(t *testing.T) {
	deps, lib, _ := newTestMCPDeps()
	lib.err = &backend.APIError{StatusCode: 500, Message: "database offline"}
	handler := mcpListVideos(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_videos", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if got := toolText(t, result); got != "database offline" {
		t.Errorf("text = %q, want server message", got)
	}
}

func TestMCPTool_AskVideo_AllVideos(t *testing.T) {
	deps, _, q := newTestMCPDeps()
	q.results = []backend.QueryResult{
		{Content: "Pricing is covered [00:01:30] here.", Timestamp: "00:01:30", Source: "Keynote"},
		{Content: "second best"},
	}
	handler := mcpAskVideo(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask_video", map[string]any{"query": " pricing? "}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if q.gotVideo != "all" {
		t.Errorf("video_name = %q, want all", q.gotVideo)
	}
	if q.gotQuery != "pricing?" {
		t.Errorf("query = %q, want trimmed", q.gotQuery)
	}

	var a struct {
		Answer    string `json:"answer"`
		Timestamp string `json:"timestamp"`
		Seconds   int    `json:"seconds"`
		Source    string `json:"source"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &a); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if strings.Contains(a.Answer, "[00:01:30]") {
		t.Errorf("answer still carries marker: %q", a.Answer)
	}
	if a.Timestamp != "00:01:30" || a.Seconds != 90 {
		t.Errorf("timestamp = %q (%d s), want 00:01:30 (90 s)", a.Timestamp, a.Seconds)
	}
	if a.Source != "Keynote" {
		t.Errorf("source = %q", a.Source)
	}
}

func TestMCPTool_AskVideo_MarkerOnly(t *testing.T) {
	deps, _, q := newTestMCPDeps()
	q.results = []backend.QueryResult{{Content: "At [00:02:05] the demo starts."}}
	handler := mcpAskVideo(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("ask_video", map[string]any{
		"query": "demo",
		"video": "keynote",
	}))
	if q.gotVideo != "Keynote" {
		t.Errorf("video_name = %q, want resolved public id", q.gotVideo)
	}
	if !strings.Contains(toolText(t, result), `"seconds":125`) {
		t.Errorf("response = %s", toolText(t, result))
	}
}

func TestMCPTool_AskVideo_UnknownVideo(t *testing.T) {
	deps, _, q := newTestMCPDeps()
	handler := mcpAskVideo(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("ask_video", map[string]any{
		"query": "anything",
		"video": "missing",
	}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if q.callCount != 0 {
		t.Error("backend queried for an unknown video")
	}
}

func TestMCPTool_AskVideo_NoResults(t *testing.T) {
	deps, _, _ := newTestMCPDeps()
	handler := mcpAskVideo(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("ask_video", map[string]any{"query": "x"}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "No relevant information found." {
		t.Errorf("text = %q", got)
	}
}

func TestMCPTool_AskVideo_RequiresQuery(t *testing.T) {
	deps, _, q := newTestMCPDeps()
	handler := mcpAskVideo(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("ask_video", map[string]any{"query": "  "}))
	if !result.IsError {
		t.Fatal("expected tool error for blank query")
	}
	if q.callCount != 0 {
		t.Error("backend queried for a blank question")
	}
}

func TestMCPTool_AskVideo_QueryFailure(t *testing.T) {
	deps, _, q := newTestMCPDeps()
	q.err = errors.New("connection refused")
	handler := mcpAskVideo(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("ask_video", map[string]any{"query": "x"}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if got := toolText(t, result); got != "query failed" {
		t.Errorf("text = %q, want fallback", got)
	}
}

func TestMCPResource_Videos(t *testing.T) {
	deps, _, _ := newTestMCPDeps()
	handler := mcpResourceVideos(deps)

	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "reelchat://videos"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.MIMEType != "application/json" || !strings.Contains(tc.Text, "Keynote") {
		t.Errorf("unexpected resource: %+v", tc)
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _, _ := newTestMCPDeps()
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
