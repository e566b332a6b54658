// Package api exposes the video library and question flow to MCP clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/reelchat/internal/backend"
	"github.com/kalambet/reelchat/internal/chat"
	"github.com/kalambet/reelchat/internal/library"
	"github.com/kalambet/reelchat/internal/timestamp"
)

// Library lists and resolves videos in the signed-in user's library.
type Library interface {
	List(ctx context.Context) ([]library.Video, error)
	Find(ctx context.Context, name string) (library.Video, error)
}

// Querier runs a question against one video or the whole library.
type Querier interface {
	Query(ctx context.Context, query, videoName string) ([]backend.QueryResult, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Library Library
	Querier Querier
	Version string
	Logger  *slog.Logger
}

// NewMCPServer creates an MCP server with the reelchat tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := server.NewMCPServer(
		"reelchat",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("reelchat: ask questions about the videos in your library and get answers with playback timestamps."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_videos",
			mcp.WithDescription("List the videos in the library with their processing status."),
			mcp.WithString("search", mcp.Description("Optional case-insensitive title filter")),
		),
		mcpListVideos(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_video",
			mcp.WithDescription("Ask a question about one video, or the whole library when no video is given. Returns the best answer with its timestamp."),
			mcp.WithString("query", mcp.Description("The question to ask"), mcp.Required()),
			mcp.WithString("video", mcp.Description("Video public id; omit or use \"all\" to search every video")),
		),
		mcpAskVideo(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"reelchat://videos",
			"Video Library",
			mcp.WithResourceDescription("All videos in the library as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceVideos(deps),
	)

	return s
}

type videoResult struct {
	PublicID    string `json:"public_id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	URL         string `json:"url"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	Description string `json:"description,omitempty"`
}

func toVideoResults(videos []library.Video) []videoResult {
	out := make([]videoResult, len(videos))
	for i, v := range videos {
		out[i] = videoResult{
			PublicID:    v.PublicID,
			Title:       v.Title(),
			Status:      v.Status(),
			URL:         v.URL,
			Thumbnail:   v.ThumbnailURL(),
			Description: v.Description,
		}
	}
	return out
}

func mcpListVideos(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videos, err := deps.Library.List(ctx)
		if err != nil {
			deps.Logger.Warn("mcp list_videos failed", "error", err)
			return mcpError(backend.UserMessage(err, "failed to list videos")), nil
		}
		videos = library.Filter(videos, req.GetString("search", ""))

		b, err := json.Marshal(toVideoResults(videos))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal videos: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAskVideo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}

		videoName := strings.TrimSpace(req.GetString("video", ""))
		if videoName == "" || strings.EqualFold(videoName, chat.AllVideosName) {
			videoName = chat.AllVideosName
		} else {
			v, err := deps.Library.Find(ctx, videoName)
			if errors.Is(err, library.ErrNotFound) {
				return mcpError(fmt.Sprintf("no video named %q", videoName)), nil
			}
			if err != nil {
				deps.Logger.Warn("mcp ask_video lookup failed", "error", err)
				return mcpError(backend.UserMessage(err, "failed to look up video")), nil
			}
			videoName = v.PublicID
		}

		results, err := deps.Querier.Query(ctx, strings.TrimSpace(query), videoName)
		if err != nil {
			deps.Logger.Warn("mcp ask_video failed", "video", videoName, "error", err)
			return mcpError(backend.UserMessage(err, "query failed")), nil
		}
		if len(results) == 0 {
			return mcpText("No relevant information found."), nil
		}

		top := results[0]
		type answer struct {
			Answer    string `json:"answer"`
			Timestamp string `json:"timestamp,omitempty"`
			Seconds   int    `json:"seconds"`
			Source    string `json:"source,omitempty"`
			VideoURL  string `json:"video_url,omitempty"`
		}
		a := answer{
			Answer:    timestamp.Strip(top.Content),
			Timestamp: string(top.Timestamp),
			Source:    top.Source,
			VideoURL:  top.VideoURL,
		}
		if a.Timestamp == "" {
			if _, stamps := timestamp.Extract(top.Content); len(stamps) > 0 {
				a.Timestamp = stamps[0]
			}
		}
		if a.Timestamp != "" {
			a.Seconds = timestamp.ToSeconds(a.Timestamp)
		}

		b, err := json.Marshal(a)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceVideos(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		videos, err := deps.Library.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list videos: %w", err)
		}

		b, err := json.Marshal(toVideoResults(videos))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal videos: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
