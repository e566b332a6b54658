package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/reelchat/internal/api"
	"github.com/kalambet/reelchat/internal/library"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the video library as MCP tools over stdio",
	Long: `Serve the video library as MCP tools over stdio.

Tools: list_videos, ask_video. Resource: reelchat://videos.
Stdout carries the protocol; logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireToken(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Library: library.NewService(a.client, a.logger),
			Querier: a.client,
			Version: version,
			Logger:  a.logger,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)

		a.logger.Info("MCP server started (stdio transport)")
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
