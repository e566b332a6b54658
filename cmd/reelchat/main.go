package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kalambet/reelchat/internal/logging"
)

var version = "dev"

var (
	noColor  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "reelchat",
	Short:         "Chat with your videos from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			noColor = true
		}
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
		if logLevel != "" {
			os.Setenv("REELCHAT_LOG_LEVEL", logLevel)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the reelchat version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "reelchat version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		signupCmd,
		loginCmd,
		logoutCmd,
		accountCmd,
		videosCmd,
		chatCmd,
		mcpCmd,
		configCmd,
		versionCmd,
	)
}

func main() {
	slog.SetDefault(logging.NewLogger(os.Stderr, os.Getenv("REELCHAT_LOG_LEVEL")))

	if err := rootCmd.Execute(); err != nil {
		printError("%s", errorText(err))
		os.Exit(1)
	}
}
