package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kalambet/reelchat/internal/library"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// messages receives status lines. Command results go to the command's
// stdout so they can be piped.
var messages io.Writer = os.Stderr

// notice is a one-line status marker.
type notice struct {
	symbol string
	color  string
}

var (
	noticeSuccess = notice{"✓", colorGreen}
	noticeError   = notice{"✗", colorRed}
	noticeWarning = notice{"⚠", colorYellow}
	noticeStep    = notice{"→", colorCyan}
)

func (n notice) fprint(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, colorize(n.color, n.symbol+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { noticeSuccess.fprint(messages, format, args...) }
func printError(format string, args ...any)   { noticeError.fprint(messages, format, args...) }
func printWarning(format string, args ...any) { noticeWarning.fprint(messages, format, args...) }
func printStep(format string, args ...any)    { noticeStep.fprint(messages, format, args...) }

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(messages, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// videoStatus colours a video by whether the backend finished indexing it.
func videoStatus(v library.Video) string {
	if v.Processed {
		return colorize(colorGreen, v.Status())
	}
	return colorize(colorYellow, v.Status())
}

func printVideos(w io.Writer, videos []library.Video) {
	if len(videos) == 0 {
		fmt.Fprintln(w, "No videos found.")
		return
	}
	for i, v := range videos {
		fmt.Fprintf(w, "%s  %s  %s\n", colorize(colorCyan, fmt.Sprintf("%2d", i+1)), colorize(colorBold, v.Title()), videoStatus(v))
		if v.Description != "" {
			fmt.Fprintf(w, "      %s\n", v.Description)
		}
		fmt.Fprintf(w, "      %s\n", colorize(colorDim, v.URL))
	}
}
