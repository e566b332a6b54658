// Package timestamp extracts bracketed time markers from bot replies and
// converts clock strings to playback offsets.
package timestamp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var markerPattern = regexp.MustCompile(`\[(\d{2}:\d{2}:\d{2})\]`)

// Extract removes every [HH:MM:SS] marker from text and returns the
// remaining display text along with the unique marker values in order of
// first appearance.
func Extract(text string) (string, []string) {
	matches := markerPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	seen := make(map[string]bool, len(matches))
	var stamps []string
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		stamps = append(stamps, m[1])
	}

	return markerPattern.ReplaceAllString(text, ""), stamps
}

// Strip returns text with all markers removed.
func Strip(text string) string {
	return markerPattern.ReplaceAllString(text, "")
}

// ToSeconds converts "H:MM:SS", "M:SS" or "SS" to a second offset.
// Segments are weighted 1, 60, 3600 from the right; a segment that is not a
// number counts as zero.
func ToSeconds(ts string) int {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	total := 0
	weight := 1
	for i := len(parts) - 1; i >= 0 && weight <= 3600; i-- {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 {
			n = 0
		}
		total += n * weight
		weight *= 60
	}
	return total
}

// Format renders a second offset as HH:MM:SS.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
