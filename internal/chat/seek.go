package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/reelchat/internal/timestamp"
)

// DefaultSettleDelay gives a freshly loaded source time to become seekable.
const DefaultSettleDelay = 500 * time.Millisecond

// SeekController turns a timestamp control into player commands.
type SeekController struct {
	player Player
	settle time.Duration
}

func NewSeekController(p Player, settle time.Duration) *SeekController {
	if settle < 0 {
		settle = 0
	}
	return &SeekController{player: p, settle: settle}
}

// Seek plays msg's video from ts. When that video is not the one on screen
// it is loaded first and given the settle window before seeking.
func (c *SeekController) Seek(ctx context.Context, msg Message, ts string) error {
	if target := msg.VideoURL; target != "" && target != c.player.Source() {
		if err := c.player.Load(ctx, target); err != nil {
			return fmt.Errorf("switching source: %w", err)
		}
		timer := time.NewTimer(c.settle)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	if err := c.player.SeekAndPlay(ctx, timestamp.ToSeconds(ts)); err != nil {
		return fmt.Errorf("seeking to %s: %w", ts, err)
	}
	return nil
}
