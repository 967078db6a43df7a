// Package drift keeps a host's local player aligned with the shared playback
// record and owns the seek bar scrub state.
package drift

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sharetube/officedj/internal/domain"
)

const (
	DefaultInterval  = 500 * time.Millisecond
	DefaultThreshold = 2 * time.Second
)

// Player is the local embedded player as seen by the corrector.
type Player interface {
	CurrentTime() float64
	Duration() float64
	IsPlaying() bool
	SeekTo(ctx context.Context, seconds float64) error
}

type Config struct {
	Interval  time.Duration
	Threshold time.Duration
}

type Corrector struct {
	player    Player
	logger    *slog.Logger
	interval  time.Duration
	threshold float64
	now       func() time.Time

	mu        sync.Mutex
	playback  domain.Playback
	scrubbing bool
	hidden    bool
}

func New(player Player, logger *slog.Logger, cfg *Config) *Corrector {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Corrector{
		player:    player,
		logger:    logger,
		interval:  interval,
		threshold: threshold.Seconds(),
		now:       time.Now,
	}
}

// SetPlayback replaces the record the corrector aligns to.
func (c *Corrector) SetPlayback(pb domain.Playback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playback = pb
}

func (c *Corrector) SetHidden(hidden bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hidden = hidden
}

// Tick compares the local position with the record and force-seeks when they
// differ by more than the threshold. It reports whether a seek was issued.
func (c *Corrector) Tick(ctx context.Context) (bool, error) {
	c.mu.Lock()
	pb := c.playback
	suspended := c.scrubbing || c.hidden
	c.mu.Unlock()

	if suspended || pb.Status != domain.StatusPlaying || pb.StartedAt == nil {
		return false, nil
	}

	// loading and buffering players are handled by the load directive
	if !c.player.IsPlaying() {
		return false, nil
	}

	expected := pb.Elapsed(c.now().UnixMilli())
	if d := c.player.Duration(); d > 0 && expected >= d {
		// past the end, the ended report takes over
		return false, nil
	}

	local := c.player.CurrentTime()
	if math.Abs(local-expected) <= c.threshold {
		return false, nil
	}

	c.logger.DebugContext(ctx, "correcting drift", "local", local, "expected", expected)

	if err := c.player.SeekTo(ctx, expected); err != nil {
		return false, err
	}

	return true, nil
}

// Run ticks until ctx is done.
func (c *Corrector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Tick(ctx); err != nil {
				c.logger.WarnContext(ctx, "drift correction failed", "error", err)
			}
		}
	}
}

// BeginScrub suspends correction and turns seek bar transitions off.
func (c *Corrector) BeginScrub() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrubbing = true
}

// MoveScrub returns the local preview position for percent. Nothing is written.
func (c *Corrector) MoveScrub(percent float64) float64 {
	return domain.EndScrubTarget(percent, c.duration())
}

// EndScrub finishes the gesture and returns the single seek target to issue.
// ok is false when no scrub was in progress.
func (c *Corrector) EndScrub(percent float64) (target float64, ok bool) {
	c.mu.Lock()
	ok = c.scrubbing
	c.scrubbing = false
	c.mu.Unlock()

	return domain.EndScrubTarget(percent, c.duration()), ok
}

// Transitions reports whether seek bar animations should run.
func (c *Corrector) Transitions() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.scrubbing
}

func (c *Corrector) duration() float64 {
	if d := c.player.Duration(); d > 0 {
		return d
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playback.Duration
}
