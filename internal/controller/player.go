package controller

import (
	"context"
	"sync"
	"time"
)

const (
	playerPlaying   = "playing"
	playerPaused    = "paused"
	playerEnded     = "ended"
	playerBuffering = "buffering"
	playerCued      = "cued"
	playerError     = "error"
)

// wsPlayer mirrors the browser's embedded player from its reports and sends
// it directives. Between reports a playing position is extrapolated.
type wsPlayer struct {
	cl  *client
	now func() time.Time

	mu         sync.Mutex
	videoId    string
	queueKey   string
	state      string
	current    float64
	duration   float64
	volume     *int
	reportedAt time.Time
}

func newWSPlayer(cl *client) *wsPlayer {
	return &wsPlayer{cl: cl, now: time.Now}
}

func (p *wsPlayer) report(state string, current, duration float64, volume *int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state != "" {
		p.state = state
	}
	p.current = current
	if duration > 0 {
		p.duration = duration
	}
	if volume != nil {
		p.volume = volume
	}
	p.reportedAt = p.now()
}

func (p *wsPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == playerPlaying {
		return p.current + p.now().Sub(p.reportedAt).Seconds()
	}

	return p.current
}

func (p *wsPlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *wsPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == playerPlaying
}

func (p *wsPlayer) VideoID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoId
}

// QueueKey is the queue entry whose video was last loaded.
func (p *wsPlayer) QueueKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queueKey
}

func (p *wsPlayer) Volume() *int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.volume == nil {
		return nil
	}
	v := *p.volume

	return &v
}

func (p *wsPlayer) SeekTo(_ context.Context, seconds float64) error {
	if err := p.cl.write(&Output{Type: "PLAYER_SEEK", Payload: map[string]any{"seconds": seconds}}); err != nil {
		return err
	}

	p.mu.Lock()
	p.current = seconds
	p.reportedAt = p.now()
	p.mu.Unlock()

	return nil
}

// Load starts the video of queue entry queueKey at start seconds, or cues it
// when play is false.
func (p *wsPlayer) Load(videoId, queueKey string, start float64, play bool) error {
	msgType, state := "PLAYER_CUE", playerCued
	if play {
		msgType, state = "PLAYER_LOAD", playerBuffering
	}

	if err := p.cl.write(&Output{Type: msgType, Payload: map[string]any{
		"video_id":      videoId,
		"start_seconds": start,
	}}); err != nil {
		return err
	}

	p.mu.Lock()
	p.videoId = videoId
	p.queueKey = queueKey
	p.state = state
	p.current = start
	p.duration = 0
	p.reportedAt = p.now()
	p.mu.Unlock()

	return nil
}

func (p *wsPlayer) Play() error {
	if err := p.cl.write(&Output{Type: "PLAYER_PLAY"}); err != nil {
		return err
	}

	p.setState(playerBuffering)

	return nil
}

func (p *wsPlayer) Pause() error {
	if err := p.cl.write(&Output{Type: "PLAYER_PAUSE"}); err != nil {
		return err
	}

	p.mu.Lock()
	if p.state == playerPlaying {
		p.current += p.now().Sub(p.reportedAt).Seconds()
	}
	p.state = playerPaused
	p.reportedAt = p.now()
	p.mu.Unlock()

	return nil
}

func (p *wsPlayer) SetVolume(volume int) error {
	if err := p.cl.write(&Output{Type: "PLAYER_VOLUME", Payload: map[string]any{"volume": volume}}); err != nil {
		return err
	}

	p.mu.Lock()
	p.volume = &volume
	p.mu.Unlock()

	return nil
}

func (p *wsPlayer) setState(state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}
