package domain

import "math"

type Status string

const (
	StatusIdle    Status = "idle"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

const (
	IdleTitle     = "Waiting for requests"
	IdleArtist    = "Add a song from your phone"
	DefaultVolume = 50
)

// Playback describes what a room is playing right now.
// While playing only StartedAt is meaningful, while paused only CurrentTime is.
type Playback struct {
	Status          Status   `json:"status"`
	VideoID         string   `json:"video_id,omitempty"`
	Title           string   `json:"title"`
	Artist          string   `json:"artist"`
	Thumbnail       string   `json:"thumbnail,omitempty"`
	RequestedBy     string   `json:"requested_by,omitempty"`
	RequestedByName string   `json:"requested_by_name,omitempty"`
	QueueKey        string   `json:"queue_key,omitempty"`
	Duration        float64  `json:"duration"`
	Volume          int      `json:"volume"`
	StartedAt       *int64   `json:"started_at,omitempty"`
	CurrentTime     *float64 `json:"current_time,omitempty"`
	Interrupted     bool     `json:"interrupted"`
}

func IdlePlayback(volume int) Playback {
	return Playback{
		Status: StatusIdle,
		Title:  IdleTitle,
		Artist: IdleArtist,
		Volume: volume,
	}
}

// Elapsed returns the playback position in seconds at now (unix ms).
func (p Playback) Elapsed(now int64) float64 {
	switch p.Status {
	case StatusPlaying:
		if p.StartedAt == nil {
			return 0
		}
		return math.Max(0, float64(now-*p.StartedAt)/1000)
	case StatusPaused:
		if p.CurrentTime == nil {
			return 0
		}
		return *p.CurrentTime
	default:
		return 0
	}
}

// StartedAtFor returns the start timestamp that makes now-startedAt equal elapsed.
func StartedAtFor(now int64, elapsed float64) int64 {
	return now - int64(math.Round(elapsed*1000))
}

// ClampSeek keeps a seek target inside [0, duration-1]. An unknown (zero) duration
// only clamps the lower bound.
func ClampSeek(target, duration float64) float64 {
	if target < 0 || math.IsNaN(target) {
		return 0
	}
	if duration > 0 && target >= duration-1 {
		return math.Max(0, duration-1)
	}

	return target
}

// EndScrubTarget converts a seek bar percentage into a clamped target in seconds.
func EndScrubTarget(percent, duration float64) float64 {
	percent = math.Min(100, math.Max(0, percent))
	return ClampSeek(duration*percent/100, duration)
}
