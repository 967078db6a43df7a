package room

// Node names carried by room events.
const (
	NodeInfo           = "info"
	NodeSessions       = "sessions"
	NodePlayback       = "playback"
	NodeQueue          = "queue"
	NodeCommand        = "command"
	NodeLastController = "last_controller"
	NodeDeleted        = "deleted"
	NodeLikes          = "likes"
	NodeVersion        = "version"
)

// Event notifies subscribers that a node changed. Value carries the video id
// for likes events and the version string for version events.
type Event struct {
	Node  string `json:"node"`
	Value string `json:"value,omitempty"`
}
