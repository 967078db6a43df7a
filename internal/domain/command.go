package domain

import "fmt"

type Action string

const (
	ActionRestart   Action = "restart"
	ActionPrevious  Action = "previous"
	ActionNext      Action = "next"
	ActionSeek      Action = "seek"
	ActionPlayByKey Action = "playByKey"
	ActionPause     Action = "pause"
	ActionResume    Action = "resume"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionRestart, ActionPrevious, ActionNext, ActionSeek, ActionPlayByKey, ActionPause, ActionResume:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Command is the pending directive in a room's single command slot.
type Command struct {
	Action    Action   `json:"action"`
	SeekTo    *float64 `json:"seek_to,omitempty"`
	Key       string   `json:"key,omitempty"`
	Timestamp int64    `json:"timestamp"`
	IssuedBy  string   `json:"issued_by"`
}

type RepeatMode string

const (
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

func (m RepeatMode) Valid() bool {
	return m == RepeatAll || m == RepeatOne
}
