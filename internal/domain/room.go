package domain

// RoomInfo is the metadata of a room.
type RoomInfo struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	CreatedAt     int64      `json:"created_at"`
	Private       bool       `json:"private"`
	SharedControl bool       `json:"shared_control"`
	Shuffle       bool       `json:"shuffle"`
	Repeat        RepeatMode `json:"repeat"`
	CreatedBy     string     `json:"created_by"`
	CreatorName   string     `json:"creator_name"`
}

// LastController is a display-only breadcrumb of who last issued a control action.
type LastController struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Action    Action `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// User is the identity carried by a connection.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
