package likes

type Song struct {
	VideoID    string `json:"video_id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Thumbnail  string `json:"thumbnail"`
	TotalLikes int    `json:"total_likes"`
}

type ToggleParams struct {
	VideoID   string
	UserID    string
	Title     string
	Artist    string
	Thumbnail string
}

type Likes struct {
	TotalLikes int  `json:"total_likes"`
	Liked      bool `json:"liked"`
}
