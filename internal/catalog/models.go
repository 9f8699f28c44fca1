package catalog

// Video holds static per-video reference metadata, immutable once imported.
type Video struct {
	Number      int     `json:"number"`
	Filename    string  `json:"filename"`
	FPS         float64 `json:"fps"`
	TotalFrames int     `json:"total_frames"`
}

// Shot is a contiguous frame interval of a video. Shot numbers are 1-based
// in the order of the reference shot-boundary list.
type Shot struct {
	VideoNumber int `json:"video_number"`
	Number      int `json:"number"`
	FirstFrame  int `json:"first_frame"`
	LastFrame   int `json:"last_frame"`
}
