// Package catalog holds the reference video metadata used to convert
// between frame numbers and shot identifiers and to test submitted frames
// against target ranges.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Catalog is the in-memory index over imported videos and their shot
// boundaries. Lookups are read-heavy; imports are rare.
type Catalog struct {
	mu     sync.RWMutex
	repo   Repository
	videos map[int]*Video
	shots  map[int][]Shot // ordered by shot number
}

func New(repo Repository) *Catalog {
	return &Catalog{
		repo:   repo,
		videos: make(map[int]*Video),
		shots:  make(map[int][]Shot),
	}
}

// Load populates the index from the repository.
func (c *Catalog) Load(ctx context.Context) error {
	videos, err := c.repo.ListVideos(ctx)
	if err != nil {
		return fmt.Errorf("failed to list videos: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.videos = make(map[int]*Video, len(videos))
	c.shots = make(map[int][]Shot, len(videos))
	for _, v := range videos {
		shots, err := c.repo.ListShots(ctx, v.Number)
		if err != nil {
			return fmt.Errorf("failed to list shots for video %d: %w", v.Number, err)
		}
		c.videos[v.Number] = v
		c.shots[v.Number] = shots
	}
	return nil
}

// Import persists a video with its shot boundaries and adds it to the index.
func (c *Catalog) Import(ctx context.Context, v *Video, shots []Shot) error {
	if v.FPS <= 0 {
		return fmt.Errorf("video %d: fps must be positive", v.Number)
	}
	for i := range shots {
		shots[i].VideoNumber = v.Number
		shots[i].Number = i + 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.videos[v.Number]; exists {
		return fmt.Errorf("video %d already imported", v.Number)
	}
	if err := c.repo.CreateVideo(ctx, v, shots); err != nil {
		return err
	}
	c.videos[v.Number] = v
	c.shots[v.Number] = shots
	return nil
}

// Video returns the video with the given number, or nil if unknown.
func (c *Catalog) Video(number int) *Video {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.videos[number]
}

// ShotForFrame maps a frame to its 1-based shot number by binary search
// over the shot boundaries.
func (c *Catalog) ShotForFrame(videoNumber, frame int) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	shots, ok := c.shots[videoNumber]
	if !ok {
		return 0, fmt.Errorf("unknown video %d", videoNumber)
	}

	i := sort.Search(len(shots), func(i int) bool {
		return shots[i].LastFrame >= frame
	})
	if i == len(shots) || shots[i].FirstFrame > frame {
		return 0, fmt.Errorf("frame %d outside shot boundaries of video %d", frame, videoNumber)
	}
	return shots[i].Number, nil
}

// ShotStartSeconds returns the start time of a shot in seconds.
func (c *Catalog) ShotStartSeconds(videoNumber, shotNumber int) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	shots, ok := c.shots[videoNumber]
	if !ok {
		return 0, fmt.Errorf("unknown video %d", videoNumber)
	}
	if shotNumber < 1 || shotNumber > len(shots) {
		return 0, fmt.Errorf("unknown shot %d of video %d", shotNumber, videoNumber)
	}
	v := c.videos[videoNumber]
	return float64(shots[shotNumber-1].FirstFrame) / v.FPS, nil
}

// FrameWithin reports whether frame lies in [startFrame, endFrame] widened
// by tolerance frames on both ends.
func FrameWithin(frame, startFrame, endFrame, tolerance int) bool {
	return frame >= startFrame-tolerance && frame <= endFrame+tolerance
}
