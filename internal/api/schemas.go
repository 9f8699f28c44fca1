package api

import (
	"time"

	"github.com/vidarena/arena-server/internal/competition"
	"github.com/vidarena/arena-server/internal/judging"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type CreateCompetitionRequest struct {
	Name string `json:"name"`
}

type CompetitionResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Running       bool     `json:"running"`
	Finished      bool     `json:"finished"`
	StartedAt     string   `json:"started_at,omitempty"`
	EndedAt       string   `json:"ended_at,omitempty"`
	TaskSequence  []string `json:"task_sequence"`
	CurrentTaskID string   `json:"current_task_id,omitempty"`
}

type AddTeamRequest struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

type TeamResponse struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Name   string `json:"name"`
}

type RangeRequest struct {
	VideoNumber int `json:"video_number"`
	StartFrame  int `json:"start_frame"`
	EndFrame    int `json:"end_frame"`
}

type CreateTaskRequest struct {
	CompetitionID string         `json:"competition_id"`
	Name          string         `json:"name"`
	Family        string         `json:"family"`
	Novice        bool           `json:"novice"`
	MaxSearchTime int            `json:"max_search_time"`
	Ranges        []RangeRequest `json:"ranges,omitempty"`
	QueryText     string         `json:"query_text,omitempty"`
	QueryKey      string         `json:"query_key,omitempty"`
	ValidIDs      []string       `json:"valid_ids,omitempty"`
}

type TaskResponse struct {
	ID            string `json:"id"`
	CompetitionID string `json:"competition_id"`
	Name          string `json:"name"`
	Family        string `json:"family"`
	Novice        bool   `json:"novice"`
	MaxSearchTime int    `json:"max_search_time"`
	Running       bool   `json:"running"`
	Finished      bool   `json:"finished"`
	StartedAt     string `json:"started_at,omitempty"`
	EndedAt       string `json:"ended_at,omitempty"`
}

type SubmitRequest struct {
	Team  int    `json:"team"`
	Video int    `json:"video,omitempty"`
	Frame int    `json:"frame,omitempty"`
	Item  string `json:"item,omitempty"`
}

type SubmitResponse struct {
	SubmissionID string  `json:"submission_id"`
	Status       string  `json:"status"`
	SearchTimeS  float64 `json:"search_time_s"`
}

type SubmissionResponse struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	TeamID      string  `json:"team_id"`
	VideoNumber int     `json:"video_number,omitempty"`
	Frame       int     `json:"frame,omitempty"`
	ShotNumber  int     `json:"shot_number,omitempty"`
	ItemID      string  `json:"item_id,omitempty"`
	SearchTimeS float64 `json:"search_time_s"`
	Verdict     string  `json:"verdict,omitempty"`
	Correct     bool    `json:"correct"`
	CreatedAt   string  `json:"created_at"`
}

type SubmissionsResponse struct {
	Submissions []SubmissionResponse `json:"submissions"`
}

type VerdictRequest struct {
	SubmissionID string `json:"submission_id"`
	Correct      bool   `json:"correct"`
}

type ImportShotRequest struct {
	FirstFrame int `json:"first_frame"`
	LastFrame  int `json:"last_frame"`
}

type ImportVideoRequest struct {
	Number      int                 `json:"number"`
	Filename    string              `json:"filename"`
	FPS         float64             `json:"fps"`
	TotalFrames int                 `json:"total_frames"`
	Shots       []ImportShotRequest `json:"shots"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func CompetitionToResponse(c *competition.Competition) CompetitionResponse {
	resp := CompetitionResponse{
		ID:            c.ID,
		Name:          c.Name,
		Running:       c.Running,
		Finished:      c.Finished,
		TaskSequence:  c.TaskSequence,
		CurrentTaskID: c.CurrentTaskID,
	}
	if !c.StartedAt.IsZero() {
		resp.StartedAt = c.StartedAt.Format(time.RFC3339)
	}
	if !c.EndedAt.IsZero() {
		resp.EndedAt = c.EndedAt.Format(time.RFC3339)
	}
	return resp
}

func TeamToResponse(t *competition.Team) TeamResponse {
	return TeamResponse{ID: t.ID, Number: t.Number, Name: t.Name}
}

func TaskToResponse(t *competition.Task) TaskResponse {
	resp := TaskResponse{
		ID:            t.ID,
		CompetitionID: t.CompetitionID,
		Name:          t.Name,
		Family:        string(t.Family),
		Novice:        t.Novice,
		MaxSearchTime: t.MaxSearchTime,
		Running:       t.Running,
		Finished:      t.Finished,
	}
	if !t.StartedAt.IsZero() {
		resp.StartedAt = t.StartedAt.Format(time.RFC3339)
	}
	if !t.EndedAt.IsZero() {
		resp.EndedAt = t.EndedAt.Format(time.RFC3339)
	}
	return resp
}

func SubmissionToResponse(s *competition.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:          s.ID,
		TaskID:      s.TaskID,
		TeamID:      s.TeamID,
		VideoNumber: s.VideoNumber,
		Frame:       s.Frame,
		ShotNumber:  s.ShotNumber,
		ItemID:      s.ItemID,
		SearchTimeS: s.SearchTime,
		Verdict:     s.Verdict,
		Correct:     s.Correct,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
}

func taskRanges(reqs []RangeRequest) []judging.FrameRange {
	ranges := make([]judging.FrameRange, len(reqs))
	for i, r := range reqs {
		ranges[i] = judging.FrameRange{VideoNumber: r.VideoNumber, StartFrame: r.StartFrame, EndFrame: r.EndFrame}
	}
	return ranges
}
