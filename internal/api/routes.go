package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vidarena/arena-server/internal/catalog"
	"github.com/vidarena/arena-server/internal/competition"
	"github.com/vidarena/arena-server/internal/config"
	"github.com/vidarena/arena-server/internal/judging"
	"github.com/vidarena/arena-server/internal/metrics"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(metrics.RequestMiddleware(cfg.Metrics))
	}

	r.Get("/health", healthHandler(cfg))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler(func() {
			pool := cfg.Service.Pool()
			cfg.Metrics.SetIdleJudges(pool.IdleCount())
			cfg.Metrics.SetQueueDepth(pool.QueueDepth())
		}))
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/state", stateHandler(cfg))

		r.Post("/competitions", createCompetitionHandler(cfg))
		r.Post("/competitions/{id}/teams", addTeamHandler(cfg))
		r.Post("/competitions/{id}/start", startCompetitionHandler(cfg))
		r.Post("/competitions/stop", stopCompetitionHandler(cfg))

		r.Post("/tasks", createTaskHandler(cfg))
		r.Post("/tasks/{id}/start", startTaskHandler(cfg))
		r.Post("/tasks/stop", stopTaskHandler(cfg))
		r.Get("/tasks/{id}/submissions", listSubmissionsHandler(cfg))

		r.Post("/submit", submitHandler(cfg))

		r.Post("/judges/{id}/register", registerJudgeHandler(cfg))
		r.Post("/judges/{id}/unregister", unregisterJudgeHandler(cfg))
		r.Post("/judges/{id}/verdict", verdictHandler(cfg))

		r.Post("/videos", importVideoHandler(cfg))
	})

	return r
}

// writeServiceError maps the engine's sentinel errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, competition.ErrCompetitionNotFound),
		errors.Is(err, competition.ErrTaskNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, competition.ErrCompetitionRunning),
		errors.Is(err, competition.ErrCompetitionFinished),
		errors.Is(err, competition.ErrNoCompetition),
		errors.Is(err, competition.ErrTaskCurrent),
		errors.Is(err, competition.ErrCountdownInProgress),
		errors.Is(err, competition.ErrTaskAlreadyRun),
		errors.Is(err, competition.ErrTaskBlocksStop),
		errors.Is(err, competition.ErrNoTaskRunning),
		errors.Is(err, competition.ErrWrongCompetition),
		errors.Is(err, competition.ErrNoAssignment):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, competition.ErrUnknownTeam),
		errors.Is(err, competition.ErrUnknownVideo),
		errors.Is(err, competition.ErrInvalidSubmission):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

func stateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Service.State())
	}
}

func createCompetitionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCompetitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Name == "" {
			WriteError(w, http.StatusBadRequest, "name is required", "BAD_REQUEST")
			return
		}

		comp, err := cfg.Service.CreateCompetition(r.Context(), req.Name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, CompetitionToResponse(comp))
	}
}

func addTeamHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req AddTeamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Number <= 0 || req.Name == "" {
			WriteError(w, http.StatusBadRequest, "team number and name are required", "BAD_REQUEST")
			return
		}

		team, err := cfg.Service.AddTeam(r.Context(), id, req.Number, req.Name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, TeamToResponse(team))
	}
}

func startCompetitionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		comp, err := cfg.Service.StartCompetition(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, CompetitionToResponse(comp))
	}
}

func stopCompetitionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Service.StopCompetition(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createTaskHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.CompetitionID == "" || req.Name == "" {
			WriteError(w, http.StatusBadRequest, "competition_id and name are required", "BAD_REQUEST")
			return
		}

		task, err := cfg.Service.CreateTask(r.Context(), &competition.Task{
			CompetitionID: req.CompetitionID,
			Name:          req.Name,
			Family:        judging.Family(req.Family),
			Novice:        req.Novice,
			MaxSearchTime: req.MaxSearchTime,
			Ranges:        taskRanges(req.Ranges),
			QueryText:     req.QueryText,
			QueryKey:      req.QueryKey,
			ValidIDs:      req.ValidIDs,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, TaskToResponse(task))
	}
}

func startTaskHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, err := cfg.Service.StartTask(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, TaskToResponse(task))
	}
}

func stopTaskHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Service.StopTask(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listSubmissionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := cfg.Service.Submissions(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := SubmissionsResponse{Submissions: make([]SubmissionResponse, len(subs))}
		for i, s := range subs {
			resp.Submissions[i] = SubmissionToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func submitHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		result, err := cfg.Service.Submit(r.Context(), competition.Guess{
			TeamNumber:  req.Team,
			VideoNumber: req.Video,
			Frame:       req.Frame,
			ItemID:      req.Item,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		status := result.Submission.Verdict
		switch {
		case result.Duplicate:
			status = "duplicate"
		case result.Pending:
			status = "pending"
		}
		WriteJSON(w, http.StatusOK, SubmitResponse{
			SubmissionID: result.Submission.ID,
			Status:       status,
			SearchTimeS:  result.Submission.SearchTime,
		})
	}
}

func registerJudgeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "judge id required", "BAD_REQUEST")
			return
		}
		cfg.Service.RegisterJudge(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func unregisterJudgeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "judge id required", "BAD_REQUEST")
			return
		}
		cfg.Service.UnregisterJudge(r.Context(), id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func verdictHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req VerdictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.SubmissionID == "" {
			WriteError(w, http.StatusBadRequest, "submission_id is required", "BAD_REQUEST")
			return
		}

		if err := cfg.Service.SubmitLiveVerdict(r.Context(), id, req.SubmissionID, req.Correct); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func importVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		shots := make([]catalog.Shot, len(req.Shots))
		for i, s := range req.Shots {
			shots[i] = catalog.Shot{VideoNumber: req.Number, FirstFrame: s.FirstFrame, LastFrame: s.LastFrame}
		}
		v := &catalog.Video{
			Number:      req.Number,
			Filename:    req.Filename,
			FPS:         req.FPS,
			TotalFrames: req.TotalFrames,
		}
		if err := cfg.Catalog.Import(r.Context(), v, shots); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}
