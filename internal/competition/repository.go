package competition

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/vidarena/arena-server/internal/judging"
)

type Repository interface {
	CreateCompetition(ctx context.Context, c *Competition) error
	GetCompetition(ctx context.Context, id string) (*Competition, error)
	GetRunningCompetition(ctx context.Context) (*Competition, error)
	UpdateCompetition(ctx context.Context, c *Competition) error

	CreateTeam(ctx context.Context, t *Team) error
	GetTeam(ctx context.Context, id string) (*Team, error)
	GetTeamByNumber(ctx context.Context, competitionID string, number int) (*Team, error)
	ListTeams(ctx context.Context, competitionID string) ([]*Team, error)

	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateTaskState(ctx context.Context, t *Task) error

	CreateTaskResult(ctx context.Context, r *TaskResult) error
	GetTaskResult(ctx context.Context, taskID, teamID string) (*TaskResult, error)
	ListTaskResults(ctx context.Context, taskID string) ([]*TaskResult, error)
	UpdateTaskResult(ctx context.Context, r *TaskResult) error

	CreateSubmission(ctx context.Context, s *Submission) error
	GetSubmission(ctx context.Context, id string) (*Submission, error)
	UpdateSubmissionVerdict(ctx context.Context, id, verdict string, correct bool) error
	ListSubmissions(ctx context.Context, taskID string) ([]*Submission, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) CreateCompetition(ctx context.Context, c *Competition) error {
	seq, err := json.Marshal(c.TaskSequence)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO competitions (id, name, running, finished, started_at, ended_at, current_task_id, task_sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, boolToInt(c.Running), boolToInt(c.Finished),
		nullTime(c.StartedAt), nullTime(c.EndedAt), nullString(c.CurrentTaskID), string(seq))
	return err
}

func (r *SQLRepository) GetCompetition(ctx context.Context, id string) (*Competition, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, running, finished, started_at, ended_at, current_task_id, task_sequence
		FROM competitions WHERE id = ?
	`, id)
	return scanCompetition(row)
}

func (r *SQLRepository) GetRunningCompetition(ctx context.Context) (*Competition, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, running, finished, started_at, ended_at, current_task_id, task_sequence
		FROM competitions WHERE running = 1
	`)
	return scanCompetition(row)
}

func scanCompetition(row *sql.Row) (*Competition, error) {
	var c Competition
	var running, finished int
	var startedAt, endedAt, currentTaskID sql.NullString
	var seq string

	err := row.Scan(&c.ID, &c.Name, &running, &finished, &startedAt, &endedAt, &currentTaskID, &seq)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.Running = running == 1
	c.Finished = finished == 1
	c.StartedAt = parseTime(startedAt)
	c.EndedAt = parseTime(endedAt)
	c.CurrentTaskID = currentTaskID.String
	if err := json.Unmarshal([]byte(seq), &c.TaskSequence); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *SQLRepository) UpdateCompetition(ctx context.Context, c *Competition) error {
	seq, err := json.Marshal(c.TaskSequence)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE competitions
		SET name = ?, running = ?, finished = ?, started_at = ?, ended_at = ?, current_task_id = ?, task_sequence = ?
		WHERE id = ?
	`, c.Name, boolToInt(c.Running), boolToInt(c.Finished),
		nullTime(c.StartedAt), nullTime(c.EndedAt), nullString(c.CurrentTaskID), string(seq), c.ID)
	return err
}

func (r *SQLRepository) CreateTeam(ctx context.Context, t *Team) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO teams (id, competition_id, number, name) VALUES (?, ?, ?, ?)
	`, t.ID, t.CompetitionID, t.Number, t.Name)
	return err
}

func (r *SQLRepository) GetTeam(ctx context.Context, id string) (*Team, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, competition_id, number, name FROM teams WHERE id = ?
	`, id)
	return scanTeam(row)
}

func (r *SQLRepository) GetTeamByNumber(ctx context.Context, competitionID string, number int) (*Team, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, competition_id, number, name FROM teams WHERE competition_id = ? AND number = ?
	`, competitionID, number)
	return scanTeam(row)
}

func scanTeam(row *sql.Row) (*Team, error) {
	var t Team
	err := row.Scan(&t.ID, &t.CompetitionID, &t.Number, &t.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *SQLRepository) ListTeams(ctx context.Context, competitionID string) ([]*Team, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, competition_id, number, name FROM teams WHERE competition_id = ? ORDER BY number
	`, competitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []*Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.CompetitionID, &t.Number, &t.Name); err != nil {
			return nil, err
		}
		teams = append(teams, &t)
	}
	return teams, rows.Err()
}

func (r *SQLRepository) CreateTask(ctx context.Context, t *Task) error {
	validIDs, err := json.Marshal(t.ValidIDs)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (id, competition_id, name, family, novice, max_search_time,
			running, finished, started_at, ended_at, query_text, query_key, valid_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.CompetitionID, t.Name, string(t.Family), boolToInt(t.Novice), t.MaxSearchTime,
		boolToInt(t.Running), boolToInt(t.Finished), nullTime(t.StartedAt), nullTime(t.EndedAt),
		nullString(t.QueryText), nullString(t.QueryKey), string(validIDs)); err != nil {
		return err
	}

	for _, rg := range t.Ranges {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_ranges (id, task_id, video_number, start_frame, end_frame)
			VALUES (?, ?, ?, ?, ?)
		`, NewID(), t.ID, rg.VideoNumber, rg.StartFrame, rg.EndFrame); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *SQLRepository) GetTask(ctx context.Context, id string) (*Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, competition_id, name, family, novice, max_search_time,
			running, finished, started_at, ended_at, query_text, query_key, valid_ids
		FROM tasks WHERE id = ?
	`, id)

	var t Task
	var family string
	var novice, running, finished int
	var startedAt, endedAt, queryText, queryKey sql.NullString
	var validIDs string

	err := row.Scan(&t.ID, &t.CompetitionID, &t.Name, &family, &novice, &t.MaxSearchTime,
		&running, &finished, &startedAt, &endedAt, &queryText, &queryKey, &validIDs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.Family, err = judging.ParseFamily(family)
	if err != nil {
		return nil, err
	}
	t.Novice = novice == 1
	t.Running = running == 1
	t.Finished = finished == 1
	t.StartedAt = parseTime(startedAt)
	t.EndedAt = parseTime(endedAt)
	t.QueryText = queryText.String
	t.QueryKey = queryKey.String
	if err := json.Unmarshal([]byte(validIDs), &t.ValidIDs); err != nil {
		return nil, err
	}

	ranges, err := r.listRanges(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Ranges = ranges
	return &t, nil
}

func (r *SQLRepository) listRanges(ctx context.Context, taskID string) ([]judging.FrameRange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT video_number, start_frame, end_frame FROM task_ranges WHERE task_id = ?
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []judging.FrameRange
	for rows.Next() {
		var rg judging.FrameRange
		if err := rows.Scan(&rg.VideoNumber, &rg.StartFrame, &rg.EndFrame); err != nil {
			return nil, err
		}
		ranges = append(ranges, rg)
	}
	return ranges, rows.Err()
}

func (r *SQLRepository) UpdateTaskState(ctx context.Context, t *Task) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET running = ?, finished = ?, started_at = ?, ended_at = ? WHERE id = ?
	`, boolToInt(t.Running), boolToInt(t.Finished), nullTime(t.StartedAt), nullTime(t.EndedAt), t.ID)
	return err
}

func (r *SQLRepository) CreateTaskResult(ctx context.Context, res *TaskResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO task_results (id, task_id, team_id, attempts, correct, wrong, score, range_count, video_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.ID, res.TaskID, res.TeamID, res.Attempts, res.Correct, res.Wrong, res.Score, res.RangeCount, res.VideoCount)
	return err
}

func (r *SQLRepository) GetTaskResult(ctx context.Context, taskID, teamID string) (*TaskResult, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, task_id, team_id, attempts, correct, wrong, score, range_count, video_count
		FROM task_results WHERE task_id = ? AND team_id = ?
	`, taskID, teamID)

	var res TaskResult
	err := row.Scan(&res.ID, &res.TaskID, &res.TeamID, &res.Attempts, &res.Correct, &res.Wrong,
		&res.Score, &res.RangeCount, &res.VideoCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *SQLRepository) ListTaskResults(ctx context.Context, taskID string) ([]*TaskResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, team_id, attempts, correct, wrong, score, range_count, video_count
		FROM task_results WHERE task_id = ?
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*TaskResult
	for rows.Next() {
		var res TaskResult
		if err := rows.Scan(&res.ID, &res.TaskID, &res.TeamID, &res.Attempts, &res.Correct, &res.Wrong,
			&res.Score, &res.RangeCount, &res.VideoCount); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}

func (r *SQLRepository) UpdateTaskResult(ctx context.Context, res *TaskResult) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE task_results
		SET attempts = ?, correct = ?, wrong = ?, score = ?, range_count = ?, video_count = ?
		WHERE id = ?
	`, res.Attempts, res.Correct, res.Wrong, res.Score, res.RangeCount, res.VideoCount, res.ID)
	return err
}

func (r *SQLRepository) CreateSubmission(ctx context.Context, s *Submission) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO submissions (id, competition_id, task_id, team_id, video_number, frame,
			shot_number, item_id, search_time, verdict, correct, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.CompetitionID, s.TaskID, s.TeamID, s.VideoNumber, s.Frame,
		s.ShotNumber, nullString(s.ItemID), s.SearchTime, nullString(s.Verdict),
		boolToInt(s.Correct), s.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLRepository) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, competition_id, task_id, team_id, video_number, frame,
			shot_number, item_id, search_time, verdict, correct, created_at
		FROM submissions WHERE id = ?
	`, id)

	s, err := scanSubmission(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanSubmission(scan func(...any) error) (*Submission, error) {
	var s Submission
	var itemID, verdict sql.NullString
	var correct int
	var createdAt string

	err := scan(&s.ID, &s.CompetitionID, &s.TaskID, &s.TeamID, &s.VideoNumber, &s.Frame,
		&s.ShotNumber, &itemID, &s.SearchTime, &verdict, &correct, &createdAt)
	if err != nil {
		return nil, err
	}
	s.ItemID = itemID.String
	s.Verdict = verdict.String
	s.Correct = correct == 1
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &s, nil
}

func (r *SQLRepository) UpdateSubmissionVerdict(ctx context.Context, id, verdict string, correct bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE submissions SET verdict = ?, correct = ? WHERE id = ?
	`, verdict, boolToInt(correct), id)
	return err
}

func (r *SQLRepository) ListSubmissions(ctx context.Context, taskID string) ([]*Submission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, competition_id, task_id, team_id, video_number, frame,
			shot_number, item_id, search_time, verdict, correct, created_at
		FROM submissions WHERE task_id = ? ORDER BY created_at, id
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		s, err := scanSubmission(rows.Scan)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *SQLRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s.String)
	return t
}
