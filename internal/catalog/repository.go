package catalog

import (
	"context"
	"database/sql"
)

type Repository interface {
	CreateVideo(ctx context.Context, v *Video, shots []Shot) error
	GetVideo(ctx context.Context, number int) (*Video, error)
	ListVideos(ctx context.Context) ([]*Video, error)
	ListShots(ctx context.Context, videoNumber int) ([]Shot, error)
}

type SQLRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) CreateVideo(ctx context.Context, v *Video, shots []Shot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO videos (number, filename, fps, total_frames)
		VALUES (?, ?, ?, ?)
	`, v.Number, v.Filename, v.FPS, v.TotalFrames); err != nil {
		return err
	}

	for _, s := range shots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shots (video_number, shot_number, first_frame, last_frame)
			VALUES (?, ?, ?, ?)
		`, v.Number, s.Number, s.FirstFrame, s.LastFrame); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *SQLRepository) GetVideo(ctx context.Context, number int) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT number, filename, fps, total_frames FROM videos WHERE number = ?
	`, number)

	var v Video
	err := row.Scan(&v.Number, &v.Filename, &v.FPS, &v.TotalFrames)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *SQLRepository) ListVideos(ctx context.Context) ([]*Video, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT number, filename, fps, total_frames FROM videos ORDER BY number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		var v Video
		if err := rows.Scan(&v.Number, &v.Filename, &v.FPS, &v.TotalFrames); err != nil {
			return nil, err
		}
		videos = append(videos, &v)
	}
	return videos, rows.Err()
}

func (r *SQLRepository) ListShots(ctx context.Context, videoNumber int) ([]Shot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT video_number, shot_number, first_frame, last_frame
		FROM shots WHERE video_number = ? ORDER BY shot_number
	`, videoNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shots []Shot
	for rows.Next() {
		var s Shot
		if err := rows.Scan(&s.VideoNumber, &s.Number, &s.FirstFrame, &s.LastFrame); err != nil {
			return nil, err
		}
		shots = append(shots, s)
	}
	return shots, rows.Err()
}
