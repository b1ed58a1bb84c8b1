package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/repository"
)

const videoColumns = `id, username, description, likes, comments, shares, views,
	playback_id, asset_id, thumbnail, created_at`

// CreateVideo inserts a video. ID and CreatedAt are generated when empty.
func (db *DB) CreateVideo(ctx context.Context, v *model.Video) error {
	if v.ID == "" {
		v.ID = model.VideoID(xid.New().String())
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO videos (`+videoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(v.ID),
		v.Username,
		v.Description,
		v.Likes,
		v.Comments,
		v.Shares,
		v.Views,
		v.PlaybackID,
		v.AssetID,
		v.Thumbnail,
		v.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err, "videos.id") {
			return apperror.Conflict("id", fmt.Sprintf("video %s already exists", v.ID))
		}
		return fmt.Errorf("sqlite: inserting video: %w", err)
	}
	return nil
}

// GetVideo retrieves one video by id.
func (db *DB) GetVideo(ctx context.Context, id model.VideoID) (*model.Video, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, string(id))
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("video", string(id))
		}
		return nil, fmt.Errorf("sqlite: getting video %s: %w", id, err)
	}
	return v, nil
}

// GetVideoByAssetID finds the video created for a provider asset.
func (db *DB) GetVideoByAssetID(ctx context.Context, assetID string) (*model.Video, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE asset_id = ? AND asset_id != ''`, assetID)
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("no video for asset " + assetID)
		}
		return nil, fmt.Errorf("sqlite: getting video for asset %s: %w", assetID, err)
	}
	return v, nil
}

// GetVideosByIDs returns the videos that exist among ids, in the order of ids.
func (db *DB) GetVideosByIDs(ctx context.Context, ids []model.VideoID) ([]model.Video, error) {
	if len(ids) == 0 {
		return []model.Video{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting videos by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[model.VideoID]model.Video, len(ids))
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning video: %w", err)
		}
		byID[v.ID] = *v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating videos: %w", err)
	}

	out := make([]model.Video, 0, len(byID))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
			delete(byID, id)
		}
	}
	return out, nil
}

// ListVideos returns one page of videos matching q plus the total match count.
func (db *DB) ListVideos(ctx context.Context, q repository.VideoQuery) ([]model.Video, int64, error) {
	var (
		where []string
		args  []any
	)
	if q.Search != "" {
		pattern := "%" + escapeLike(q.Search) + "%"
		where = append(where, `(`+foldFunc+`(description) LIKE `+foldFunc+`(?) ESCAPE '\' OR `+
			foldFunc+`(username) LIKE `+foldFunc+`(?) ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if q.Username != "" {
		where = append(where, `username = ?`)
		args = append(args, strings.ToLower(q.Username))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting videos: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos`+clause+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing videos: %w", err)
	}
	defer rows.Close()

	videos := []model.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning video: %w", err)
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating videos: %w", err)
	}
	return videos, total, nil
}

// SumLikes totals the like counters of username's videos.
func (db *DB) SumLikes(ctx context.Context, username string) (int64, error) {
	var total int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(likes), 0) FROM videos WHERE username = ?`, strings.ToLower(username),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sqlite: summing likes for %s: %w", username, err)
	}
	return total, nil
}

// IncrementShares bumps the share counter and returns the new value.
func (db *DB) IncrementShares(ctx context.Context, id model.VideoID) (int64, error) {
	var shares int64
	err := db.conn.QueryRowContext(ctx,
		`UPDATE videos SET shares = shares + 1 WHERE id = ? RETURNING shares`, string(id),
	).Scan(&shares)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.NotFound("video", string(id))
		}
		return 0, fmt.Errorf("sqlite: sharing video %s: %w", id, err)
	}
	return shares, nil
}

func scanVideo(row rowScanner) (*model.Video, error) {
	var (
		v  model.Video
		id string
	)
	err := row.Scan(
		&id,
		&v.Username,
		&v.Description,
		&v.Likes,
		&v.Comments,
		&v.Shares,
		&v.Views,
		&v.PlaybackID,
		&v.AssetID,
		&v.Thumbnail,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.ID = model.VideoID(id)
	return &v, nil
}

// escapeLike escapes LIKE wildcards so the search term matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
