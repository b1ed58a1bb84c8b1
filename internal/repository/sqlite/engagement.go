package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
)

const (
	likesTable = "user_likes"
	savesTable = "user_saves"
)

// AddLike inserts a like event and increments the video's like counter in the
// same transaction. The counter moves only if the event is new.
func (db *DB) AddLike(ctx context.Context, videoID model.VideoID, username string, at time.Time) (bool, error) {
	return db.addEvent(ctx, likesTable, videoID, username, at, `UPDATE videos SET likes = likes + 1 WHERE id = ?`)
}

// RemoveLike deletes a like event and decrements the counter if one existed.
func (db *DB) RemoveLike(ctx context.Context, videoID model.VideoID, username string) (bool, error) {
	return db.removeEvent(ctx, likesTable, videoID, username, `UPDATE videos SET likes = MAX(likes - 1, 0) WHERE id = ?`)
}

// AddSave inserts a save event.
func (db *DB) AddSave(ctx context.Context, videoID model.VideoID, username string, at time.Time) (bool, error) {
	return db.addEvent(ctx, savesTable, videoID, username, at, "")
}

// RemoveSave deletes a save event.
func (db *DB) RemoveSave(ctx context.Context, videoID model.VideoID, username string) (bool, error) {
	return db.removeEvent(ctx, savesTable, videoID, username, "")
}

func (db *DB) addEvent(ctx context.Context, table string, videoID model.VideoID, username string, at time.Time, counterSQL string) (bool, error) {
	var added bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireVideo(ctx, tx, videoID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO `+table+` (username, video_id, created_at) VALUES (?, ?, ?)`,
			username, string(videoID), at.UTC())
		if err != nil {
			return fmt.Errorf("sqlite: inserting %s event: %w", table, err)
		}
		if added, err = changed(res); err != nil || !added || counterSQL == "" {
			return err
		}
		if _, err := tx.ExecContext(ctx, counterSQL, string(videoID)); err != nil {
			return fmt.Errorf("sqlite: updating counter for %s: %w", videoID, err)
		}
		return nil
	})
	return added, err
}

func (db *DB) removeEvent(ctx context.Context, table string, videoID model.VideoID, username string, counterSQL string) (bool, error) {
	var removed bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireVideo(ctx, tx, videoID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE username = ? AND video_id = ?`, username, string(videoID))
		if err != nil {
			return fmt.Errorf("sqlite: deleting %s event: %w", table, err)
		}
		if removed, err = changed(res); err != nil || !removed || counterSQL == "" {
			return err
		}
		if _, err := tx.ExecContext(ctx, counterSQL, string(videoID)); err != nil {
			return fmt.Errorf("sqlite: updating counter for %s: %w", videoID, err)
		}
		return nil
	})
	return removed, err
}

func requireVideo(ctx context.Context, tx *sql.Tx, videoID model.VideoID) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos WHERE id = ?`, string(videoID)).Scan(&exists); err != nil {
		return fmt.Errorf("sqlite: checking video %s: %w", videoID, err)
	}
	if exists == 0 {
		return apperror.NotFound("video", string(videoID))
	}
	return nil
}

// ListEngagements returns username's like or save events, newest first.
func (db *DB) ListEngagements(ctx context.Context, kind model.EngagementKind, username string) ([]model.Engagement, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT video_id, created_at FROM `+table+` WHERE username = ? ORDER BY created_at DESC, rowid DESC`, username)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s of %s: %w", table, username, err)
	}
	defer rows.Close()

	events := []model.Engagement{}
	for rows.Next() {
		e := model.Engagement{Kind: kind, Username: username}
		var videoID string
		if err := rows.Scan(&videoID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s event: %w", table, err)
		}
		e.VideoID = model.VideoID(videoID)
		events = append(events, e)
	}
	return events, rows.Err()
}

// EngagedVideoIDs reports which of ids username has liked or saved.
func (db *DB) EngagedVideoIDs(ctx context.Context, kind model.EngagementKind, username string, ids []model.VideoID) (map[model.VideoID]bool, error) {
	out := make(map[model.VideoID]bool, len(ids))
	if len(ids) == 0 || username == "" {
		return out, nil
	}
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, username)
	for _, id := range ids {
		args = append(args, string(id))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := db.conn.QueryContext(ctx,
		`SELECT video_id FROM `+table+` WHERE username = ? AND video_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking %s of %s: %w", table, username, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s video id: %w", table, err)
		}
		out[model.VideoID(id)] = true
	}
	return out, rows.Err()
}

func tableFor(kind model.EngagementKind) (string, error) {
	switch kind {
	case model.EngagementLike:
		return likesTable, nil
	case model.EngagementSave:
		return savesTable, nil
	}
	return "", fmt.Errorf("sqlite: unknown engagement kind %q", kind)
}
