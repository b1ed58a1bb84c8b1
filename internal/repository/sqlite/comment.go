package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
)

// AddComment inserts the comment and bumps the video's comment counter in one
// transaction.
func (db *DB) AddComment(ctx context.Context, c *model.Comment) error {
	if c.ID == "" {
		c.ID = xid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.LikedBy == nil {
		c.LikedBy = []string{}
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE videos SET comments = comments + 1 WHERE id = ?`, string(c.VideoID))
		if err != nil {
			return fmt.Errorf("sqlite: incrementing comments of %s: %w", c.VideoID, err)
		}
		if err := requireRow(res, apperror.NotFound("video", string(c.VideoID))); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO comments (id, video_id, username, text, likes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, string(c.VideoID), c.Username, c.Text, c.Likes, c.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("sqlite: inserting comment on %s: %w", c.VideoID, err)
		}
		return nil
	})
}

// ListComments returns a video's comments newest first with their likers.
func (db *DB) ListComments(ctx context.Context, videoID model.VideoID) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, video_id, username, text, likes, created_at
		 FROM comments WHERE video_id = ? ORDER BY created_at DESC, id DESC`, string(videoID))
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments of %s: %w", videoID, err)
	}

	comments := []model.Comment{}
	index := map[string]int{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning comment: %w", err)
		}
		index[c.ID] = len(comments)
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	rows.Close()

	likeRows, err := db.conn.QueryContext(ctx,
		`SELECT cl.comment_id, cl.username FROM comment_likes cl
		 JOIN comments c ON c.id = cl.comment_id
		 WHERE c.video_id = ? ORDER BY cl.rowid`, string(videoID))
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comment likes of %s: %w", videoID, err)
	}
	defer likeRows.Close()

	for likeRows.Next() {
		var commentID, username string
		if err := likeRows.Scan(&commentID, &username); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment like: %w", err)
		}
		if i, ok := index[commentID]; ok {
			comments[i].LikedBy = append(comments[i].LikedBy, username)
		}
	}
	return comments, likeRows.Err()
}

// GetComment loads one comment of a video.
func (db *DB) GetComment(ctx context.Context, videoID model.VideoID, commentID string) (*model.Comment, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, video_id, username, text, likes, created_at
		 FROM comments WHERE id = ? AND video_id = ?`, commentID, string(videoID))
	c, err := scanComment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("comment", commentID)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", commentID, err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT username FROM comment_likes WHERE comment_id = ? ORDER BY rowid`, commentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing likes of comment %s: %w", commentID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment like: %w", err)
		}
		c.LikedBy = append(c.LikedBy, username)
	}
	return c, rows.Err()
}

// AddCommentLike records username's like on a comment and increments its
// counter when the like is new.
func (db *DB) AddCommentLike(ctx context.Context, commentID, username string) (bool, error) {
	var added bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO comment_likes (comment_id, username) VALUES (?, ?)`, commentID, username)
		if err != nil {
			return fmt.Errorf("sqlite: liking comment %s: %w", commentID, err)
		}
		if added, err = changed(res); err != nil || !added {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE comments SET likes = likes + 1 WHERE id = ?`, commentID)
		if err != nil {
			return fmt.Errorf("sqlite: incrementing likes of comment %s: %w", commentID, err)
		}
		return nil
	})
	return added, err
}

// RemoveCommentLike deletes username's like and decrements the counter when a
// like was actually removed.
func (db *DB) RemoveCommentLike(ctx context.Context, commentID, username string) (bool, error) {
	var removed bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM comment_likes WHERE comment_id = ? AND username = ?`, commentID, username)
		if err != nil {
			return fmt.Errorf("sqlite: unliking comment %s: %w", commentID, err)
		}
		if removed, err = changed(res); err != nil || !removed {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE comments SET likes = MAX(likes - 1, 0) WHERE id = ?`, commentID)
		if err != nil {
			return fmt.Errorf("sqlite: decrementing likes of comment %s: %w", commentID, err)
		}
		return nil
	})
	return removed, err
}

func scanComment(row rowScanner) (*model.Comment, error) {
	var (
		c       model.Comment
		videoID string
	)
	if err := row.Scan(&c.ID, &videoID, &c.Username, &c.Text, &c.Likes, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.VideoID = model.VideoID(videoID)
	c.LikedBy = []string{}
	return &c, nil
}

func changed(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	return n > 0, nil
}
