package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
)

const userColumns = `id, username, email, password_hash, display_name, bio, profile_picture,
	verified, github_id, followers, following, is_online, last_login, last_seen, created_at`

// CreateUser inserts a new account. ID and CreatedAt are filled in when empty.
// A duplicate email or username is reported as apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	followers, err := encodeRelations(user.Followers)
	if err != nil {
		return fmt.Errorf("sqlite: encoding followers for %s: %w", user.Username, err)
	}
	following, err := encodeRelations(user.Following)
	if err != nil {
		return fmt.Errorf("sqlite: encoding following for %s: %w", user.Username, err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.Bio,
		user.ProfilePicture,
		user.Verified,
		nullInt64(user.GitHubID),
		followers,
		following,
		user.IsOnline,
		nullTime(user.LastLogin),
		nullTime(user.LastSeen),
		user.CreatedAt.UTC(),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "users.email"):
			return apperror.Conflict("email", "An account with this email already exists")
		case isUniqueViolation(err, "users.username"):
			return apperror.Conflict("username", "This username is already taken")
		case isUniqueViolation(err, "github_id"):
			return apperror.Conflict("githubId", "This GitHub account is already linked")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUserWhere(ctx, "id = ?", id, apperror.NotFound("user", id))
}

// GetUserByEmail looks a user up by lowercased email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUserWhere(ctx, "email = ?", strings.ToLower(email), apperror.NotFoundMessage("User not found"))
}

// GetUserByUsername looks a user up by lowercased username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUserWhere(ctx, "username = ?", strings.ToLower(username), apperror.NotFoundMessage("User not found"))
}

// GetUserByGitHubID finds the account linked to a GitHub user.
func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.getUserWhere(ctx, "github_id = ?", githubID, apperror.NotFoundMessage("User not found"))
}

func (db *DB) getUserWhere(ctx context.Context, where string, arg any, notFound error) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("sqlite: getting user (%s %v): %w", where, arg, err)
	}
	return u, nil
}

// LinkGitHub attaches a GitHub account to an existing user.
func (db *DB) LinkGitHub(ctx context.Context, userID string, githubID int64) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET github_id = ? WHERE id = ?`, githubID, userID)
	if err != nil {
		if isUniqueViolation(err, "github_id") {
			return apperror.Conflict("githubId", "This GitHub account is already linked")
		}
		return fmt.Errorf("sqlite: linking github %d to %s: %w", githubID, userID, err)
	}
	return requireRow(res, apperror.NotFound("user", userID))
}

// UpdatePresence records a login (online=true) or logout (online=false).
func (db *DB) UpdatePresence(ctx context.Context, userID string, online bool, at time.Time) error {
	column := "last_seen"
	if online {
		column = "last_login"
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_online = ?, `+column+` = ? WHERE id = ?`,
		online, at.UTC(), userID)
	if err != nil {
		return fmt.Errorf("sqlite: updating presence of %s: %w", userID, err)
	}
	return requireRow(res, apperror.NotFound("user", userID))
}

// NormalizeRelations replaces legacy numeric relationship fields with empty
// arrays for one user.
func (db *DB) NormalizeRelations(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx, normalizeRelationsSQL+` AND id = ?`, userID)
	if err != nil {
		return fmt.Errorf("sqlite: normalizing relations of %s: %w", userID, err)
	}
	return nil
}

// MigrateLegacyRelations normalizes every user still carrying a legacy field.
func (db *DB) MigrateLegacyRelations(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, normalizeRelationsSQL)
	if err != nil {
		return 0, fmt.Errorf("sqlite: migrating legacy relations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: migrating legacy relations: %w", err)
	}
	return n, nil
}

const normalizeRelationsSQL = `
	UPDATE users SET
		followers = CASE WHEN json_type(followers) = 'array' THEN followers ELSE '[]' END,
		following = CASE WHEN json_type(following) = 'array' THEN following ELSE '[]' END
	WHERE (json_type(followers) != 'array' OR json_type(following) != 'array')`

// ListUserIDs returns every user id, oldest account first.
func (db *DB) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddFollower adds followerID to userID's followers.
func (db *DB) AddFollower(ctx context.Context, userID, followerID string) error {
	return db.addMember(ctx, "followers", userID, followerID)
}

// RemoveFollower removes followerID from userID's followers.
func (db *DB) RemoveFollower(ctx context.Context, userID, followerID string) error {
	return db.removeMember(ctx, "followers", userID, followerID)
}

// AddFollowing adds targetID to userID's following.
func (db *DB) AddFollowing(ctx context.Context, userID, targetID string) error {
	return db.addMember(ctx, "following", userID, targetID)
}

// RemoveFollowing removes targetID from userID's following.
func (db *DB) RemoveFollowing(ctx context.Context, userID, targetID string) error {
	return db.removeMember(ctx, "following", userID, targetID)
}

// addMember appends member to the JSON array in column unless it is already
// there. A legacy numeric value is replaced by a one-element array.
func (db *DB) addMember(ctx context.Context, column, userID, member string) error {
	_, err := db.conn.ExecContext(ctx, fmt.Sprintf(`
		UPDATE users SET %[1]s = CASE
			WHEN json_type(%[1]s) = 'array' THEN json_insert(%[1]s, '$[#]', ?1)
			ELSE json_array(?1)
		END
		WHERE id = ?2
		  AND NOT (json_type(%[1]s) = 'array'
		       AND EXISTS (SELECT 1 FROM json_each(users.%[1]s) WHERE value = ?1))`, column),
		member, userID)
	if err != nil {
		return fmt.Errorf("sqlite: adding %s to %s of %s: %w", member, column, userID, err)
	}
	return db.requireUser(ctx, userID)
}

// removeMember drops member from the JSON array in column. Legacy values and
// missing members are left as they are.
func (db *DB) removeMember(ctx context.Context, column, userID, member string) error {
	_, err := db.conn.ExecContext(ctx, fmt.Sprintf(`
		UPDATE users SET %[1]s = (
			SELECT json_group_array(value) FROM json_each(users.%[1]s) WHERE value != ?1
		)
		WHERE id = ?2
		  AND json_type(%[1]s) = 'array'
		  AND EXISTS (SELECT 1 FROM json_each(users.%[1]s) WHERE value = ?1)`, column),
		member, userID)
	if err != nil {
		return fmt.Errorf("sqlite: removing %s from %s of %s: %w", member, column, userID, err)
	}
	return db.requireUser(ctx, userID)
}

func (db *DB) requireUser(ctx context.Context, userID string) error {
	var exists int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: checking user %s: %w", userID, err)
	}
	if exists == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                    model.User
		githubID             sql.NullInt64
		followers, following string
		lastLogin, lastSeen  sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&u.Bio,
		&u.ProfilePicture,
		&u.Verified,
		&githubID,
		&followers,
		&following,
		&u.IsOnline,
		&lastLogin,
		&lastSeen,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.GitHubID = githubID.Int64
	u.LastLogin = lastLogin.Time
	u.LastSeen = lastSeen.Time
	if u.Followers, err = decodeRelations(followers); err != nil {
		return nil, fmt.Errorf("decoding followers of %s: %w", u.ID, err)
	}
	if u.Following, err = decodeRelations(following); err != nil {
		return nil, fmt.Errorf("decoding following of %s: %w", u.ID, err)
	}
	return &u, nil
}

// decodeRelations reads a relationship column: a JSON array of ids or a
// legacy bare number.
func decodeRelations(raw string) (model.RelationSet, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return model.NewRelationSet(), nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var ids []string
		if err := json.Unmarshal([]byte(trimmed), &ids); err != nil {
			return model.RelationSet{}, err
		}
		return model.NewRelationSet(ids...), nil
	}
	var n json.Number
	if err := json.Unmarshal([]byte(trimmed), &n); err != nil {
		return model.RelationSet{}, fmt.Errorf("unexpected relationship value %q", trimmed)
	}
	return model.LegacyRelationSet(), nil
}

func encodeRelations(s model.RelationSet) (string, error) {
	if s.Legacy {
		return "0", nil
	}
	ids := s.IDs
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
