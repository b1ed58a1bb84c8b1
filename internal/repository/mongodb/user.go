package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
)

type userDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Username       string             `bson:"username"`
	Email          string             `bson:"email"`
	Password       string             `bson:"password,omitempty"`
	DisplayName    string             `bson:"displayName"`
	Bio            string             `bson:"bio,omitempty"`
	ProfilePicture string             `bson:"profilePicture,omitempty"`
	Verified       bool               `bson:"verified"`
	GitHubID       int64              `bson:"githubId,omitempty"`
	Followers      relationField      `bson:"followers"`
	Following      relationField      `bson:"following"`
	IsOnline       bool               `bson:"isOnline"`
	LastLogin      *time.Time         `bson:"lastLogin,omitempty"`
	LastSeen       *time.Time         `bson:"lastSeen,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt"`
}

func (d *userDoc) toModel() *model.User {
	u := &model.User{
		ID:             d.ID.Hex(),
		Username:       d.Username,
		Email:          d.Email,
		PasswordHash:   d.Password,
		DisplayName:    d.DisplayName,
		Bio:            d.Bio,
		ProfilePicture: d.ProfilePicture,
		Verified:       d.Verified,
		GitHubID:       d.GitHubID,
		Followers:      d.Followers.toModel(),
		Following:      d.Following.toModel(),
		IsOnline:       d.IsOnline,
		CreatedAt:      d.CreatedAt,
	}
	if d.LastLogin != nil {
		u.LastLogin = *d.LastLogin
	}
	if d.LastSeen != nil {
		u.LastSeen = *d.LastSeen
	}
	return u
}

// CreateUser inserts a user. Duplicate email or username is a conflict.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	doc := userDoc{
		ID:             primitive.NewObjectID(),
		Username:       u.Username,
		Email:          u.Email,
		Password:       u.PasswordHash,
		DisplayName:    u.DisplayName,
		Bio:            u.Bio,
		ProfilePicture: u.ProfilePicture,
		Verified:       u.Verified,
		GitHubID:       u.GitHubID,
		Followers:      relationFromModel(u.Followers),
		Following:      relationFromModel(u.Following),
		IsOnline:       u.IsOnline,
		CreatedAt:      u.CreatedAt,
	}
	if !u.LastLogin.IsZero() {
		doc.LastLogin = &u.LastLogin
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateUserError(err)
		}
		return fmt.Errorf("mongo: inserting user %s: %w", u.Username, err)
	}
	u.ID = doc.ID.Hex()
	return nil
}

func duplicateUserError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "email"):
		return apperror.Conflict("email", "An account with this email already exists")
	case strings.Contains(msg, "githubId"):
		return apperror.Conflict("githubId", "This GitHub account is already linked")
	default:
		return apperror.Conflict("username", "This username is already taken")
	}
}

// GetUserByID loads a user by the hex form of its ObjectID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperror.NotFound("user", id)
	}
	return s.findUser(ctx, bson.D{{Key: "_id", Value: oid}}, apperror.NotFound("user", id))
}

// GetUserByEmail loads a user by lowercased email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: strings.ToLower(email)}}, apperror.NotFoundMessage("User not found"))
}

// GetUserByUsername loads a user by lowercased username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findUser(ctx, bson.D{{Key: "username", Value: strings.ToLower(username)}}, apperror.NotFoundMessage("User not found"))
}

// GetUserByGitHubID loads the user linked to a GitHub account.
func (s *Store) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return s.findUser(ctx, bson.D{{Key: "githubId", Value: githubID}}, apperror.NotFoundMessage("User not found"))
}

func (s *Store) findUser(ctx context.Context, filter bson.D, notFound error) (*model.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, notFound
		}
		return nil, fmt.Errorf("mongo: finding user %v: %w", filter, err)
	}
	return doc.toModel(), nil
}

// LinkGitHub stores the GitHub id on an existing user.
func (s *Store) LinkGitHub(ctx context.Context, userID string, githubID int64) error {
	return s.updateUser(ctx, userID, bson.D{{Key: "$set", Value: bson.D{{Key: "githubId", Value: githubID}}}})
}

// UpdatePresence records a login or logout.
func (s *Store) UpdatePresence(ctx context.Context, userID string, online bool, at time.Time) error {
	field := "lastSeen"
	if online {
		field = "lastLogin"
	}
	return s.updateUser(ctx, userID, bson.D{{Key: "$set", Value: bson.D{
		{Key: "isOnline", Value: online},
		{Key: field, Value: at},
	}}})
}

func (s *Store) updateUser(ctx context.Context, userID string, update bson.D) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return apperror.NotFound("user", userID)
	}
	res, err := s.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateUserError(err)
		}
		return fmt.Errorf("mongo: updating user %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// notArray matches documents whose field is anything but an array,
// including the legacy numeric form and a missing field.
func notArray(field string) bson.E {
	return bson.E{Key: field, Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$type", Value: "array"}}}}}
}

// NormalizeRelations replaces legacy followers/following values of one user
// with empty arrays.
func (s *Store) NormalizeRelations(ctx context.Context, userID string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return apperror.NotFound("user", userID)
	}
	for _, field := range []string{"followers", "following"} {
		_, err := s.users.UpdateOne(ctx,
			bson.D{{Key: "_id", Value: oid}, notArray(field)},
			bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: bson.A{}}}}})
		if err != nil {
			return fmt.Errorf("mongo: normalizing %s of %s: %w", field, userID, err)
		}
	}
	return nil
}

// MigrateLegacyRelations normalizes every user with a legacy field and
// returns how many users were touched.
func (s *Store) MigrateLegacyRelations(ctx context.Context) (int64, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{notArray("followers")},
		bson.D{notArray("following")},
	}}}
	n, err := s.users.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo: counting legacy users: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	for _, field := range []string{"followers", "following"} {
		_, err := s.users.UpdateMany(ctx,
			bson.D{notArray(field)},
			bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: bson.A{}}}}})
		if err != nil {
			return 0, fmt.Errorf("mongo: migrating %s: %w", field, err)
		}
	}
	return n, nil
}

// ListUserIDs returns all user ids, oldest first.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	cur, err := s.users.Find(ctx, bson.D{}, options.Find().
		SetProjection(bson.D{{Key: "_id", Value: 1}}).
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: listing user ids: %w", err)
	}
	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: reading user ids: %w", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID.Hex()
	}
	return ids, nil
}

// AddFollower adds followerID to userID's followers.
func (s *Store) AddFollower(ctx context.Context, userID, followerID string) error {
	return s.addMember(ctx, "followers", userID, followerID)
}

// RemoveFollower removes followerID from userID's followers.
func (s *Store) RemoveFollower(ctx context.Context, userID, followerID string) error {
	return s.removeMember(ctx, "followers", userID, followerID)
}

// AddFollowing adds targetID to userID's following.
func (s *Store) AddFollowing(ctx context.Context, userID, targetID string) error {
	return s.addMember(ctx, "following", userID, targetID)
}

// RemoveFollowing removes targetID from userID's following.
func (s *Store) RemoveFollowing(ctx context.Context, userID, targetID string) error {
	return s.removeMember(ctx, "following", userID, targetID)
}

// addMember uses $addToSet. $addToSet fails on a numeric field, so a legacy
// value is reset to an empty array first.
func (s *Store) addMember(ctx context.Context, field, userID, member string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return apperror.NotFound("user", userID)
	}
	_, err = s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, notArray(field)},
		bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: bson.A{}}}}})
	if err != nil {
		return fmt.Errorf("mongo: normalizing %s of %s: %w", field, userID, err)
	}

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: field, Value: member}}}})
	if err != nil {
		return fmt.Errorf("mongo: adding %s to %s of %s: %w", member, field, userID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// removeMember uses $pull on array fields only; legacy values stay as they are.
func (s *Store) removeMember(ctx context.Context, field, userID, member string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return apperror.NotFound("user", userID)
	}
	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: field, Value: bson.D{{Key: "$type", Value: "array"}}}},
		bson.D{{Key: "$pull", Value: bson.D{{Key: field, Value: member}}}})
	if err != nil {
		return fmt.Errorf("mongo: removing %s from %s of %s: %w", member, field, userID, err)
	}
	if res.MatchedCount == 0 {
		n, err := s.users.CountDocuments(ctx, bson.D{{Key: "_id", Value: oid}})
		if err != nil {
			return fmt.Errorf("mongo: checking user %s: %w", userID, err)
		}
		if n == 0 {
			return apperror.NotFound("user", userID)
		}
	}
	return nil
}
