package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
)

type commentDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	VideoID   string             `bson:"videoId"`
	Username  string             `bson:"username"`
	Text      string             `bson:"text"`
	Likes     int64              `bson:"likes"`
	LikedBy   []string           `bson:"likedBy"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d *commentDoc) toModel() model.Comment {
	likedBy := d.LikedBy
	if likedBy == nil {
		likedBy = []string{}
	}
	return model.Comment{
		ID:        d.ID.Hex(),
		VideoID:   model.VideoID(d.VideoID),
		Username:  d.Username,
		Text:      d.Text,
		Likes:     d.Likes,
		LikedBy:   likedBy,
		CreatedAt: d.CreatedAt,
	}
}

// AddComment inserts the comment under the video's canonical id and then
// increments the video's comment counter. A failed increment deletes the
// comment again.
func (s *Store) AddComment(ctx context.Context, c *model.Comment) error {
	v, err := s.GetVideo(ctx, c.VideoID)
	if err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.LikedBy == nil {
		c.LikedBy = []string{}
	}

	doc := commentDoc{
		ID:        primitive.NewObjectID(),
		VideoID:   string(v.ID),
		Username:  c.Username,
		Text:      c.Text,
		Likes:     c.Likes,
		LikedBy:   c.LikedBy,
		CreatedAt: c.CreatedAt,
	}
	if _, err := s.comments.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo: inserting comment on %s: %w", v.ID, err)
	}

	if _, err := s.incVideoCounter(ctx, v.ID, "comments", 1); err != nil {
		_, _ = s.comments.DeleteOne(context.WithoutCancel(ctx), bson.D{{Key: "_id", Value: doc.ID}})
		return err
	}
	c.ID = doc.ID.Hex()
	c.VideoID = v.ID
	return nil
}

// ListComments returns a video's comments newest first.
func (s *Store) ListComments(ctx context.Context, videoID model.VideoID) ([]model.Comment, error) {
	keys := bson.A{string(videoID)}
	if v, err := s.GetVideo(ctx, videoID); err == nil && v.ID != videoID {
		keys = append(keys, string(v.ID))
	}

	cur, err := s.comments.Find(ctx,
		bson.D{{Key: "videoId", Value: bson.D{{Key: "$in", Value: keys}}}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: listing comments of %s: %w", videoID, err)
	}
	var docs []commentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: reading comments: %w", err)
	}
	comments := make([]model.Comment, len(docs))
	for i := range docs {
		comments[i] = docs[i].toModel()
	}
	return comments, nil
}

// GetComment loads one comment of a video.
func (s *Store) GetComment(ctx context.Context, videoID model.VideoID, commentID string) (*model.Comment, error) {
	oid, err := primitive.ObjectIDFromHex(commentID)
	if err != nil {
		return nil, apperror.NotFound("comment", commentID)
	}
	var doc commentDoc
	if err := s.comments.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("comment", commentID)
		}
		return nil, fmt.Errorf("mongo: getting comment %s: %w", commentID, err)
	}
	c := doc.toModel()
	if c.VideoID != videoID {
		v, err := s.GetVideo(ctx, videoID)
		if err != nil || v.ID != c.VideoID {
			return nil, apperror.NotFound("comment", commentID)
		}
	}
	return &c, nil
}

// AddCommentLike adds username to likedBy and bumps the counter in a single
// conditional update, so a repeated like changes nothing.
func (s *Store) AddCommentLike(ctx context.Context, commentID, username string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(commentID)
	if err != nil {
		return false, apperror.NotFound("comment", commentID)
	}
	res, err := s.comments.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "likedBy", Value: bson.D{{Key: "$ne", Value: username}}}},
		bson.D{
			{Key: "$addToSet", Value: bson.D{{Key: "likedBy", Value: username}}},
			{Key: "$inc", Value: bson.D{{Key: "likes", Value: 1}}},
		})
	if err != nil {
		return false, fmt.Errorf("mongo: liking comment %s: %w", commentID, err)
	}
	return res.ModifiedCount > 0, nil
}

// RemoveCommentLike is the inverse of AddCommentLike.
func (s *Store) RemoveCommentLike(ctx context.Context, commentID, username string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(commentID)
	if err != nil {
		return false, apperror.NotFound("comment", commentID)
	}
	res, err := s.comments.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "likedBy", Value: username}},
		bson.D{
			{Key: "$pull", Value: bson.D{{Key: "likedBy", Value: username}}},
			{Key: "$inc", Value: bson.D{{Key: "likes", Value: -1}}},
		})
	if err != nil {
		return false, fmt.Errorf("mongo: unliking comment %s: %w", commentID, err)
	}
	return res.ModifiedCount > 0, nil
}
