package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/vind/internal/model"
)

// eventDoc is a row of user_likes or user_saves. The timestamp field name
// differs between the two collections, hence the two tags.
type eventDoc struct {
	Username string    `bson:"username"`
	VideoID  string    `bson:"videoId"`
	LikedAt  time.Time `bson:"likedAt,omitempty"`
	SavedAt  time.Time `bson:"savedAt,omitempty"`
}

func (e *eventDoc) at() time.Time {
	if !e.LikedAt.IsZero() {
		return e.LikedAt
	}
	return e.SavedAt
}

type eventKind struct {
	coll      *mongo.Collection
	timeField string
	counter   string
}

func (s *Store) kind(k model.EngagementKind) (eventKind, error) {
	switch k {
	case model.EngagementLike:
		return eventKind{coll: s.likes, timeField: "likedAt", counter: "likes"}, nil
	case model.EngagementSave:
		return eventKind{coll: s.saves, timeField: "savedAt"}, nil
	}
	return eventKind{}, fmt.Errorf("mongo: unknown engagement kind %q", k)
}

// AddLike records a like and increments the video's counter if the like is
// new. If the increment fails the event is removed again.
func (s *Store) AddLike(ctx context.Context, videoID model.VideoID, username string, at time.Time) (bool, error) {
	return s.addEvent(ctx, model.EngagementLike, videoID, username, at)
}

// RemoveLike deletes a like and decrements the counter if one existed.
func (s *Store) RemoveLike(ctx context.Context, videoID model.VideoID, username string) (bool, error) {
	return s.removeEvent(ctx, model.EngagementLike, videoID, username)
}

// AddSave records a save.
func (s *Store) AddSave(ctx context.Context, videoID model.VideoID, username string, at time.Time) (bool, error) {
	return s.addEvent(ctx, model.EngagementSave, videoID, username, at)
}

// RemoveSave deletes a save.
func (s *Store) RemoveSave(ctx context.Context, videoID model.VideoID, username string) (bool, error) {
	return s.removeEvent(ctx, model.EngagementSave, videoID, username)
}

// eventKeys returns every videoId value a row for the video may carry. Rows
// written before ids were canonical reference the ObjectID hex.
func eventKeys(doc *videoDoc) bson.A {
	keys := doc.keys()
	out := make(bson.A, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func (s *Store) addEvent(ctx context.Context, k model.EngagementKind, videoID model.VideoID, username string, at time.Time) (bool, error) {
	ek, err := s.kind(k)
	if err != nil {
		return false, err
	}
	doc, err := s.getVideoDoc(ctx, videoID)
	if err != nil {
		return false, err
	}
	canonical := doc.canonicalID()

	// The unique index only covers one encoding; a legacy row under the
	// other one still counts as an existing event.
	n, err := ek.coll.CountDocuments(ctx, bson.D{
		{Key: "username", Value: username},
		{Key: "videoId", Value: bson.D{{Key: "$in", Value: eventKeys(doc)}}},
	})
	if err != nil {
		return false, fmt.Errorf("mongo: checking %s event: %w", k, err)
	}
	if n > 0 {
		return false, nil
	}

	_, err = ek.coll.InsertOne(ctx, bson.D{
		{Key: "username", Value: username},
		{Key: "videoId", Value: string(canonical)},
		{Key: ek.timeField, Value: at.UTC()},
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mongo: inserting %s event: %w", k, err)
	}
	if ek.counter == "" {
		return true, nil
	}

	if _, err := s.incVideoCounter(ctx, canonical, ek.counter, 1); err != nil {
		_, _ = ek.coll.DeleteOne(context.WithoutCancel(ctx), bson.D{
			{Key: "username", Value: username},
			{Key: "videoId", Value: string(canonical)},
		})
		return false, err
	}
	return true, nil
}

func (s *Store) removeEvent(ctx context.Context, k model.EngagementKind, videoID model.VideoID, username string) (bool, error) {
	ek, err := s.kind(k)
	if err != nil {
		return false, err
	}
	doc, err := s.getVideoDoc(ctx, videoID)
	if err != nil {
		return false, err
	}
	canonical := doc.canonicalID()

	res, err := ek.coll.DeleteMany(ctx, bson.D{
		{Key: "username", Value: username},
		{Key: "videoId", Value: bson.D{{Key: "$in", Value: eventKeys(doc)}}},
	})
	if err != nil {
		return false, fmt.Errorf("mongo: deleting %s event: %w", k, err)
	}
	if res.DeletedCount == 0 || ek.counter == "" {
		return res.DeletedCount > 0, nil
	}

	filter := videoFilter(canonical)
	filter = append(filter, bson.E{Key: ek.counter, Value: bson.D{{Key: "$gt", Value: 0}}})
	_, err = s.videos.UpdateOne(ctx, filter,
		bson.D{{Key: "$inc", Value: bson.D{{Key: ek.counter, Value: -1}}}})
	if err != nil {
		return true, fmt.Errorf("mongo: decrementing %s of %s: %w", ek.counter, canonical, err)
	}
	return true, nil
}

// ListEngagements returns username's events of kind, newest first.
func (s *Store) ListEngagements(ctx context.Context, k model.EngagementKind, username string) ([]model.Engagement, error) {
	ek, err := s.kind(k)
	if err != nil {
		return nil, err
	}
	cur, err := ek.coll.Find(ctx,
		bson.D{{Key: "username", Value: username}},
		options.Find().SetSort(bson.D{{Key: ek.timeField, Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: listing %s events of %s: %w", k, username, err)
	}
	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: reading %s events: %w", k, err)
	}

	events := make([]model.Engagement, len(docs))
	for i := range docs {
		events[i] = model.Engagement{
			Kind:      k,
			Username:  docs[i].Username,
			VideoID:   model.VideoID(docs[i].VideoID),
			CreatedAt: docs[i].at(),
		}
	}
	return events, nil
}

// EngagedVideoIDs reports which of ids username has an event of kind for.
// Rows stored under either identifier of a video count, and hits are
// reported under the id the caller asked about.
func (s *Store) EngagedVideoIDs(ctx context.Context, k model.EngagementKind, username string, ids []model.VideoID) (map[model.VideoID]bool, error) {
	out := make(map[model.VideoID]bool, len(ids))
	if len(ids) == 0 || username == "" {
		return out, nil
	}
	ek, err := s.kind(k)
	if err != nil {
		return nil, err
	}

	docs, err := s.findVideoDocs(ctx, ids)
	if err != nil {
		return nil, err
	}
	requested := make(map[string]bool, len(ids))
	for _, id := range ids {
		requested[string(id)] = true
	}
	// Unresolved ids still match rows stored under themselves.
	alias := make(map[string]model.VideoID, len(ids)+len(docs))
	for _, id := range ids {
		alias[string(id)] = id
	}
	for i := range docs {
		keys := docs[i].keys()
		var asked model.VideoID
		for _, key := range keys {
			if requested[key] {
				asked = model.VideoID(key)
				break
			}
		}
		for _, key := range keys {
			alias[key] = asked
		}
	}

	in := make(bson.A, 0, len(alias))
	for key := range alias {
		in = append(in, key)
	}
	cur, err := ek.coll.Find(ctx,
		bson.D{{Key: "username", Value: username}, {Key: "videoId", Value: bson.D{{Key: "$in", Value: in}}}},
		options.Find().SetProjection(bson.D{{Key: "videoId", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: checking %s events of %s: %w", k, username, err)
	}
	var rows []eventDoc
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongo: reading %s events: %w", k, err)
	}
	for _, r := range rows {
		if id, ok := alias[r.VideoID]; ok {
			out[id] = true
		}
	}
	return out, nil
}
