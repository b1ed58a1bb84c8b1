package mongodb

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/repository"
)

// videoDoc mirrors the videos collection. Older documents have no "id" field
// and are known only by _id.
type videoDoc struct {
	OID         primitive.ObjectID `bson:"_id,omitempty"`
	ID          string             `bson:"id,omitempty"`
	Username    string             `bson:"username"`
	Description string             `bson:"description"`
	Likes       int64              `bson:"likes"`
	Comments    int64              `bson:"comments"`
	Shares      int64              `bson:"shares"`
	Views       int64              `bson:"views"`
	PlaybackID  string             `bson:"playback_id"`
	AssetID     string             `bson:"asset_id,omitempty"`
	Thumbnail   string             `bson:"thumbnail,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
}

// canonicalID prefers the string id and falls back to the ObjectID hex.
func (d *videoDoc) canonicalID() model.VideoID {
	if d.ID != "" {
		return model.VideoID(d.ID)
	}
	return model.VideoID(d.OID.Hex())
}

func (d *videoDoc) toModel() model.Video {
	return model.Video{
		ID:          d.canonicalID(),
		Username:    d.Username,
		Description: d.Description,
		Likes:       d.Likes,
		Comments:    d.Comments,
		Shares:      d.Shares,
		Views:       d.Views,
		PlaybackID:  d.PlaybackID,
		AssetID:     d.AssetID,
		Thumbnail:   d.Thumbnail,
		CreatedAt:   d.CreatedAt,
	}
}

// videoFilter matches a video by either of its identifiers.
func videoFilter(id model.VideoID) bson.D {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return bson.D{{Key: "id", Value: string(id)}}
	}
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "id", Value: string(id)}},
		bson.D{{Key: "_id", Value: oid}},
	}}}
}

// CreateVideo inserts a video. An empty ID becomes the hex of the new
// ObjectID, which is also written to the id field.
func (s *Store) CreateVideo(ctx context.Context, v *model.Video) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	doc := videoDoc{
		OID:         primitive.NewObjectID(),
		ID:          string(v.ID),
		Username:    v.Username,
		Description: v.Description,
		Likes:       v.Likes,
		Comments:    v.Comments,
		Shares:      v.Shares,
		Views:       v.Views,
		PlaybackID:  v.PlaybackID,
		AssetID:     v.AssetID,
		Thumbnail:   v.Thumbnail,
		CreatedAt:   v.CreatedAt,
	}
	if doc.ID == "" {
		doc.ID = doc.OID.Hex()
	} else {
		n, err := s.videos.CountDocuments(ctx, videoFilter(v.ID))
		if err != nil {
			return fmt.Errorf("mongo: checking video %s: %w", v.ID, err)
		}
		if n > 0 {
			return apperror.Conflict("id", fmt.Sprintf("video %s already exists", v.ID))
		}
	}

	if _, err := s.videos.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo: inserting video: %w", err)
	}
	v.ID = model.VideoID(doc.ID)
	return nil
}

// keys lists every value a reference to this video may have been stored
// under: the string id and the ObjectID hex.
func (d *videoDoc) keys() []string {
	hex := d.OID.Hex()
	if d.ID == "" || d.ID == hex {
		return []string{hex}
	}
	return []string{d.ID, hex}
}

// GetVideo loads a video by string id or ObjectID hex.
func (s *Store) GetVideo(ctx context.Context, id model.VideoID) (*model.Video, error) {
	doc, err := s.getVideoDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	v := doc.toModel()
	return &v, nil
}

func (s *Store) getVideoDoc(ctx context.Context, id model.VideoID) (*videoDoc, error) {
	var doc videoDoc
	if err := s.videos.FindOne(ctx, videoFilter(id)).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("video", string(id))
		}
		return nil, fmt.Errorf("mongo: getting video %s: %w", id, err)
	}
	return &doc, nil
}

// GetVideoByAssetID finds the video created for a provider asset.
func (s *Store) GetVideoByAssetID(ctx context.Context, assetID string) (*model.Video, error) {
	var doc videoDoc
	if err := s.videos.FindOne(ctx, bson.D{{Key: "asset_id", Value: assetID}}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFoundMessage("no video for asset " + assetID)
		}
		return nil, fmt.Errorf("mongo: getting video for asset %s: %w", assetID, err)
	}
	v := doc.toModel()
	return &v, nil
}

// GetVideosByIDs resolves each id against both identifier fields. Ids that
// match nothing are dropped; the result keeps the order of ids.
func (s *Store) GetVideosByIDs(ctx context.Context, ids []model.VideoID) ([]model.Video, error) {
	if len(ids) == 0 {
		return []model.Video{}, nil
	}

	docs, err := s.findVideoDocs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]model.Video, len(docs)*2)
	for i := range docs {
		v := docs[i].toModel()
		for _, k := range docs[i].keys() {
			byKey[k] = v
		}
	}

	out := make([]model.Video, 0, len(docs))
	seen := make(map[model.VideoID]bool, len(docs))
	for _, id := range ids {
		v, ok := byKey[string(id)]
		if !ok || seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		out = append(out, v)
	}
	return out, nil
}

// findVideoDocs loads the videos matching any of ids by either identifier.
func (s *Store) findVideoDocs(ctx context.Context, ids []model.VideoID) ([]videoDoc, error) {
	strIDs := make(bson.A, 0, len(ids))
	oids := make(bson.A, 0, len(ids))
	for _, id := range ids {
		strIDs = append(strIDs, string(id))
		if oid, err := primitive.ObjectIDFromHex(string(id)); err == nil {
			oids = append(oids, oid)
		}
	}
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "id", Value: bson.D{{Key: "$in", Value: strIDs}}}},
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}},
	}}}

	cur, err := s.videos.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongo: getting videos by ids: %w", err)
	}
	var docs []videoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: reading videos: %w", err)
	}
	return docs, nil
}

func videoQueryFilter(q repository.VideoQuery) bson.D {
	filter := bson.D{}
	if q.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "description", Value: re}},
			bson.D{{Key: "username", Value: re}},
		}})
	}
	if q.Username != "" {
		filter = append(filter, bson.E{Key: "username", Value: strings.ToLower(q.Username)})
	}
	return filter
}

// ListVideos returns one page of videos matching q, newest first, and the
// total number of matches.
func (s *Store) ListVideos(ctx context.Context, q repository.VideoQuery) ([]model.Video, int64, error) {
	filter := videoQueryFilter(q)

	total, err := s.videos.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("mongo: counting videos: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.videos.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("mongo: listing videos: %w", err)
	}
	var docs []videoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("mongo: reading videos: %w", err)
	}

	videos := make([]model.Video, len(docs))
	for i := range docs {
		videos[i] = docs[i].toModel()
	}
	return videos, total, nil
}

// SumLikes totals the like counters of username's videos.
func (s *Store) SumLikes(ctx context.Context, username string) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "username", Value: strings.ToLower(username)}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$likes"}}},
		}}},
	}
	cur, err := s.videos.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("mongo: summing likes for %s: %w", username, err)
	}
	var out []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &out); err != nil {
		return 0, fmt.Errorf("mongo: reading like sum for %s: %w", username, err)
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Total, nil
}

// IncrementShares bumps the share counter and returns the new value.
func (s *Store) IncrementShares(ctx context.Context, id model.VideoID) (int64, error) {
	return s.incVideoCounter(ctx, id, "shares", 1)
}

func (s *Store) incVideoCounter(ctx context.Context, id model.VideoID, field string, delta int64) (int64, error) {
	var doc videoDoc
	err := s.videos.FindOneAndUpdate(ctx,
		videoFilter(id),
		bson.D{{Key: "$inc", Value: bson.D{{Key: field, Value: delta}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return 0, apperror.NotFound("video", string(id))
		}
		return 0, fmt.Errorf("mongo: updating %s of %s: %w", field, id, err)
	}
	switch field {
	case "likes":
		return doc.Likes, nil
	case "comments":
		return doc.Comments, nil
	default:
		return doc.Shares, nil
	}
}
