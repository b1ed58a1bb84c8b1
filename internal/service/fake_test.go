package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/auth"
	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/repository"
)

// =========================================================================
// IN-MEMORY STORE
// =========================================================================

// fakeStore is an in-memory repository.Store. Relationship fields are kept
// as model.RelationSet so tests can plant legacy values directly.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	videos   map[model.VideoID]*model.Video
	comments map[string]*model.Comment
	events   map[model.EngagementKind][]model.Engagement
	nextID   int

	// failures injected by tests, keyed by method name
	fail map[string]error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*model.User{},
		videos:   map[model.VideoID]*model.Video{},
		comments: map[string]*model.Comment{},
		events:   map[model.EngagementKind][]model.Engagement{},
		fail:     map[string]error{},
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Followers = model.RelationSet{IDs: slices.Clone(u.Followers.IDs), Legacy: u.Followers.Legacy}
	c.Following = model.RelationSet{IDs: slices.Clone(u.Following.IDs), Legacy: u.Following.Legacy}
	return &c
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["CreateUser"]; err != nil {
		return err
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.Conflict("email", "An account with this email already exists")
		}
		if existing.Username == u.Username {
			return apperror.Conflict("username", "This username is already taken")
		}
	}
	u.ID = f.id("user-")
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	f.users[u.ID] = cloneUser(u)
	return nil
}

func (f *fakeStore) findUser(match func(*model.User) bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, apperror.NotFoundMessage("User not found")
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return f.findUser(func(u *model.User) bool { return u.ID == id })
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return f.findUser(func(u *model.User) bool { return u.Email == strings.ToLower(email) })
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	return f.findUser(func(u *model.User) bool { return u.Username == strings.ToLower(username) })
}

func (f *fakeStore) GetUserByGitHubID(_ context.Context, id int64) (*model.User, error) {
	return f.findUser(func(u *model.User) bool { return u.GitHubID == id && id != 0 })
}

func (f *fakeStore) withUser(id string, fn func(*model.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	fn(u)
	return nil
}

func (f *fakeStore) LinkGitHub(_ context.Context, userID string, githubID int64) error {
	return f.withUser(userID, func(u *model.User) { u.GitHubID = githubID })
}

func (f *fakeStore) UpdatePresence(_ context.Context, userID string, online bool, at time.Time) error {
	return f.withUser(userID, func(u *model.User) {
		u.IsOnline = online
		if online {
			u.LastLogin = at
		} else {
			u.LastSeen = at
		}
	})
}

func (f *fakeStore) NormalizeRelations(_ context.Context, userID string) error {
	return f.withUser(userID, func(u *model.User) {
		u.Followers = u.Followers.Normalized()
		u.Following = u.Following.Normalized()
	})
}

func (f *fakeStore) MigrateLegacyRelations(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, u := range f.users {
		if u.Followers.Legacy || u.Following.Legacy {
			u.Followers = u.Followers.Normalized()
			u.Following = u.Following.Normalized()
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListUserIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func addMember(s *model.RelationSet, id string) {
	if s.Legacy {
		*s = model.NewRelationSet()
	}
	*s = model.NewRelationSet(append(s.IDs, id)...)
}

func removeMember(s *model.RelationSet, id string) {
	if s.Legacy {
		return
	}
	s.IDs = slices.DeleteFunc(s.IDs, func(m string) bool { return m == id })
}

func (f *fakeStore) AddFollower(_ context.Context, userID, followerID string) error {
	if err := f.fail["AddFollower"]; err != nil {
		return err
	}
	return f.withUser(userID, func(u *model.User) { addMember(&u.Followers, followerID) })
}

func (f *fakeStore) RemoveFollower(_ context.Context, userID, followerID string) error {
	return f.withUser(userID, func(u *model.User) { removeMember(&u.Followers, followerID) })
}

func (f *fakeStore) AddFollowing(_ context.Context, userID, targetID string) error {
	if err := f.fail["AddFollowing"]; err != nil {
		return err
	}
	return f.withUser(userID, func(u *model.User) { addMember(&u.Following, targetID) })
}

func (f *fakeStore) RemoveFollowing(_ context.Context, userID, targetID string) error {
	return f.withUser(userID, func(u *model.User) { removeMember(&u.Following, targetID) })
}

func (f *fakeStore) CreateVideo(_ context.Context, v *model.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v.ID == "" {
		v.ID = model.VideoID(f.id("video-"))
	}
	if _, ok := f.videos[v.ID]; ok {
		return apperror.Conflict("id", "video exists")
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	c := *v
	f.videos[v.ID] = &c
	return nil
}

func (f *fakeStore) GetVideo(_ context.Context, id model.VideoID) (*model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.videos[id]
	if !ok {
		return nil, apperror.NotFound("video", string(id))
	}
	c := *v
	return &c, nil
}

func (f *fakeStore) GetVideoByAssetID(_ context.Context, assetID string) (*model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.videos {
		if v.AssetID != "" && v.AssetID == assetID {
			c := *v
			return &c, nil
		}
	}
	return nil, apperror.NotFoundMessage("no video for asset")
}

func (f *fakeStore) GetVideosByIDs(_ context.Context, ids []model.VideoID) ([]model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Video{}
	for _, id := range ids {
		if v, ok := f.videos[id]; ok {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeStore) ListVideos(_ context.Context, q repository.VideoQuery) ([]model.Video, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["ListVideos"]; err != nil {
		return nil, 0, err
	}
	search := strings.ToLower(q.Search)
	var all []model.Video
	for _, v := range f.videos {
		if q.Username != "" && v.Username != strings.ToLower(q.Username) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(v.Description), search) &&
			!strings.Contains(strings.ToLower(v.Username), search) {
			continue
		}
		all = append(all, *v)
	}
	slices.SortFunc(all, func(a, b model.Video) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	total := int64(len(all))
	start := min(q.Offset, len(all))
	end := len(all)
	if q.Limit > 0 {
		end = min(start+q.Limit, len(all))
	}
	return slices.Clone(all[start:end]), total, nil
}

func (f *fakeStore) SumLikes(_ context.Context, username string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, v := range f.videos {
		if v.Username == username {
			sum += v.Likes
		}
	}
	return sum, nil
}

func (f *fakeStore) IncrementShares(_ context.Context, id model.VideoID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.videos[id]
	if !ok {
		return 0, apperror.NotFound("video", string(id))
	}
	v.Shares++
	return v.Shares, nil
}

func (f *fakeStore) AddComment(_ context.Context, c *model.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.videos[c.VideoID]
	if !ok {
		return apperror.NotFound("video", string(c.VideoID))
	}
	c.ID = f.id("comment-")
	cc := *c
	cc.LikedBy = slices.Clone(c.LikedBy)
	f.comments[c.ID] = &cc
	v.Comments++
	return nil
}

func (f *fakeStore) ListComments(_ context.Context, videoID model.VideoID) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Comment{}
	for _, c := range f.comments {
		if c.VideoID == videoID {
			cc := *c
			cc.LikedBy = slices.Clone(c.LikedBy)
			out = append(out, cc)
		}
	}
	slices.SortFunc(out, func(a, b model.Comment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (f *fakeStore) GetComment(_ context.Context, videoID model.VideoID, commentID string) (*model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[commentID]
	if !ok || c.VideoID != videoID {
		return nil, apperror.NotFound("comment", commentID)
	}
	cc := *c
	cc.LikedBy = slices.Clone(c.LikedBy)
	return &cc, nil
}

func (f *fakeStore) AddCommentLike(_ context.Context, commentID, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.comments[commentID]
	if slices.Contains(c.LikedBy, username) {
		return false, nil
	}
	c.LikedBy = append(c.LikedBy, username)
	c.Likes++
	return true, nil
}

func (f *fakeStore) RemoveCommentLike(_ context.Context, commentID, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.comments[commentID]
	if !slices.Contains(c.LikedBy, username) {
		return false, nil
	}
	c.LikedBy = slices.DeleteFunc(c.LikedBy, func(u string) bool { return u == username })
	c.Likes--
	return true, nil
}

func (f *fakeStore) addEvent(kind model.EngagementKind, id model.VideoID, username string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.videos[id]
	if !ok {
		return false, apperror.NotFound("video", string(id))
	}
	for _, e := range f.events[kind] {
		if e.VideoID == id && e.Username == username {
			return false, nil
		}
	}
	f.events[kind] = append(f.events[kind], model.Engagement{Kind: kind, Username: username, VideoID: id, CreatedAt: at})
	if kind == model.EngagementLike {
		v.Likes++
	}
	return true, nil
}

func (f *fakeStore) removeEvent(kind model.EngagementKind, id model.VideoID, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	before := len(f.events[kind])
	f.events[kind] = slices.DeleteFunc(f.events[kind], func(e model.Engagement) bool {
		return e.VideoID == id && e.Username == username
	})
	removed := len(f.events[kind]) < before
	if removed && kind == model.EngagementLike {
		if v, ok := f.videos[id]; ok && v.Likes > 0 {
			v.Likes--
		}
	}
	return removed, nil
}

func (f *fakeStore) AddLike(_ context.Context, id model.VideoID, username string, at time.Time) (bool, error) {
	return f.addEvent(model.EngagementLike, id, username, at)
}

func (f *fakeStore) RemoveLike(_ context.Context, id model.VideoID, username string) (bool, error) {
	return f.removeEvent(model.EngagementLike, id, username)
}

func (f *fakeStore) AddSave(_ context.Context, id model.VideoID, username string, at time.Time) (bool, error) {
	return f.addEvent(model.EngagementSave, id, username, at)
}

func (f *fakeStore) RemoveSave(_ context.Context, id model.VideoID, username string) (bool, error) {
	return f.removeEvent(model.EngagementSave, id, username)
}

func (f *fakeStore) ListEngagements(_ context.Context, kind model.EngagementKind, username string) ([]model.Engagement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Engagement{}
	for _, e := range f.events[kind] {
		if e.Username == username {
			out = append(out, e)
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (f *fakeStore) EngagedVideoIDs(_ context.Context, kind model.EngagementKind, username string, ids []model.VideoID) (map[model.VideoID]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[model.VideoID]bool{}
	for _, e := range f.events[kind] {
		if e.Username == username && slices.Contains(ids, e.VideoID) {
			out[e.VideoID] = true
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

// setLegacy plants a legacy numeric followers/following value.
func (f *fakeStore) setLegacy(t *testing.T, userID string, followers, following bool) {
	t.Helper()
	err := f.withUser(userID, func(u *model.User) {
		if followers {
			u.Followers = model.LegacyRelationSet()
		}
		if following {
			u.Following = model.LegacyRelationSet()
		}
	})
	if err != nil {
		t.Fatalf("setLegacy(%s): %v", userID, err)
	}
}

// =========================================================================
// SERVICE WIRING
// =========================================================================

type testServices struct {
	store      *fakeStore
	auth       *AuthService
	relations  *RelationshipService
	engagement *EngagementService
	feed       *FeedService
	profile    *ProfileService
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	logger := testLogger()
	store := newFakeStore()

	relations := NewRelationshipService(store, logger)
	engagement := NewEngagementService(store, store, store, logger)
	return &testServices{
		store:      store,
		auth:       NewAuthService(store, ts, auth.NewPasswordServiceForTest(4), logger),
		relations:  relations,
		engagement: engagement,
		feed:       NewFeedService(store, engagement, logger),
		profile:    NewProfileService(store, store, relations, engagement, logger),
	}
}

func (s *testServices) mustSignup(t *testing.T, username string) *model.User {
	t.Helper()
	res, err := s.auth.Signup(context.Background(), SignupInput{
		Email:    username + "@example.com",
		Password: "secret123",
		Username: username,
	})
	if err != nil {
		t.Fatalf("Signup(%s) error = %v", username, err)
	}
	return res.User
}

func (s *testServices) mustVideo(t *testing.T, id model.VideoID, username string, createdAt time.Time) *model.Video {
	t.Helper()
	v, err := s.feed.CreateVideo(context.Background(), model.VideoDraft{
		ID:          id,
		Username:    username,
		Description: "video " + string(id),
		PlaybackID:  "pb-" + string(id),
		CreatedAt:   createdAt,
	})
	if err != nil {
		t.Fatalf("CreateVideo(%s) error = %v", id, err)
	}
	return v
}

var base = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
