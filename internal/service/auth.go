// Package service holds Vind's business rules. Handlers parse HTTP and call
// into these services; services validate input, enforce invariants and talk to
// storage only through the repository interfaces.
//
// THE THREE LAYERS:
//
//	Handler (HTTP layer)      parses requests, writes JSON responses
//	Service (business layer)  validates, enforces rules, orchestrates
//	Repository (data layer)   reads and writes MongoDB or SQLite
//
// WHY A SEPARATE SERVICE LAYER?
// The same rules run behind more than one front door. The HTTP handlers, the
// "vind seed" and "vind migrate-users" commands and the ingest workers all
// call these services, so a rule such as "a user cannot follow themselves"
// or "saving twice keeps the video saved" lives in exactly one place.
//
// Services also own the error vocabulary. Repositories return wrapped
// apperror sentinels (ErrNotFound, ErrConflict); services turn them into the
// messages clients see ("Video not found", "User already exists") and
// handlers only map the sentinel to a status code.
//
// THE DEPENDENCY CHAIN:
//
//	server.NewServices creates:  Store -> Services -> Handlers
//	At runtime:                  Handler calls Service calls Repository
//
// CONSTRUCTOR PATTERN:
// Every NewXxxService takes the narrow repository interfaces it needs
// (repository.VideoRepository, repository.EngagementRepository and so on)
// rather than a concrete store. One *sqlite.DB or *mongodb.Store satisfies
// all of them and is passed several times. In tests a single in-memory fake
// plays the same role (see fake_test.go), so business rules are tested with
// plain function calls and no database.
//
// COUNTERS AND MEMBERSHIP:
// Like and save state is stored twice: as an event row (user_likes,
// user_saves) and, for likes, as a counter on the video. The repositories keep
// the two in step inside one operation and report whether membership actually
// changed, so services never increment a counter for a duplicate like.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/auth"
	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/repository"
)

const (
	MinPasswordLength = 6
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// invalidCredentials is shared by every login failure so callers cannot tell
// an unknown email from a wrong password.
const invalidCredentials = "Invalid email or password"

// AuthService handles signup, login, logout and GitHub sign-in.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AuthResult bundles the user and the session token issued for them.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignupInput is the raw signup form.
type SignupInput struct {
	Email       string
	Password    string
	Username    string
	DisplayName string
}

// Signup validates the form, creates the account and signs the user in.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)

	if email == "" || in.Password == "" || username == "" {
		return nil, apperror.ValidationFailed("", "Email, password, and username are required")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength))
	}
	if len(username) < MinUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("Username must be at least %d characters long", MinUsernameLength))
	}
	if len(username) > MaxUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("Username must be %d characters or less", MaxUsernameLength))
	}
	if !usernamePattern.MatchString(username) {
		return nil, apperror.ValidationFailed("username", "Username can only contain letters, numbers, and underscores")
	}
	if !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "Email address is invalid")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", "Password must be 72 bytes or less")
		}
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}

	now := s.now()
	user := &model.User{
		Username:     strings.ToLower(username),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Followers:    model.NewRelationSet(),
		Following:    model.NewRelationSet(),
		IsOnline:     true,
		LastLogin:    now,
		CreatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// Conflict errors carry the user-facing message already.
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user %s: %w", user.Username, err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID), slog.String("username", user.Username))
	return s.issue(user)
}

// Login checks credentials and marks the user online.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("", "Email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: loading user by email: %w", err)
	}
	if user.PasswordHash == "" {
		return nil, apperror.Unauthorized(invalidCredentials)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	now := s.now()
	if err := s.users.UpdatePresence(ctx, user.ID, true, now); err != nil {
		return nil, fmt.Errorf("service/auth: recording login for %s: %w", user.ID, err)
	}
	user.IsOnline = true
	user.LastLogin = now

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// Logout marks the user offline. The token itself stays valid until it
// expires; clients drop it.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.users.UpdatePresence(ctx, userID, false, s.now()); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/auth: recording logout for %s: %w", userID, err)
	}
	return nil
}

// CurrentUser returns the account behind a validated token.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("Authentication required")
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("User no longer exists")
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// LoginOrRegisterGitHub signs in the account linked to a GitHub profile. On
// first use it links an existing account with the same email, or creates a
// new one with a username derived from the GitHub login.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, err := s.users.GetUserByGitHubID(ctx, gh.ID)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.linkOrCreateGitHub(ctx, gh)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("service/auth: loading user for GitHub id %d: %w", gh.ID, err)
	}

	now := s.now()
	if err := s.users.UpdatePresence(ctx, user.ID, true, now); err != nil {
		return nil, fmt.Errorf("service/auth: recording login for %s: %w", user.ID, err)
	}
	user.IsOnline = true
	user.LastLogin = now

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
	)
	return s.issue(user)
}

func (s *AuthService) linkOrCreateGitHub(ctx context.Context, gh *auth.GitHubUser) (*model.User, error) {
	if gh.Email != "" {
		existing, err := s.users.GetUserByEmail(ctx, gh.Email)
		if err == nil {
			if err := s.users.LinkGitHub(ctx, existing.ID, gh.ID); err != nil {
				return nil, fmt.Errorf("service/auth: linking GitHub account: %w", err)
			}
			existing.GitHubID = gh.ID
			return existing, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: loading user by email: %w", err)
		}
	}

	email := strings.ToLower(gh.Email)
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, strings.ToLower(gh.Login))
	}
	displayName := gh.Name
	if displayName == "" {
		displayName = gh.Login
	}

	base := githubUsername(gh.Login)
	username := base
	for attempt := 0; attempt < 5; attempt++ {
		now := s.now()
		user := &model.User{
			Username:       username,
			Email:          email,
			DisplayName:    displayName,
			Bio:            gh.Bio,
			ProfilePicture: gh.AvatarURL,
			GitHubID:       gh.ID,
			Followers:      model.NewRelationSet(),
			Following:      model.NewRelationSet(),
			CreatedAt:      now,
		}
		err := s.users.CreateUser(ctx, user)
		if err == nil {
			s.logger.Info("user signed up via GitHub", slog.String("userID", user.ID), slog.String("username", username))
			return user, nil
		}
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) || appErr.Field != "username" {
			return nil, fmt.Errorf("service/auth: creating GitHub user: %w", err)
		}
		suffix := xid.New().String()
		username = trimUsername(base, MaxUsernameLength-5) + "_" + suffix[len(suffix)-4:]
	}
	return nil, apperror.Conflict("username", "This username is already taken")
}

// githubUsername maps a GitHub login onto the Vind username alphabet.
func githubUsername(login string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(login) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-' || r == '.':
			b.WriteRune('_')
		}
	}
	name := b.String()
	for len(name) < MinUsernameLength {
		name += "_"
	}
	return trimUsername(name, MaxUsernameLength)
}

func trimUsername(name string, n int) string {
	if len(name) > n {
		return name[:n]
	}
	return name
}

// ValidateToken returns the identity encoded in a session token.
func (s *AuthService) ValidateToken(tokenStr string) (*auth.Identity, error) {
	id, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return nil, apperror.Unauthorized("Invalid or expired token")
	}
	return id, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(auth.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
