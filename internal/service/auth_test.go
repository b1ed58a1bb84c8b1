package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/auth"
)

// =========================================================================
// SIGNUP
// =========================================================================

func TestSignup_CreatesUserAndToken(t *testing.T) {
	s := newTestServices(t)

	res, err := s.auth.Signup(context.Background(), SignupInput{
		Email:    "Alice@Example.com",
		Password: "secret123",
		Username: "Alice_1",
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	u := res.User
	if u.Username != "alice_1" || u.Email != "alice@example.com" {
		t.Errorf("stored username/email = %q/%q, want lowercased", u.Username, u.Email)
	}
	if u.DisplayName != "Alice_1" {
		t.Errorf("DisplayName = %q, want username as typed", u.DisplayName)
	}
	if !u.IsOnline || u.LastLogin.IsZero() {
		t.Error("new user should be online with lastLogin set")
	}
	if u.Followers.Len() != 0 || u.Following.Len() != 0 || u.Followers.Legacy {
		t.Errorf("relations = %+v / %+v, want empty sets", u.Followers, u.Following)
	}
	if u.PasswordHash == "" || u.PasswordHash == "secret123" {
		t.Error("password must be stored hashed")
	}

	id, err := s.auth.ValidateToken(res.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if id.UserID != u.ID || id.Username != "alice_1" || id.Email != "alice@example.com" {
		t.Errorf("token identity = %+v", id)
	}
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name    string
		in      SignupInput
		wantMsg string
	}{
		{"missing email", SignupInput{Password: "secret123", Username: "alice"}, "Email, password, and username are required"},
		{"missing password", SignupInput{Email: "a@x.com", Username: "alice"}, "Email, password, and username are required"},
		{"short password", SignupInput{Email: "a@x.com", Password: "12345", Username: "alice"}, "Password must be at least 6 characters long"},
		{"short username", SignupInput{Email: "a@x.com", Password: "secret123", Username: "al"}, "Username must be at least 3 characters long"},
		{"bad characters", SignupInput{Email: "a@x.com", Password: "secret123", Username: "al ice!"}, "Username can only contain letters, numbers, and underscores"},
		{"password too long", SignupInput{Email: "a@x.com", Password: strings.Repeat("x", 73), Username: "alice"}, "Password must be 72 bytes or less"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServices(t)
			_, err := s.auth.Signup(context.Background(), tt.in)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Signup() error = %v, want ErrValidation", err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestSignup_Duplicates(t *testing.T) {
	s := newTestServices(t)
	s.mustSignup(t, "alice")

	_, err := s.auth.Signup(context.Background(), SignupInput{Email: "ALICE@example.com", Password: "secret123", Username: "other"})
	if !errors.Is(err, apperror.ErrConflict) || err.Error() != "An account with this email already exists" {
		t.Errorf("duplicate email error = %v", err)
	}

	_, err = s.auth.Signup(context.Background(), SignupInput{Email: "new@example.com", Password: "secret123", Username: "ALICE"})
	if !errors.Is(err, apperror.ErrConflict) || err.Error() != "This username is already taken" {
		t.Errorf("duplicate username error = %v", err)
	}
}

// =========================================================================
// LOGIN / LOGOUT
// =========================================================================

func TestLogin_Success(t *testing.T) {
	s := newTestServices(t)
	u := s.mustSignup(t, "alice")
	if err := s.auth.Logout(context.Background(), u.ID); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	res, err := s.auth.Login(context.Background(), " Alice@example.com ", "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.User.ID != u.ID || res.Token == "" {
		t.Errorf("Login() = %+v", res)
	}

	stored, _ := s.store.GetUserByID(context.Background(), u.ID)
	if !stored.IsOnline {
		t.Error("user should be online after login")
	}
}

func TestLogin_FailuresShareOneMessage(t *testing.T) {
	s := newTestServices(t)
	s.mustSignup(t, "alice")

	for _, tc := range []struct{ email, password string }{
		{"alice@example.com", "wrong-password"},
		{"nobody@example.com", "secret123"},
	} {
		_, err := s.auth.Login(context.Background(), tc.email, tc.password)
		if !errors.Is(err, apperror.ErrUnauthorized) {
			t.Fatalf("Login(%s) error = %v, want ErrUnauthorized", tc.email, err)
		}
		if err.Error() != "Invalid email or password" {
			t.Errorf("Login(%s) message = %q", tc.email, err.Error())
		}
	}

	if _, err := s.auth.Login(context.Background(), "", ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Login(empty) error = %v, want ErrValidation", err)
	}
}

func TestLogout_MarksOffline(t *testing.T) {
	s := newTestServices(t)
	u := s.mustSignup(t, "alice")

	if err := s.auth.Logout(context.Background(), u.ID); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	stored, _ := s.store.GetUserByID(context.Background(), u.ID)
	if stored.IsOnline || stored.LastSeen.IsZero() {
		t.Errorf("after logout isOnline=%v lastSeen=%v", stored.IsOnline, stored.LastSeen)
	}
}

func TestCurrentUser(t *testing.T) {
	s := newTestServices(t)
	u := s.mustSignup(t, "alice")

	got, err := s.auth.CurrentUser(context.Background(), u.ID)
	if err != nil || got.Username != "alice" {
		t.Fatalf("CurrentUser() = %v, %v", got, err)
	}
	if _, err := s.auth.CurrentUser(context.Background(), "gone"); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("CurrentUser(unknown) error = %v, want ErrUnauthorized", err)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	s := newTestServices(t)
	if _, err := s.auth.ValidateToken("not-a-jwt"); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("ValidateToken() error = %v, want ErrUnauthorized", err)
	}
}

// =========================================================================
// GITHUB SIGN-IN
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	s := newTestServices(t)

	res, err := s.auth.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID: 42, Login: "Octo-Cat", Name: "The Octocat", AvatarURL: "https://avatars.example/42",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if res.User.Username != "octo_cat" {
		t.Errorf("Username = %q, want octo_cat", res.User.Username)
	}
	if res.User.DisplayName != "The Octocat" || res.User.GitHubID != 42 {
		t.Errorf("User = %+v", res.User)
	}

	again, err := s.auth.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 42, Login: "Octo-Cat"})
	if err != nil {
		t.Fatalf("second login error = %v", err)
	}
	if again.User.ID != res.User.ID {
		t.Errorf("second login created a new user %s, want %s", again.User.ID, res.User.ID)
	}
}

func TestLoginOrRegisterGitHub_LinksExistingEmail(t *testing.T) {
	s := newTestServices(t)
	u := s.mustSignup(t, "alice")

	res, err := s.auth.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 7, Login: "alice-gh", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if res.User.ID != u.ID {
		t.Errorf("linked user = %s, want %s", res.User.ID, u.ID)
	}
	byGH, err := s.store.GetUserByGitHubID(context.Background(), 7)
	if err != nil || byGH.ID != u.ID {
		t.Errorf("GetUserByGitHubID() = %v, %v", byGH, err)
	}
}

func TestLoginOrRegisterGitHub_UsernameTaken(t *testing.T) {
	s := newTestServices(t)
	s.mustSignup(t, "octocat")

	res, err := s.auth.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 9, Login: "octocat"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if res.User.Username == "octocat" || !strings.HasPrefix(res.User.Username, "octocat_") {
		t.Errorf("Username = %q, want suffixed octocat_xxxx", res.User.Username)
	}
}

func TestLoginOrRegisterGitHub_NilUser(t *testing.T) {
	s := newTestServices(t)
	if _, err := s.auth.LoginOrRegisterGitHub(context.Background(), nil); err == nil {
		t.Error("LoginOrRegisterGitHub(nil) succeeded, want error")
	}
}
