package services

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"famfinance/internal/auth"
	"famfinance/internal/core"
	"famfinance/internal/storage"
)

// TokenIssuer signs access tokens for a user.
type TokenIssuer interface {
	Issue(u core.User) (string, time.Time, error)
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	// FamilyName names the new family. Ignored when FamilyID is set.
	FamilyName string
	// FamilyID joins an existing family as MEMBER.
	FamilyID string
}

type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        core.User `json:"user"`
}

// ProfilePatch changes the caller's own name and email. Nil fields are kept.
type ProfilePatch struct {
	Name  *string
	Email *string
}

type AuthService struct {
	store  Store
	tokens TokenIssuer
}

func NewAuthService(store Store, tokens TokenIssuer) *AuthService {
	return &AuthService{store: store, tokens: tokens}
}

// Register creates a user. Without a family id a new family is created and
// the user becomes its ADMIN.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (core.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return core.User{}, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return core.User{}, err
	}

	var user core.User
	err = s.store.InTx(ctx, func(q *storage.Queries) error {
		u := core.User{
			Email:        email,
			Name:         strings.TrimSpace(in.Name),
			PasswordHash: hash,
			Role:         core.RoleMember,
			FamilyID:     strings.TrimSpace(in.FamilyID),
		}
		if u.FamilyID == "" {
			name := strings.TrimSpace(in.FamilyName)
			if name == "" {
				name = u.DisplayName() + "'s family"
			}
			f, err := q.CreateFamily(ctx, core.Family{Name: name})
			if err != nil {
				return err
			}
			u.FamilyID, u.Role = f.ID, core.RoleAdmin
		} else if _, err := q.GetFamily(ctx, u.FamilyID); err != nil {
			return err
		}

		var err error
		user, err = q.CreateUser(ctx, u)
		return err
	})
	if err != nil {
		return core.User{}, err
	}

	slog.InfoContext(ctx, "User registered",
		"user_id", user.ID,
		"family_id", user.FamilyID,
		"role", user.Role)
	return user, nil
}

// Login checks the credentials and issues a token. Unknown emails and
// wrong passwords fail the same way.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.store.Queries().GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, core.ErrUserNotFound) {
		return LoginResult{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if !u.IsActive || !auth.CheckPassword(u.PasswordHash, password) {
		slog.WarnContext(ctx, "Failed login", "user_id", u.ID, "active", u.IsActive)
		return LoginResult{}, core.ErrInvalidCredentials
	}
	return s.issue(u)
}

// Refresh issues a new token for a still-active user. Role and family are
// read again, so a role change applies from the refreshed token on.
func (s *AuthService) Refresh(ctx context.Context, userID string) (LoginResult, error) {
	u, err := s.store.Queries().GetUser(ctx, userID)
	if errors.Is(err, core.ErrUserNotFound) {
		return LoginResult{}, core.ErrInactiveUser
	}
	if err != nil {
		return LoginResult{}, err
	}
	if !u.IsActive {
		return LoginResult{}, core.ErrInactiveUser
	}
	return s.issue(u)
}

func (s *AuthService) issue(u core.User) (LoginResult, error) {
	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: token, TokenType: "bearer", ExpiresAt: exp, User: u}, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (core.User, error) {
	return s.store.Queries().GetUser(ctx, userID)
}

// UpdateProfile applies patch to the caller. A new email already used by
// another account returns core.ErrDuplicateEmail.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (core.User, error) {
	var u core.User
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if u, err = q.GetUser(ctx, userID); err != nil {
			return err
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if utf8.RuneCountInString(name) > 100 {
				return core.ErrNameTooLong
			}
			u.Name = name
		}
		if patch.Email != nil {
			email, err := normalizeEmail(*patch.Email)
			if err != nil {
				return err
			}
			u.Email = email
		}
		return q.UpdateUserProfile(ctx, u)
	})
	if err != nil {
		return core.User{}, err
	}

	slog.InfoContext(ctx, "User profile updated", "user_id", u.ID)
	return u, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", core.Validationf("invalid email address")
	}
	return email, nil
}
