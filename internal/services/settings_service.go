package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"famfinance/internal/amqp"
	"famfinance/internal/auth"
	"famfinance/internal/core"
	"famfinance/internal/storage"
)

const (
	defaultMonthCloseDay          = 1
	defaultBudgetWarningThreshold = 80
)

// FamilySettings are the family-wide preferences kept in the settings map.
type FamilySettings struct {
	Name                   string `json:"name"`
	MonthCloseDay          int    `json:"month_close_day"`
	DefaultCurrency        string `json:"default_currency"`
	BudgetWarningThreshold int    `json:"budget_warning_threshold"`
}

func (f FamilySettings) Validate() error {
	if f.MonthCloseDay < 1 || f.MonthCloseDay > 28 {
		return core.Validationf("month_close_day must be between 1 and 28")
	}
	if f.BudgetWarningThreshold < 50 || f.BudgetWarningThreshold > 100 {
		return core.Validationf("budget_warning_threshold must be between 50 and 100")
	}
	if len(f.DefaultCurrency) != 3 {
		return core.ErrInvalidCurrency
	}
	return nil
}

// UserSettings are per-user preferences, stored under "user_{id}".
type UserSettings struct {
	DailySummaryEnabled bool   `json:"daily_summary_enabled"`
	NotificationTime    string `json:"notification_time"`
	PreferredCurrency   string `json:"preferred_currency"`
	Language            string `json:"language"`
}

var notificationTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func (u UserSettings) Validate() error {
	if !notificationTimePattern.MatchString(u.NotificationTime) {
		return core.Validationf("notification_time must be HH:MM")
	}
	if len(u.PreferredCurrency) != 3 {
		return core.ErrInvalidCurrency
	}
	if len(u.Language) == 0 || len(u.Language) > 5 {
		return core.Validationf("language must be 1 to 5 characters")
	}
	return nil
}

// Member is the public view of a family user.
type Member struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     core.Role `json:"role"`
	IsActive bool      `json:"is_active"`
}

func memberOf(u core.User) Member {
	return Member{ID: u.ID, Email: u.Email, Name: u.DisplayName(), Role: u.Role, IsActive: u.IsActive}
}

type InviteInput struct {
	Email string
	Name  string
	// Role defaults to MEMBER.
	Role core.Role
}

// Invitation is returned once to the inviting admin. The temporary
// password is not stored anywhere in clear text.
type Invitation struct {
	Member
	TemporaryPassword string `json:"temporary_password"`
}

type SettingsService struct {
	store Store
	rates RateSource
	opts  options
}

func NewSettingsService(store Store, rates RateSource, opts ...Option) *SettingsService {
	return &SettingsService{store: store, rates: rates, opts: buildOptions(opts)}
}

func (s *SettingsService) Family(ctx context.Context, familyID string) (FamilySettings, error) {
	f, err := s.store.Queries().GetFamily(ctx, familyID)
	if err != nil {
		return FamilySettings{}, err
	}
	return s.familySettings(f), nil
}

func (s *SettingsService) familySettings(f core.Family) FamilySettings {
	return FamilySettings{
		Name:                   f.Name,
		MonthCloseDay:          intSetting(f.Settings, "month_close_day", defaultMonthCloseDay),
		DefaultCurrency:        stringSetting(f.Settings, "default_currency", baseCurrency(s.rates)),
		BudgetWarningThreshold: intSetting(f.Settings, "budget_warning_threshold", defaultBudgetWarningThreshold),
	}
}

// UpdateFamily replaces the family-wide keys. Only admins may call it.
func (s *SettingsService) UpdateFamily(ctx context.Context, familyID string, role core.Role, in FamilySettings) (FamilySettings, error) {
	if role != core.RoleAdmin {
		return FamilySettings{}, core.ErrAdminRequired
	}
	in.DefaultCurrency = core.NormalizeCurrency(in.DefaultCurrency)
	if err := in.Validate(); err != nil {
		return FamilySettings{}, err
	}

	var out FamilySettings
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		f, err := q.GetFamily(ctx, familyID)
		if err != nil {
			return err
		}
		if f.Settings == nil {
			f.Settings = map[string]any{}
		}
		f.Settings["month_close_day"] = in.MonthCloseDay
		f.Settings["default_currency"] = in.DefaultCurrency
		f.Settings["budget_warning_threshold"] = in.BudgetWarningThreshold
		if err := q.UpdateFamilySettings(ctx, familyID, f.Settings); err != nil {
			return err
		}
		out = s.familySettings(f)
		return nil
	})
	if err != nil {
		return FamilySettings{}, err
	}

	slog.InfoContext(ctx, "Family settings updated", "family_id", familyID)
	return out, nil
}

func userKey(userID string) string {
	return "user_" + userID
}

func (s *SettingsService) User(ctx context.Context, familyID, userID string) (UserSettings, error) {
	f, err := s.store.Queries().GetFamily(ctx, familyID)
	if err != nil {
		return UserSettings{}, err
	}
	m, _ := f.Settings[userKey(userID)].(map[string]any)
	return s.userSettings(m), nil
}

func (s *SettingsService) userSettings(m map[string]any) UserSettings {
	enabled := true
	if v, ok := m["daily_summary_enabled"].(bool); ok {
		enabled = v
	}
	return UserSettings{
		DailySummaryEnabled: enabled,
		NotificationTime: fmt.Sprintf("%02d:%02d",
			intSetting(m, "notification_hour", 21), intSetting(m, "notification_minute", 0)),
		PreferredCurrency: stringSetting(m, "preferred_currency", baseCurrency(s.rates)),
		Language:          stringSetting(m, "language", "es"),
	}
}

// UpdateUser replaces the caller's own settings.
func (s *SettingsService) UpdateUser(ctx context.Context, familyID, userID string, in UserSettings) (UserSettings, error) {
	in.PreferredCurrency = core.NormalizeCurrency(in.PreferredCurrency)
	if err := in.Validate(); err != nil {
		return UserSettings{}, err
	}
	var hour, minute int
	fmt.Sscanf(in.NotificationTime, "%d:%d", &hour, &minute)

	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		f, err := q.GetFamily(ctx, familyID)
		if err != nil {
			return err
		}
		if f.Settings == nil {
			f.Settings = map[string]any{}
		}
		f.Settings[userKey(userID)] = map[string]any{
			"daily_summary_enabled": in.DailySummaryEnabled,
			"notification_hour":     hour,
			"notification_minute":   minute,
			"preferred_currency":    in.PreferredCurrency,
			"language":              in.Language,
		}
		return q.UpdateFamilySettings(ctx, familyID, f.Settings)
	})
	if err != nil {
		return UserSettings{}, err
	}
	return in, nil
}

func (s *SettingsService) Members(ctx context.Context, familyID string) ([]Member, error) {
	users, err := s.store.Queries().ListUsers(ctx, familyID)
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(users))
	for _, u := range users {
		out = append(out, memberOf(u))
	}
	return out, nil
}

// InviteMember creates an account in the caller's family with a random
// temporary password. Only admins may call it.
func (s *SettingsService) InviteMember(ctx context.Context, familyID string, role core.Role, in InviteInput) (Invitation, error) {
	if role != core.RoleAdmin {
		return Invitation{}, core.ErrAdminRequired
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Invitation{}, err
	}
	if in.Role == "" {
		in.Role = core.RoleMember
	}
	if !in.Role.Valid() {
		return Invitation{}, core.ErrInvalidRole
	}
	password, err := temporaryPassword()
	if err != nil {
		return Invitation{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Invitation{}, err
	}

	var (
		u      core.User
		family core.Family
	)
	err = s.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if family, err = q.GetFamily(ctx, familyID); err != nil {
			return err
		}
		u, err = q.CreateUser(ctx, core.User{
			FamilyID:     familyID,
			Email:        email,
			Name:         strings.TrimSpace(in.Name),
			PasswordHash: hash,
			Role:         in.Role,
		})
		return err
	})
	if err != nil {
		return Invitation{}, err
	}

	slog.InfoContext(ctx, "Family member invited",
		"family_id", familyID,
		"user_id", u.ID,
		"role", u.Role)
	s.opts.notify(ctx, amqp.Notification{
		Kind:     amqp.NotifyMemberInvited,
		FamilyID: familyID,
		UserID:   u.ID,
		Subject:  "You were added to " + family.Name,
		Body:     fmt.Sprintf("Sign in as %s with the temporary password your family admin shared with you.", u.Email),
	})
	return Invitation{Member: memberOf(u), TemporaryPassword: password}, nil
}

// RemoveMember deactivates another member of the family. The account and
// its transactions stay; the user can no longer sign in or refresh a token.
func (s *SettingsService) RemoveMember(ctx context.Context, familyID, callerID string, role core.Role, memberID string) error {
	if role != core.RoleAdmin {
		return core.ErrAdminRequired
	}
	if memberID == callerID {
		return core.ErrCannotRemoveSelf
	}
	if err := s.store.Queries().DeactivateUser(ctx, familyID, memberID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Family member removed",
		"family_id", familyID,
		"user_id", memberID,
		"removed_by", callerID)
	return nil
}

func temporaryPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate temporary password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// intSetting reads a number from a decoded JSON map.
func intSetting(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

func stringSetting(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}
