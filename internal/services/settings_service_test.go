package services

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"

	"famfinance/internal/amqp"
	"famfinance/internal/core"
)

func TestFamilySettings_Defaults(t *testing.T) {
	env := newTestEnv(t)
	got, err := env.settings.Family(context.Background(), env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, FamilySettings{
		Name:                   "García",
		MonthCloseDay:          1,
		DefaultCurrency:        "MXN",
		BudgetWarningThreshold: 80,
	}, got)
}

func TestFamilySettings_UpdateRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := FamilySettings{MonthCloseDay: 25, DefaultCurrency: "usd", BudgetWarningThreshold: 90}

	_, err := env.settings.UpdateFamily(ctx, env.family.ID, env.member.Role, in)
	assert.IsError(t, err, core.ErrAdminRequired)
	assert.Equal(t, core.KindAuthorization, core.KindOf(err))

	got, err := env.settings.UpdateFamily(ctx, env.family.ID, env.admin.Role, in)
	assert.NoError(t, err)
	assert.Equal(t, 25, got.MonthCloseDay)
	assert.Equal(t, "USD", got.DefaultCurrency)

	// Round trip through the JSON settings column.
	got, err = env.settings.Family(ctx, env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, 25, got.MonthCloseDay)
	assert.Equal(t, 90, got.BudgetWarningThreshold)
}

func TestFamilySettings_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   FamilySettings
	}{
		{"close day too large", FamilySettings{MonthCloseDay: 29, DefaultCurrency: "MXN", BudgetWarningThreshold: 80}},
		{"close day zero", FamilySettings{MonthCloseDay: 0, DefaultCurrency: "MXN", BudgetWarningThreshold: 80}},
		{"threshold too low", FamilySettings{MonthCloseDay: 1, DefaultCurrency: "MXN", BudgetWarningThreshold: 49}},
		{"bad currency", FamilySettings{MonthCloseDay: 1, DefaultCurrency: "PESO", BudgetWarningThreshold: 80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.settings.UpdateFamily(ctx, env.family.ID, core.RoleAdmin, tt.in)
			assert.Equal(t, core.KindValidation, core.KindOf(err))
		})
	}
}

func TestUserSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	got, err := env.settings.User(ctx, env.family.ID, env.member.ID)
	assert.NoError(t, err)
	assert.Equal(t, UserSettings{
		DailySummaryEnabled: true,
		NotificationTime:    "21:00",
		PreferredCurrency:   "MXN",
		Language:            "es",
	}, got)

	in := UserSettings{DailySummaryEnabled: false, NotificationTime: "07:45", PreferredCurrency: "eur", Language: "en"}
	_, err = env.settings.UpdateUser(ctx, env.family.ID, env.member.ID, in)
	assert.NoError(t, err)

	got, err = env.settings.User(ctx, env.family.ID, env.member.ID)
	assert.NoError(t, err)
	assert.Equal(t, UserSettings{
		DailySummaryEnabled: false,
		NotificationTime:    "07:45",
		PreferredCurrency:   "EUR",
		Language:            "en",
	}, got)

	// Other users keep their defaults.
	other, err := env.settings.User(ctx, env.family.ID, env.admin.ID)
	assert.NoError(t, err)
	assert.Equal(t, "21:00", other.NotificationTime)

	_, err = env.settings.UpdateUser(ctx, env.family.ID, env.member.ID, UserSettings{
		NotificationTime: "25:00", PreferredCurrency: "MXN", Language: "es",
	})
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}

func TestMembers(t *testing.T) {
	env := newTestEnv(t)
	members, err := env.settings.Members(context.Background(), env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, []Member{
		{ID: env.admin.ID, Email: "ana@example.com", Name: "Ana", Role: core.RoleAdmin, IsActive: true},
		{ID: env.member.ID, Email: "luis@example.com", Name: "luis", Role: core.RoleMember, IsActive: true},
	}, members)
}

func TestInviteMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.settings.InviteMember(ctx, env.family.ID, core.RoleMember, InviteInput{Email: "x@example.com"})
	assert.IsError(t, err, core.ErrAdminRequired)

	inv, err := env.settings.InviteMember(ctx, env.family.ID, core.RoleAdmin, InviteInput{Email: " Sofia@Example.com ", Name: "Sofía"})
	assert.NoError(t, err)
	assert.Equal(t, "sofia@example.com", inv.Email)
	assert.Equal(t, core.RoleMember, inv.Role)
	assert.True(t, inv.IsActive)
	assert.Equal(t, 16, len(inv.TemporaryPassword))
	assert.Equal(t, 1, env.notifier.count(amqp.NotifyMemberInvited))

	stored, err := env.repo.Queries().GetUser(ctx, inv.ID)
	assert.NoError(t, err)
	assert.Equal(t, env.family.ID, stored.FamilyID)
	assert.NotEqual(t, inv.TemporaryPassword, stored.PasswordHash)

	_, err = env.settings.InviteMember(ctx, env.family.ID, core.RoleAdmin, InviteInput{Email: "sofia@example.com"})
	assert.IsError(t, err, core.ErrDuplicateEmail)

	_, err = env.settings.InviteMember(ctx, env.family.ID, core.RoleAdmin, InviteInput{Email: "owner@example.com", Role: "OWNER"})
	assert.IsError(t, err, core.ErrInvalidRole)

	admin, err := env.settings.InviteMember(ctx, env.family.ID, core.RoleAdmin, InviteInput{Email: "co@example.com", Role: core.RoleAdmin})
	assert.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, admin.Role)

	members, err := env.settings.Members(ctx, env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, 4, len(members))
}

func TestRemoveMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx, err := env.ledger.Create(ctx, env.family.ID, env.member.ID, TransactionInput{AmountOriginal: dec("10"), Type: core.TypeExpense})
	assert.NoError(t, err)

	err = env.settings.RemoveMember(ctx, env.family.ID, env.member.ID, core.RoleMember, env.admin.ID)
	assert.IsError(t, err, core.ErrAdminRequired)

	err = env.settings.RemoveMember(ctx, env.family.ID, env.admin.ID, core.RoleAdmin, env.admin.ID)
	assert.IsError(t, err, core.ErrCannotRemoveSelf)
	assert.Equal(t, core.KindBusinessRule, core.KindOf(err))

	err = env.settings.RemoveMember(ctx, "another-family", env.admin.ID, core.RoleAdmin, env.member.ID)
	assert.IsError(t, err, core.ErrMemberNotFound)

	assert.NoError(t, env.settings.RemoveMember(ctx, env.family.ID, env.admin.ID, core.RoleAdmin, env.member.ID))
	err = env.settings.RemoveMember(ctx, env.family.ID, env.admin.ID, core.RoleAdmin, env.member.ID)
	assert.IsError(t, err, core.ErrMemberNotFound)

	members, err := env.settings.Members(ctx, env.family.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(members))
	assert.Equal(t, env.admin.ID, members[0].ID)

	// Soft delete: the account row and the ledger stay.
	u, err := env.repo.Queries().GetUser(ctx, env.member.ID)
	assert.NoError(t, err)
	assert.False(t, u.IsActive)
	got, err := env.ledger.Get(ctx, env.family.ID, tx.ID)
	assert.NoError(t, err)
	assert.Equal(t, env.member.ID, got.UserID)
}
