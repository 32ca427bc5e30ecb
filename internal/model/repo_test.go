package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"staffhub/internal/auth"
	"staffhub/internal/config"
	"staffhub/internal/entity"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestRepository(t *testing.T) Repository {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := &config.Config{
		DBType:         DBTypeSQLite,
		DBPath:         fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano()),
		DBMaxOpenConns: 1,
		DBMaxIdleConns: 1,
	}
	repo, err := InitRepository(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if err := SeedDefaultRoles(context.Background(), repo); err != nil {
		t.Fatalf("failed to seed roles: %v", err)
	}
	return repo
}

func createTestUser(t *testing.T, repo Repository, email, roleName string) *entity.DbUser {
	t.Helper()
	ctx := context.Background()
	role, err := repo.GetRoleByName(ctx, roleName)
	if err != nil {
		t.Fatalf("failed to load role %s: %v", roleName, err)
	}
	user := &entity.DbUser{
		Name:         "Test User",
		Email:        email,
		PasswordHash: "hash",
		RoleID:       role.ID,
		IsActive:     true,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func TestSeedDefaultRolesIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := SeedDefaultRoles(ctx, repo); err != nil {
		t.Fatalf("unexpected error reseeding: %v", err)
	}
	roles, err := repo.ListRoles(ctx)
	if err != nil {
		t.Fatalf("unexpected error listing roles: %v", err)
	}
	if len(roles) != 4 {
		t.Fatalf("expected 4 roles, got %d", len(roles))
	}

	admin, err := repo.GetRoleByName(ctx, entity.RoleAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !admin.Permissions.Has(auth.ResourceAuditLogs, auth.ActionRead) {
		t.Fatal("expected admin to read audit logs")
	}
	employee, err := repo.GetRoleByName(ctx, entity.RoleEmployee)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if employee.Permissions.Has(auth.ResourceAuditLogs, auth.ActionRead) {
		t.Fatal("did not expect employee to read audit logs")
	}
}

func TestSeedRestoresMissingGrants(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	hr, err := repo.GetRoleByName(ctx, entity.RoleHR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	custom := auth.NewPermissionSet().Grant(auth.Resource("payroll"), auth.ActionRead)
	if err := repo.UpdateRolePermissions(ctx, hr.ID, custom); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := SeedDefaultRoles(ctx, repo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hr, err = repo.GetRoleByName(ctx, entity.RoleHR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hr.Permissions.Has(auth.Resource("payroll"), auth.ActionRead) {
		t.Fatal("expected operator grant to be kept")
	}
	if !hr.Permissions.Has(auth.ResourceUsers, auth.ActionUpdate) {
		t.Fatal("expected default grant to be restored")
	}
}

func TestSeedAdminUser(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	cfg := config.Config{AdminEmail: " Admin@System.com ", AdminPassword: "Admin@123"}

	created, err := SeedAdminUser(ctx, repo, cfg, hasher)
	if err != nil || !created {
		t.Fatalf("expected admin to be created, got %v / %v", created, err)
	}
	created, err = SeedAdminUser(ctx, repo, cfg, hasher)
	if err != nil || created {
		t.Fatalf("expected second seed to be a no-op, got %v / %v", created, err)
	}

	user, err := repo.GetActiveUserByEmail(ctx, "admin@system.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.RoleName() != entity.RoleAdmin {
		t.Fatalf("expected admin role, got %q", user.RoleName())
	}
	if !hasher.Verify(user.PasswordHash, "Admin@123") {
		t.Fatal("expected stored hash to verify")
	}
}

func TestUserLookups(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	user := createTestUser(t, repo, "Jane.Doe@Example.com", entity.RoleEmployee)

	if user.Email != "jane.doe@example.com" {
		t.Fatalf("expected normalised email, got %s", user.Email)
	}
	found, err := repo.GetActiveUserByEmail(ctx, "JANE.DOE@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.ID != user.ID || found.Role == nil || found.Role.Name != entity.RoleEmployee {
		t.Fatalf("unexpected user %+v", found)
	}

	inactive := false
	if err := repo.UpdateUser(ctx, user.ID, entity.UserUpdates{IsActive: &inactive}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.GetActiveUserByID(ctx, user.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected inactive user to be hidden, got %v", err)
	}
	if _, err := repo.GetUserByID(ctx, user.ID); err != nil {
		t.Fatalf("expected unfiltered lookup to succeed, got %v", err)
	}

	duplicate := &entity.DbUser{Name: "Dup", Email: "jane.doe@example.com", PasswordHash: "x", RoleID: user.RoleID, IsActive: true}
	if err := repo.CreateUser(ctx, duplicate); !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}

func TestListUsersFilters(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	createTestUser(t, repo, "a@example.com", entity.RoleEmployee)
	createTestUser(t, repo, "b@example.com", entity.RoleEmployee)
	createTestUser(t, repo, "boss@example.com", entity.RoleAdmin)

	users, meta, err := repo.ListUsers(ctx, &entity.UserQuery{Role: entity.RoleEmployee})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 || meta.Total != 2 {
		t.Fatalf("expected 2 employees, got %d (total %d)", len(users), meta.Total)
	}

	users, meta, err = repo.ListUsers(ctx, &entity.UserQuery{BaseParams: entity.BaseParams{Page: 2, Limit: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 1 || meta.Total != 3 || meta.Page != 2 {
		t.Fatalf("unexpected page: %d users, meta %+v", len(users), meta)
	}
}

func TestRefreshTokenLedger(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	user := createTestUser(t, repo, "ledger@example.com", entity.RoleEmployee)
	now := time.Now().UTC()

	if err := repo.UpsertRefreshToken(ctx, user.ID, "token-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.UpsertRefreshToken(ctx, user.ID, "token-2", now.Add(2*time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, err := repo.CountRefreshTokensForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row per user, got %d", count)
	}
	if _, err := repo.FindLiveRefreshToken(ctx, "token-1", now); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected replaced token to be gone, got %v", err)
	}
	row, err := repo.FindLiveRefreshToken(ctx, "token-2", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.UserID != user.ID {
		t.Fatalf("expected row for %s, got %s", user.ID, row.UserID)
	}
	if row.TokenHash == "token-2" {
		t.Fatal("expected the raw token not to be stored")
	}

	// ledger expiry wins even when the caller's clock says otherwise
	if _, err := repo.FindLiveRefreshToken(ctx, "token-2", now.Add(3*time.Hour)); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected expired row to be hidden, got %v", err)
	}

	deleted, err := repo.DeleteRefreshToken(ctx, "token-2")
	if err != nil || deleted != 1 {
		t.Fatalf("expected one row deleted, got %d / %v", deleted, err)
	}
	deleted, err = repo.DeleteRefreshToken(ctx, "token-2")
	if err != nil || deleted != 0 {
		t.Fatalf("expected idempotent delete, got %d / %v", deleted, err)
	}
}

func TestSweepExpiredRefreshTokens(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	live := createTestUser(t, repo, "live@example.com", entity.RoleEmployee)
	stale := createTestUser(t, repo, "stale@example.com", entity.RoleEmployee)
	now := time.Now().UTC()

	if err := repo.UpsertRefreshToken(ctx, live.ID, "live", now.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.UpsertRefreshToken(ctx, stale.ID, "stale", now.Add(-time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	swept, err := repo.SweepExpiredRefreshTokens(ctx, now)
	if err != nil || swept != 1 {
		t.Fatalf("expected one expired row swept, got %d / %v", swept, err)
	}
	if _, err := repo.FindLiveRefreshToken(ctx, "live", now); err != nil {
		t.Fatalf("expected live token to survive, got %v", err)
	}

	removed, err := repo.DeleteRefreshTokensForUser(ctx, live.ID)
	if err != nil || removed != 1 {
		t.Fatalf("expected one row removed, got %d / %v", removed, err)
	}
}

func TestTransactionRollsBack(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	user := createTestUser(t, repo, "tx@example.com", entity.RoleEmployee)
	now := time.Now().UTC()
	if err := repo.UpsertRefreshToken(ctx, user.ID, "old", now.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	boom := errors.New("boom")
	err := repo.Transaction(ctx, func(tx Repository) error {
		if _, err := tx.DeleteRefreshToken(ctx, "old"); err != nil {
			return err
		}
		if err := tx.UpsertRefreshToken(ctx, user.ID, "new", now.Add(time.Hour)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := repo.FindLiveRefreshToken(ctx, "old", now); err != nil {
		t.Fatalf("expected old token to survive rollback, got %v", err)
	}
	if _, err := repo.FindLiveRefreshToken(ctx, "new", now); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected new token to be rolled back, got %v", err)
	}
}

func TestListAuditLogs(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := "0b6f3c56-5a5b-4d9b-9a56-6f0f6f0f6f01"
	otherID := "0b6f3c56-5a5b-4d9b-9a56-6f0f6f0f6f02"

	entries := []entity.DbAuditLog{
		{UserID: &userID, Action: entity.AuditLoginSuccess, ActorType: entity.ActorUser},
		{UserID: nil, Action: entity.AuditLoginFailed, ActorType: entity.ActorAnonymous},
		{UserID: &userID, Action: entity.AuditPasswordChange, ActorType: entity.ActorUser},
		{UserID: &otherID, Action: entity.AuditLogout, ActorType: entity.ActorUser},
		{UserID: &userID, Action: entity.AuditLogoutAll, ActorType: entity.ActorUser},
	}
	for i := range entries {
		if err := repo.CreateAuditLog(ctx, &entries[i]); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	logs, total, err := repo.ListAuditLogs(ctx, &entity.AuditLogQuery{Actions: entity.SessionAuditActions})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 4 || len(logs) != 4 {
		t.Fatalf("expected 4 session entries, got %d (total %d)", len(logs), total)
	}
	if logs[0].Action != entity.AuditLogoutAll {
		t.Fatalf("expected newest first, got %s", logs[0].Action)
	}

	logs, total, err = repo.ListAuditLogs(ctx, &entity.AuditLogQuery{UserID: userID, Action: entity.AuditPasswordChange})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || logs[0].Action != entity.AuditPasswordChange {
		t.Fatalf("unexpected result %+v", logs)
	}

	future := time.Now().UTC().Add(time.Hour)
	_, total, err = repo.ListAuditLogs(ctx, &entity.AuditLogQuery{StartDate: &future})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected no entries after %v, got %d", future, total)
	}
}
