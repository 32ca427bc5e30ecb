package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"staffhub/internal/auth"
	"staffhub/internal/config"
	"staffhub/internal/entity"
	"staffhub/internal/model"

	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Sup3r$ecret"

type testEnv struct {
	repo        model.Repository
	credentials *CredentialStore
	codec       *auth.Codec
	sessions    *SessionManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	repo, err := model.InitRepository(&config.Config{
		DBType:         model.DBTypeSQLite,
		DBPath:         fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano()),
		DBMaxOpenConns: 1,
		DBMaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if err := model.SeedDefaultRoles(context.Background(), repo); err != nil {
		t.Fatalf("failed to seed roles: %v", err)
	}

	codec, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
	})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	credentials := NewCredentialStore(repo, auth.NewPasswordHasher(bcrypt.MinCost))
	return &testEnv{
		repo:        repo,
		credentials: credentials,
		codec:       codec,
		sessions:    NewSessionManager(repo, credentials, codec),
	}
}

func (e *testEnv) createUser(t *testing.T, email, role string) *entity.DbUser {
	t.Helper()
	user, err := e.credentials.CreateUser(context.Background(), CreateUserInput{
		Name:     "Test User",
		Email:    email,
		Password: testPassword,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("failed to create user %s: %v", email, err)
	}
	return user
}

func (e *testEnv) login(t *testing.T, email string) *SessionResult {
	t.Helper()
	result, err := e.sessions.Login(context.Background(), LoginInput{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("login failed for %s: %v", email, err)
	}
	return result
}

func TestLoginThenRefreshRotates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice@example.com", entity.RoleEmployee)

	first := env.login(t, "Alice@Example.com")
	if first.User.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, first.User.ID)
	}
	claims, err := env.codec.Verify(first.Tokens.AccessToken, auth.KindAccess)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.Role != entity.RoleEmployee || !claims.HasPermission(auth.ResourceAttendance, auth.ActionCreate) {
		t.Fatalf("unexpected claims %+v", claims.Payload)
	}

	second, err := env.sessions.Refresh(ctx, first.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if second.Tokens.RefreshToken == first.Tokens.RefreshToken {
		t.Fatal("expected a rotated refresh token")
	}

	count, err := env.repo.CountRefreshTokensForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", count)
	}

	if _, err := env.sessions.Refresh(ctx, first.Tokens.RefreshToken); !errors.Is(err, ErrTokenNotFoundOrExpired) {
		t.Fatalf("expected rotated token to fail with ErrTokenNotFoundOrExpired, got %v", err)
	}
	if _, err := env.sessions.Refresh(ctx, second.Tokens.RefreshToken); err != nil {
		t.Fatalf("expected the new token to refresh: %v", err)
	}
}

func TestRefreshFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "bob@example.com", entity.RoleEmployee)
	session := env.login(t, "bob@example.com")

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "empty", token: "  ", want: auth.ErrMissingToken},
		{name: "garbage", token: "not-a-token", want: auth.ErrInvalidToken},
		{name: "access token", token: session.Tokens.AccessToken, want: auth.ErrWrongTokenKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.sessions.Refresh(ctx, tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// the first token is untouched by the failed attempts
	if _, err := env.sessions.Refresh(ctx, session.Tokens.RefreshToken); err != nil {
		t.Fatalf("expected refresh to succeed: %v", err)
	}
}

func TestRefreshHonoursLedgerExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "carol@example.com", entity.RoleEmployee)
	session := env.login(t, "carol@example.com")

	later := NewSessionManager(env.repo, env.credentials, env.codec, WithClock(func() time.Time {
		return session.Tokens.RefreshExpiresAt.Add(time.Minute)
	}))
	if _, err := later.Refresh(ctx, session.Tokens.RefreshToken); !errors.Is(err, ErrTokenNotFoundOrExpired) {
		t.Fatalf("expected ledger expiry to win, got %v", err)
	}
}

func TestRefreshRejectsDeactivatedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dave@example.com", entity.RoleEmployee)
	session := env.login(t, "dave@example.com")

	if err := env.repo.UpdateUser(ctx, user.ID, entity.UserUpdates{IsActive: boolPtr(false)}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, err := env.sessions.Refresh(ctx, session.Tokens.RefreshToken); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	// the failed rotation rolled back and left the row in place
	count, err := env.repo.CountRefreshTokensForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected ledger row to survive rollback, got %d", count)
	}
}

func TestConcurrentRefreshOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "erin@example.com", entity.RoleEmployee)
	session := env.login(t, "erin@example.com")

	const attempts = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.sessions.Refresh(ctx, session.Tokens.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful refresh, got %d (failures: %v)", successes, failures)
	}
	for _, err := range failures {
		if !errors.Is(err, ErrTokenNotFoundOrExpired) {
			t.Fatalf("expected losers to fail with ErrTokenNotFoundOrExpired, got %v", err)
		}
	}
	count, err := env.repo.CountRefreshTokensForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one ledger row, got %d", count)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "frank@example.com", entity.RoleEmployee)

	_, unknownErr := env.sessions.Login(ctx, LoginInput{Email: "nobody@example.com", Password: testPassword})
	_, wrongErr := env.sessions.Login(ctx, LoginInput{Email: "frank@example.com", Password: "Wr0ng!pass"})
	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v and %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("expected identical messages, got %q and %q", unknownErr, wrongErr)
	}

	logs, err := env.sessions.LoginLogs(ctx, entity.AuditLogQuery{Action: entity.AuditLoginFailed})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if logs.Total != 2 {
		t.Fatalf("expected 2 failed login entries, got %d", logs.Total)
	}
	var anonymous, attributed int
	for _, entry := range logs.Data {
		if entry.UserID == nil {
			anonymous++
		} else if *entry.UserID == user.ID {
			attributed++
		}
	}
	if anonymous != 1 || attributed != 1 {
		t.Fatalf("expected one anonymous and one attributed entry, got %d and %d", anonymous, attributed)
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "gina@example.com", entity.RoleEmployee)
	if _, err := env.credentials.SetActiveStatus(ctx, user.ID, false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := env.sessions.Login(ctx, LoginInput{Email: "gina@example.com", Password: testPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordInvalidatesSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "hank@example.com", entity.RoleEmployee)
	session := env.login(t, "hank@example.com")

	if err := env.sessions.ChangePassword(ctx, user.ID, "wrong", "N3w!password", RequestMeta{}); !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}
	if err := env.sessions.ChangePassword(ctx, user.ID, testPassword, "weak", RequestMeta{}); !errors.Is(err, auth.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := env.sessions.ChangePassword(ctx, user.ID, testPassword, "N3w!password", RequestMeta{}); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if _, err := env.sessions.Refresh(ctx, session.Tokens.RefreshToken); !errors.Is(err, ErrTokenNotFoundOrExpired) {
		t.Fatalf("expected old refresh token to fail, got %v", err)
	}
	if _, err := env.sessions.Login(ctx, LoginInput{Email: "hank@example.com", Password: testPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password to fail, got %v", err)
	}
	if _, err := env.sessions.Login(ctx, LoginInput{Email: "hank@example.com", Password: "N3w!password"}); err != nil {
		t.Fatalf("expected new password to work: %v", err)
	}
}

func TestResetPasswordLogsAdminAsActor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "root@example.com", entity.RoleAdmin)
	target := env.createUser(t, "ivan@example.com", entity.RoleEmployee)
	session := env.login(t, "ivan@example.com")

	if err := env.sessions.ResetPassword(ctx, "missing-id", "R3set!pass", admin.ID, RequestMeta{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := env.sessions.ResetPassword(ctx, target.ID, "R3set!pass", admin.ID, RequestMeta{IPAddress: "10.0.0.1"}); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if _, err := env.sessions.Refresh(ctx, session.Tokens.RefreshToken); !errors.Is(err, ErrTokenNotFoundOrExpired) {
		t.Fatalf("expected sessions to be destroyed, got %v", err)
	}

	logs, err := env.sessions.LoginLogs(ctx, entity.AuditLogQuery{Action: entity.AuditPasswordReset})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(logs.Data) != 1 {
		t.Fatalf("expected one reset entry, got %d", len(logs.Data))
	}
	entry := logs.Data[0]
	if entry.UserID == nil || *entry.UserID != admin.ID {
		t.Fatalf("expected admin actor, got %v", entry.UserID)
	}
	if entry.RecordID == nil || *entry.RecordID != target.ID {
		t.Fatalf("expected target record, got %v", entry.RecordID)
	}
	if entry.ActorType != entity.ActorAdmin || entry.IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestLogoutAllThenRefreshFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "judy@example.com", entity.RoleEmployee)
	session := env.login(t, "judy@example.com")

	removed, err := env.sessions.LogoutAll(ctx, user.ID, RequestMeta{})
	if err != nil {
		t.Fatalf("logout all failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one session removed, got %d", removed)
	}
	if _, err := env.sessions.Refresh(ctx, session.Tokens.RefreshToken); !errors.Is(err, ErrTokenNotFoundOrExpired) {
		t.Fatalf("expected ErrTokenNotFoundOrExpired, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "kate@example.com", entity.RoleEmployee)
	session := env.login(t, "kate@example.com")

	for i := 0; i < 2; i++ {
		if err := env.sessions.Logout(ctx, session.Tokens.RefreshToken, user.ID, RequestMeta{}); err != nil {
			t.Fatalf("logout %d failed: %v", i, err)
		}
	}
	if _, err := env.sessions.Refresh(ctx, session.Tokens.RefreshToken); !errors.Is(err, ErrTokenNotFoundOrExpired) {
		t.Fatalf("expected ErrTokenNotFoundOrExpired, got %v", err)
	}

	logs, err := env.sessions.LoginLogs(ctx, entity.AuditLogQuery{UserID: user.ID})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	// one login plus two logouts
	if logs.Total != 3 {
		t.Fatalf("expected 3 session entries, got %d", logs.Total)
	}
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "admin@example.com", entity.RoleAdmin)

	user, err := env.sessions.Register(ctx, RegisterInput{
		CreateUserInput: CreateUserInput{Name: "Liam", Email: " Liam@Example.com ", Password: testPassword},
		ActorID:         admin.ID,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email != "liam@example.com" || user.RoleName() != entity.RoleEmployee || !user.IsActive {
		t.Fatalf("unexpected user %+v", user.Summary())
	}

	tests := []struct {
		name  string
		input CreateUserInput
		want  error
	}{
		{name: "duplicate email", input: CreateUserInput{Name: "Liam", Email: "liam@example.com", Password: testPassword}, want: ErrDuplicateEmail},
		{name: "unknown role", input: CreateUserInput{Name: "Mia", Email: "mia@example.com", Password: testPassword, Role: "ceo"}, want: ErrRoleNotFound},
		{name: "weak password", input: CreateUserInput{Name: "Mia", Email: "mia@example.com", Password: "password"}, want: auth.ErrWeakPassword},
		{name: "bad email", input: CreateUserInput{Name: "Mia", Email: "mia", Password: testPassword}, want: ErrValidation},
		{name: "short name", input: CreateUserInput{Name: "M", Email: "mia@example.com", Password: testPassword}, want: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.sessions.Register(ctx, RegisterInput{CreateUserInput: tt.input}); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	logs, err := env.sessions.LoginLogs(ctx, entity.AuditLogQuery{Action: entity.AuditRegisterSuccess})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if logs.Total != 1 || logs.Data[0].UserID == nil || *logs.Data[0].UserID != admin.ID {
		t.Fatalf("expected one register entry attributed to the admin, got %+v", logs.Data)
	}
}

func TestSetActiveStatusDestroysSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "boss@example.com", entity.RoleAdmin)
	user := env.createUser(t, "nina@example.com", entity.RoleEmployee)
	session := env.login(t, "nina@example.com")

	updated, err := env.sessions.SetActiveStatus(ctx, user.ID, false, admin.ID, RequestMeta{})
	if err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if updated.IsActive {
		t.Fatal("expected user to be inactive")
	}
	if _, err := env.sessions.Refresh(ctx, session.Tokens.RefreshToken); !errors.Is(err, ErrTokenNotFoundOrExpired) {
		t.Fatalf("expected ErrTokenNotFoundOrExpired, got %v", err)
	}
	if _, err := env.sessions.SetActiveStatus(ctx, user.ID, true, admin.ID, RequestMeta{}); err != nil {
		t.Fatalf("reactivate failed: %v", err)
	}
	env.login(t, "nina@example.com")

	if _, err := env.sessions.SetActiveStatus(ctx, "missing", true, admin.ID, RequestMeta{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLoginLogsDateRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "olga@example.com", entity.RoleEmployee)
	env.login(t, "olga@example.com")

	today := time.Now().UTC().Truncate(24 * time.Hour)
	yesterday := today.Add(-24 * time.Hour)

	tests := []struct {
		name  string
		query entity.AuditLogQuery
		want  int64
	}{
		{"calendar day includes the whole day", entity.AuditLogQuery{StartDate: &today, EndDate: &today, EndDateIsDay: true}, 1},
		{"instant at midnight is exclusive", entity.AuditLogQuery{EndDate: &today}, 0},
		{"previous calendar day", entity.AuditLogQuery{EndDate: &yesterday, EndDateIsDay: true}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := env.sessions.LoginLogs(ctx, tt.query)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if logs.Total != tt.want {
				t.Fatalf("expected %d entries, got %d", tt.want, logs.Total)
			}
		})
	}

	tomorrow := today.Add(48 * time.Hour)
	if _, err := env.sessions.LoginLogs(ctx, entity.AuditLogQuery{StartDate: &tomorrow, EndDate: &today, EndDateIsDay: true}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := env.sessions.LoginLogs(ctx, entity.AuditLogQuery{StartDate: &today, EndDate: &today}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected equal instants to be rejected, got %v", err)
	}
}

func boolPtr(v bool) *bool {
	return &v
}
