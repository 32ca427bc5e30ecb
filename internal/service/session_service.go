package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"staffhub/internal/auth"
	"staffhub/internal/entity"
	"staffhub/internal/model"
	"staffhub/internal/obs"
	"staffhub/internal/utils"

	"github.com/sirupsen/logrus"
)

const auditTargetUsers = "users"

// SessionManager 会话管理服务，负责登录、令牌轮换、登出以及相关审计
type SessionManager struct {
	repo        model.Repository
	credentials *CredentialStore
	codec       *auth.Codec
	now         func() time.Time
}

// SessionOption customises a SessionManager.
type SessionOption func(*SessionManager)

// WithClock overrides the clock used for ledger expiry checks.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewSessionManager 创建会话管理服务实例
func NewSessionManager(repo model.Repository, credentials *CredentialStore, codec *auth.Codec, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		repo:        repo,
		credentials: credentials,
		codec:       codec,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestMeta identifies where a request came from, for the audit trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// LoginInput 登录参数
type LoginInput struct {
	Email    string
	Password string
	RequestMeta
}

// SessionResult is returned by Login and Refresh.
type SessionResult struct {
	User   *entity.DbUser
	Tokens auth.TokenPair
}

// RegisterInput 注册参数。ActorID 为发起注册的管理员，可为空
type RegisterInput struct {
	CreateUserInput
	ActorID string
	RequestMeta
}

func (m *SessionManager) ready() error {
	if m == nil || m.repo == nil || m.credentials == nil || m.codec == nil {
		return fmt.Errorf("session manager not initialised")
	}
	return nil
}

// AccessTTL is the lifetime of issued access tokens.
func (m *SessionManager) AccessTTL() time.Duration {
	return m.codec.AccessTTL()
}

// RefreshTTL is the lifetime of issued refresh tokens.
func (m *SessionManager) RefreshTTL() time.Duration {
	return m.codec.RefreshTTL()
}

// Login verifies credentials and opens a session. Unknown emails, inactive accounts and wrong
// passwords all fail with ErrInvalidCredentials; only the audit entry tells them apart.
func (m *SessionManager) Login(ctx context.Context, input LoginInput) (*SessionResult, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	email := entity.NormaliseEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, invalidField("email", "email and password are required")
	}

	user, err := m.credentials.FindActiveUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		m.credentials.BurnPasswordCheck(input.Password)
		m.recordAudit(ctx, &entity.DbAuditLog{
			Action:    entity.AuditLoginFailed,
			NewValues: entity.JSONMap{"email": email, "reason": "unknown_email"},
			ActorType: entity.ActorAnonymous,
		}, input.RequestMeta)
		obs.ObserveAuthEvent("login", "failure")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !m.credentials.VerifyPassword(input.Password, user.PasswordHash) {
		m.recordAudit(ctx, &entity.DbAuditLog{
			UserID:    &user.ID,
			Action:    entity.AuditLoginFailed,
			NewValues: entity.JSONMap{"email": email, "reason": "bad_password"},
			ActorType: entity.ActorUser,
		}, input.RequestMeta)
		obs.ObserveAuthEvent("login", "failure")
		return nil, ErrInvalidCredentials
	}

	pair, err := m.codec.IssuePair(user.TokenPayload())
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	if err := m.repo.UpsertRefreshToken(ctx, user.ID, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	m.recordAudit(ctx, &entity.DbAuditLog{
		UserID:    &user.ID,
		Action:    entity.AuditLoginSuccess,
		ActorType: entity.ActorUser,
	}, input.RequestMeta)
	obs.ObserveAuthEvent("login", "success")

	return &SessionResult{User: user, Tokens: pair}, nil
}

// Refresh rotates a refresh token. The ledger lookup, destroy, sweep, mint and upsert share
// one transaction; a token that was already rotated away fails with ErrTokenNotFoundOrExpired.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*SessionResult, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, auth.ErrMissingToken
	}
	if _, err := m.codec.Verify(refreshToken, auth.KindRefresh); err != nil {
		obs.ObserveAuthEvent("refresh", "failure")
		return nil, err
	}

	var result *SessionResult
	err := m.repo.Transaction(ctx, func(tx model.Repository) error {
		now := m.now()

		row, err := tx.FindLiveRefreshToken(ctx, refreshToken, now)
		if err != nil {
			return notFoundAs(err, ErrTokenNotFoundOrExpired)
		}

		user, err := m.credentials.WithRepository(tx).FindActiveUserByID(ctx, row.UserID)
		if err != nil {
			return err
		}

		deleted, err := tx.DeleteRefreshToken(ctx, refreshToken)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return ErrTokenNotFoundOrExpired
		}

		if _, err := tx.SweepExpiredRefreshTokens(ctx, now); err != nil {
			return err
		}

		pair, err := m.codec.IssuePair(user.TokenPayload())
		if err != nil {
			return fmt.Errorf("issue tokens: %w", err)
		}
		if err := tx.UpsertRefreshToken(ctx, user.ID, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
			return err
		}
		result = &SessionResult{User: user, Tokens: pair}
		return nil
	})
	if err != nil {
		obs.ObserveAuthEvent("refresh", "failure")
		return nil, err
	}
	obs.ObserveAuthEvent("refresh", "success")
	return result, nil
}

// Logout destroys refreshToken if it is still stored. Failures to destroy are logged, not returned.
func (m *SessionManager) Logout(ctx context.Context, refreshToken, userID string, meta RequestMeta) error {
	if err := m.ready(); err != nil {
		return err
	}
	if token := strings.TrimSpace(refreshToken); token != "" {
		if _, err := m.repo.DeleteRefreshToken(ctx, token); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("failed to destroy refresh token on logout")
		}
	}
	if userID != "" {
		m.recordAudit(ctx, &entity.DbAuditLog{
			UserID:    &userID,
			Action:    entity.AuditLogout,
			ActorType: entity.ActorUser,
		}, meta)
	}
	obs.ObserveAuthEvent("logout", "success")
	return nil
}

// LogoutAll destroys every refresh token of userID and returns how many were removed.
func (m *SessionManager) LogoutAll(ctx context.Context, userID string, meta RequestMeta) (int64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(userID) == "" {
		return 0, invalidField("userId", "user id is required")
	}
	removed, err := m.repo.DeleteRefreshTokensForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	m.recordAudit(ctx, &entity.DbAuditLog{
		UserID:    &userID,
		Action:    entity.AuditLogoutAll,
		NewValues: entity.JSONMap{"sessions_removed": removed},
		ActorType: entity.ActorUser,
	}, meta)
	obs.ObserveAuthEvent("logout_all", "success")
	return removed, nil
}

// Register creates a user through the credential store and records REGISTER_SUCCESS.
// The audit entry is written after the user is committed and cannot undo it.
func (m *SessionManager) Register(ctx context.Context, input RegisterInput) (*entity.DbUser, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	user, err := m.credentials.CreateUser(ctx, input.CreateUserInput)
	if err != nil {
		obs.ObserveAuthEvent("register", "failure")
		return nil, err
	}

	actorID, actorType := user.ID, entity.ActorUser
	if input.ActorID != "" {
		actorID, actorType = input.ActorID, entity.ActorAdmin
	}
	m.recordAudit(ctx, &entity.DbAuditLog{
		UserID:      &actorID,
		Action:      entity.AuditRegisterSuccess,
		TargetTable: stringPtr(auditTargetUsers),
		RecordID:    &user.ID,
		NewValues:   entity.JSONMap{"email": user.Email, "role": user.RoleName()},
		ActorType:   actorType,
	}, input.RequestMeta)
	obs.ObserveAuthEvent("register", "success")
	return user, nil
}

// ChangePassword replaces the caller's password; every outstanding refresh token stops working.
func (m *SessionManager) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta RequestMeta) error {
	if err := m.ready(); err != nil {
		return err
	}
	user, err := m.credentials.ChangePassword(ctx, userID, currentPassword, newPassword)
	if err != nil {
		obs.ObserveAuthEvent("password_change", "failure")
		return err
	}
	m.recordAudit(ctx, &entity.DbAuditLog{
		UserID:      &user.ID,
		Action:      entity.AuditPasswordChange,
		TargetTable: stringPtr(auditTargetUsers),
		RecordID:    &user.ID,
		ActorType:   entity.ActorUser,
	}, meta)
	obs.ObserveAuthEvent("password_change", "success")
	return nil
}

// ResetPassword sets targetID's password on behalf of adminID. The audit actor is the admin.
func (m *SessionManager) ResetPassword(ctx context.Context, targetID, newPassword, adminID string, meta RequestMeta) error {
	if err := m.ready(); err != nil {
		return err
	}
	user, err := m.credentials.ResetPassword(ctx, targetID, newPassword)
	if err != nil {
		obs.ObserveAuthEvent("password_reset", "failure")
		return err
	}
	m.recordAudit(ctx, &entity.DbAuditLog{
		UserID:      stringPtr(adminID),
		Action:      entity.AuditPasswordReset,
		TargetTable: stringPtr(auditTargetUsers),
		RecordID:    &user.ID,
		NewValues:   entity.JSONMap{"email": user.Email},
		ActorType:   entity.ActorAdmin,
	}, meta)
	obs.ObserveAuthEvent("password_reset", "success")
	return nil
}

// SetActiveStatus activates or deactivates targetID on behalf of actorID.
func (m *SessionManager) SetActiveStatus(ctx context.Context, targetID string, isActive bool, actorID string, meta RequestMeta) (*entity.DbUser, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	before, err := m.credentials.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	user, err := m.credentials.SetActiveStatus(ctx, before.ID, isActive)
	if err != nil {
		return nil, err
	}

	action := entity.AuditUserActivated
	if !isActive {
		action = entity.AuditUserDeactivated
	}
	m.recordAudit(ctx, &entity.DbAuditLog{
		UserID:      stringPtr(actorID),
		Action:      action,
		TargetTable: stringPtr(auditTargetUsers),
		RecordID:    &user.ID,
		OldValues:   entity.JSONMap{"is_active": before.IsActive},
		NewValues:   entity.JSONMap{"is_active": isActive},
		ActorType:   entity.ActorAdmin,
	}, meta)
	return user, nil
}

// LoginLogs returns a page of session audit entries. Without an action filter only
// login, failed login, logout and logout-all entries are listed. An end date marked
// EndDateIsDay includes that whole day; any other end date is an exclusive instant.
func (m *SessionManager) LoginLogs(ctx context.Context, query entity.AuditLogQuery) (*entity.AuditLogListResponse, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	query.Normalise(20, 100)
	query.Action = strings.ToUpper(strings.TrimSpace(query.Action))
	if query.Action == "" && len(query.Actions) == 0 {
		query.Actions = entity.SessionAuditActions
	}
	if query.EndDate != nil {
		end := query.EndDate.UTC()
		if query.EndDateIsDay {
			end = end.Truncate(24 * time.Hour).Add(24 * time.Hour)
		}
		query.EndDate = &end
	}
	if query.StartDate != nil && query.EndDate != nil && !query.StartDate.Before(*query.EndDate) {
		return nil, invalidField("startDate", "startDate must be before endDate")
	}

	logs, total, err := m.repo.ListAuditLogs(ctx, &query)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []entity.DbAuditLog{}
	}
	return &entity.AuditLogListResponse{
		Total: total,
		Page:  query.Page,
		Limit: query.Limit,
		Data:  logs,
	}, nil
}

// recordAudit appends entry. Failures are logged and swallowed.
func (m *SessionManager) recordAudit(ctx context.Context, entry *entity.DbAuditLog, meta RequestMeta) {
	entry.IPAddress = utils.Truncate(meta.IPAddress, 64)
	entry.UserAgent = utils.Truncate(meta.UserAgent, 512)
	if entry.ActorType == "" {
		entry.ActorType = entity.ActorUser
	}
	if err := m.repo.CreateAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		fields := logrus.Fields{"action": entry.Action}
		if entry.UserID != nil {
			fields["user_id"] = *entry.UserID
		}
		logrus.WithError(err).WithFields(fields).Warn("failed to write audit log")
	}
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
