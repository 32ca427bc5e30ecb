package sql

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"staffhub/internal/entity"
	"staffhub/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// tokenDigest is the value stored in place of the raw refresh token.
func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// UpsertRefreshToken stores token as the only refresh token of userID.
// A single INSERT ... ON CONFLICT statement keeps at most one row per user.
func (r *GormRepository) UpsertRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(token) == "" {
		return fmt.Errorf("user id and token are required")
	}
	row := entity.DbRefreshToken{
		ID:        utils.NewID(),
		UserID:    userID,
		TokenHash: tokenDigest(token),
		ExpiresAt: expiresAt.UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token_hash", "expires_at", "updated_at"}),
	}).Create(&row).Error
}

// FindLiveRefreshToken returns the row for token if it has not expired at now.
func (r *GormRepository) FindLiveRefreshToken(ctx context.Context, token string, now time.Time) (*entity.DbRefreshToken, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(token) == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var row entity.DbRefreshToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND expires_at > ?", tokenDigest(token), now.UTC()).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteRefreshToken removes the row holding token. Deleting nothing is not an error.
func (r *GormRepository) DeleteRefreshToken(ctx context.Context, token string) (int64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("token_hash = ?", tokenDigest(token)).Delete(&entity.DbRefreshToken{})
	return result.RowsAffected, result.Error
}

// DeleteRefreshTokensForUser removes every refresh token of userID.
func (r *GormRepository) DeleteRefreshTokensForUser(ctx context.Context, userID string) (int64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&entity.DbRefreshToken{})
	return result.RowsAffected, result.Error
}

// SweepExpiredRefreshTokens removes all rows expired at now.
func (r *GormRepository) SweepExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("repository not initialised")
	}
	result := r.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&entity.DbRefreshToken{})
	return result.RowsAffected, result.Error
}

// CountRefreshTokensForUser returns the number of rows for userID, live or not.
func (r *GormRepository) CountRefreshTokensForUser(ctx context.Context, userID string) (int64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("repository not initialised")
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.DbRefreshToken{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
