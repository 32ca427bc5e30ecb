package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"staffhub/internal/auth"
	"staffhub/internal/config"
	"staffhub/internal/entity"

	"gorm.io/gorm"
)

type roleSeed struct {
	Name        string
	Description string
	Permissions auth.PermissionSet
}

// defaultRoles returns the built-in roles and their grants.
func defaultRoles() []roleSeed {
	administrative := func() auth.PermissionSet {
		return auth.NewPermissionSet().
			Grant(auth.ResourceRoles, auth.CRUD...).
			Grant(auth.ResourceReports, auth.CRUD...).
			Grant(auth.ResourceEmployees, auth.CRUD...).
			Grant(auth.ResourceAttendance, auth.CRUD...).
			Grant(auth.ResourceUsers, auth.CRUD...).
			Grant(auth.ResourceAuditLogs, auth.ActionRead)
	}

	return []roleSeed{
		{
			Name:        entity.RoleAdmin,
			Description: "Full administrative access",
			Permissions: administrative(),
		},
		{
			Name:        entity.RoleHR,
			Description: "Human resources staff",
			Permissions: administrative(),
		},
		{
			Name:        entity.RoleManager,
			Description: "Team manager",
			Permissions: auth.NewPermissionSet().
				Grant(auth.ResourceEmployees, auth.ActionRead).
				Grant(auth.ResourceAttendance, auth.ActionRead, auth.ActionUpdate).
				Grant(auth.ResourceReports, auth.ActionRead).
				Grant(auth.ResourceProfile, auth.ActionRead, auth.ActionUpdate),
		},
		{
			Name:        entity.RoleEmployee,
			Description: "Regular employee",
			Permissions: auth.NewPermissionSet().
				Grant(auth.ResourceAttendance, auth.ActionCreate, auth.ActionRead).
				Grant(auth.ResourceProfile, auth.ActionRead, auth.ActionUpdate),
		},
	}
}

// SeedDefaultRoles ensures the built-in roles exist and carry at least their default grants.
// Grants added by operators are kept.
func SeedDefaultRoles(ctx context.Context, repo Repository) error {
	if repo == nil {
		return nil
	}

	for _, seed := range defaultRoles() {
		existing, err := repo.GetRoleByName(ctx, seed.Name)
		switch {
		case err == nil:
			if err := syncRolePermissions(ctx, repo, existing, seed); err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			role := &entity.DbRole{
				Name:        seed.Name,
				Description: seed.Description,
				Permissions: seed.Permissions,
			}
			if err := repo.CreateRole(ctx, role); err != nil {
				return fmt.Errorf("create role %s: %w", seed.Name, err)
			}
		default:
			return err
		}
	}
	return nil
}

func syncRolePermissions(ctx context.Context, repo Repository, existing *entity.DbRole, seed roleSeed) error {
	if existing == nil {
		return nil
	}
	merged := existing.Permissions.Clone()
	missing := 0
	for p := range seed.Permissions {
		if _, ok := merged[p]; !ok {
			merged[p] = struct{}{}
			missing++
		}
	}
	if missing == 0 {
		return nil
	}
	return repo.UpdateRolePermissions(ctx, existing.ID, merged)
}

// SeedAdminUser creates the bootstrap administrator configured through ADMIN_EMAIL and
// ADMIN_PASSWORD when no user with that email exists yet.
func SeedAdminUser(ctx context.Context, repo Repository, cfg config.Config, hasher *auth.PasswordHasher) (bool, error) {
	if repo == nil {
		return false, nil
	}
	email := entity.NormaliseEmail(cfg.AdminEmail)
	password := cfg.AdminPassword
	if email == "" || password == "" {
		return false, nil
	}

	if _, err := repo.GetUserByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	role, err := repo.GetRoleByName(ctx, entity.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("load admin role: %w", err)
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return false, err
	}
	name := strings.TrimSpace(cfg.AdminName)
	if name == "" {
		name = "System Administrator"
	}

	user := &entity.DbUser{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		RoleID:       role.ID,
		IsActive:     true,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}
