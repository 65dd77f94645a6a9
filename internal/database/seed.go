package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/observability"
	"github.com/labrental/instrument-marketplace-api/internal/security"
)

// SeedReport summarises what a seed run changed.
type SeedReport struct {
	AdminEmail   string `json:"admin_email,omitempty"`
	CreatedAdmin bool   `json:"created_admin"`
	PromotedUser bool   `json:"promoted_user"`
	Noop         bool   `json:"noop"`
}

// String renders the report as one operator-facing line.
func (r *SeedReport) String() string {
	switch {
	case r == nil || (r.Noop && r.AdminEmail == ""):
		return "bootstrap admin: not configured"
	case r.CreatedAdmin:
		return "bootstrap admin created: " + r.AdminEmail
	case r.PromotedUser:
		return "existing account promoted to admin: " + r.AdminEmail
	default:
		return "bootstrap admin already present: " + r.AdminEmail
	}
}

func Seed(db *gorm.DB, adminEmail, adminPassword string) error {
	_, err := SeedSync(context.Background(), db, adminEmail, adminPassword)
	return err
}

// SeedSync makes sure the bootstrap admin exists. It is the only path that
// produces an admin account. An existing record with that email is promoted
// and verified but keeps its password.
func SeedSync(ctx context.Context, db *gorm.DB, adminEmail, adminPassword string) (_ *SeedReport, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "seed", time.Since(start))
		if err != nil {
			observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
		} else {
			observability.RecordDatabaseStartupEvent(ctx, "seed", "success")
		}
	}()

	email := strings.TrimSpace(strings.ToLower(adminEmail))
	report := &SeedReport{AdminEmail: email}
	if email == "" {
		report.Noop = true
		return report, nil
	}

	var existing domain.User
	err = db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil:
		if existing.Role == domain.RoleAdmin && existing.EmailVerified && existing.IsActive() {
			report.Noop = true
			return report, nil
		}
		now := time.Now().UTC()
		updates := map[string]any{
			"role":           domain.RoleAdmin,
			"status":         domain.StatusActive,
			"email_verified": true,
		}
		if existing.EmailVerifiedAt == nil {
			updates["email_verified_at"] = &now
		}
		if err = db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("promote bootstrap admin: %w", err)
		}
		report.PromotedUser = true
		return report, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	if len(adminPassword) < 12 {
		return nil, errors.New("bootstrap admin password must be at least 12 characters")
	}
	hash, err := security.HashPassword(adminPassword)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	admin := &domain.User{
		Email:           email,
		Name:            "Administrator",
		PasswordHash:    hash,
		Role:            domain.RoleAdmin,
		Status:          domain.StatusActive,
		EmailVerified:   true,
		EmailVerifiedAt: &now,
	}
	if err = db.WithContext(ctx).Create(admin).Error; err != nil {
		return nil, fmt.Errorf("create bootstrap admin: %w", err)
	}
	report.CreatedAdmin = true
	return report, nil
}
