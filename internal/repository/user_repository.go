package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/labrental/instrument-marketplace-api/internal/domain"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	// ErrStaleWrite reports that a conditional update matched no row because
	// another request changed the guarded column first.
	ErrStaleWrite = errors.New("stale write")
)

// ChallengeIssue describes a freshly issued challenge. When NotRequestedSince
// is set the write only succeeds if the previous request for the same kind
// happened at or before that instant.
type ChallengeIssue struct {
	Fingerprint       string
	ExpiresAt         time.Time
	IssuedAt          time.Time
	NotRequestedSince *time.Time
}

// AccountUpdate is applied in the same statement that consumes a challenge.
type AccountUpdate struct {
	PasswordHash    string
	EmailVerifiedAt *time.Time
	RevokeSessions  bool
	At              time.Time
}

// UserFilter narrows List. Zero fields match everything.
type UserFilter struct {
	Status string
	Role   domain.Role
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByChallengeFingerprint(ctx context.Context, kind domain.ChallengeKind, fingerprint string) (*domain.User, error)
	IssueChallenge(ctx context.Context, userID uint, kind domain.ChallengeKind, issue ChallengeIssue) error
	ClearChallenge(ctx context.Context, userID uint, kind domain.ChallengeKind, fingerprint string) (bool, error)
	RecordFailedAttempt(ctx context.Context, userID uint, kind domain.ChallengeKind, fingerprint string, observedAttempts int) error
	ConsumeChallenge(ctx context.Context, userID uint, kind domain.ChallengeKind, fingerprint string, update AccountUpdate) error
	SetRefreshFingerprint(ctx context.Context, userID uint, fingerprint string) error
	SwapRefreshFingerprint(ctx context.Context, userID uint, expected, next string) error
	RecordLogin(ctx context.Context, userID uint, at time.Time) error
	RehashPassword(ctx context.Context, userID uint, expected, next string) error
	UpdateStatus(ctx context.Context, userID uint, status string) error
	List(ctx context.Context, filter UserFilter, page PageRequest) (PageResult[domain.User], error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

type challengeColumns struct {
	fingerprint   string
	expiresAt     string
	attempts      string
	lastRequestAt string
}

var challengeColumnsByKind = map[domain.ChallengeKind]challengeColumns{
	domain.ChallengeEmailVerificationLink: {
		fingerprint: "email_verification_fingerprint",
		expiresAt:   "email_verification_expires_at",
	},
	domain.ChallengePasswordResetLink: {
		fingerprint: "reset_password_fingerprint",
		expiresAt:   "reset_password_expires_at",
	},
	domain.ChallengePasswordChangeOTP: {
		fingerprint:   "password_change_otp_fingerprint",
		expiresAt:     "password_change_otp_expires_at",
		attempts:      "password_change_otp_attempts",
		lastRequestAt: "last_password_otp_request_at",
	},
	domain.ChallengeEmailOTP: {
		fingerprint:   "email_otp_fingerprint",
		expiresAt:     "email_otp_expires_at",
		attempts:      "email_otp_attempts",
		lastRequestAt: "last_email_otp_request_at",
	},
}

// emailVerificationKinds are cleared together: proving ownership through one
// retires the other.
var emailVerificationKinds = []domain.ChallengeKind{domain.ChallengeEmailVerificationLink, domain.ChallengeEmailOTP}

func columnsFor(kind domain.ChallengeKind) (challengeColumns, error) {
	cols, ok := challengeColumnsByKind[kind]
	if !ok {
		return challengeColumns{}, fmt.Errorf("unknown challenge kind %q", kind)
	}
	return cols, nil
}

// cleared resets every column of the challenge. The last-request timestamp
// is kept so the resend cooldown survives consumption.
func (c challengeColumns) cleared() map[string]any {
	updates := map[string]any{c.fingerprint: "", c.expiresAt: nil}
	if c.attempts != "" {
		updates[c.attempts] = 0
	}
	return updates
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &u, nil
}

func (r *GormUserRepository) FindByChallengeFingerprint(ctx context.Context, kind domain.ChallengeKind, fingerprint string) (*domain.User, error) {
	if fingerprint == "" {
		return nil, ErrUserNotFound
	}
	cols, err := columnsFor(kind)
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := r.db.WithContext(ctx).Where(cols.fingerprint+" = ?", fingerprint).First(&u).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &u, nil
}

func (r *GormUserRepository) IssueChallenge(ctx context.Context, userID uint, kind domain.ChallengeKind, issue ChallengeIssue) error {
	cols, err := columnsFor(kind)
	if err != nil {
		return err
	}
	expiresAt := issue.ExpiresAt
	updates := map[string]any{
		cols.fingerprint: issue.Fingerprint,
		cols.expiresAt:   &expiresAt,
		"updated_at":     issue.IssuedAt,
	}
	q := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID)
	if cols.attempts != "" {
		updates[cols.attempts] = 0
	}
	if cols.lastRequestAt != "" {
		issuedAt := issue.IssuedAt
		updates[cols.lastRequestAt] = &issuedAt
		if issue.NotRequestedSince != nil {
			q = q.Where("("+cols.lastRequestAt+" IS NULL OR "+cols.lastRequestAt+" <= ?)", *issue.NotRequestedSince)
		}
	}
	return expectOneRow(q.Updates(updates))
}

func (r *GormUserRepository) ClearChallenge(ctx context.Context, userID uint, kind domain.ChallengeKind, fingerprint string) (bool, error) {
	cols, err := columnsFor(kind)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND "+cols.fingerprint+" = ?", userID, fingerprint).
		Updates(cols.cleared())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormUserRepository) RecordFailedAttempt(ctx context.Context, userID uint, kind domain.ChallengeKind, fingerprint string, observedAttempts int) error {
	cols, err := columnsFor(kind)
	if err != nil {
		return err
	}
	if cols.attempts == "" {
		return fmt.Errorf("challenge kind %q does not count attempts", kind)
	}
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND "+cols.fingerprint+" = ? AND "+cols.attempts+" = ?", userID, fingerprint, observedAttempts).
		Update(cols.attempts, gorm.Expr(cols.attempts+" + 1"))
	return expectOneRow(res)
}

func (r *GormUserRepository) ConsumeChallenge(ctx context.Context, userID uint, kind domain.ChallengeKind, fingerprint string, update AccountUpdate) error {
	cols, err := columnsFor(kind)
	if err != nil {
		return err
	}
	if fingerprint == "" {
		return ErrStaleWrite
	}
	updates := cols.cleared()
	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	updates["updated_at"] = at
	if update.PasswordHash != "" {
		updates["password_hash"] = update.PasswordHash
		updates["password_changed_at"] = &at
	}
	if update.EmailVerifiedAt != nil {
		updates["email_verified"] = true
		updates["email_verified_at"] = update.EmailVerifiedAt
		for _, k := range emailVerificationKinds {
			maps.Copy(updates, challengeColumnsByKind[k].cleared())
		}
	}
	if update.RevokeSessions {
		updates["refresh_token_fingerprint"] = ""
	}
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND "+cols.fingerprint+" = ?", userID, fingerprint).
		Updates(updates)
	return expectOneRow(res)
}

func (r *GormUserRepository) SetRefreshFingerprint(ctx context.Context, userID uint, fingerprint string) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).
		Update("refresh_token_fingerprint", fingerprint)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SwapRefreshFingerprint replaces the stored fingerprint only if it still
// equals expected, so at most one rotation of a given refresh token wins.
func (r *GormUserRepository) SwapRefreshFingerprint(ctx context.Context, userID uint, expected, next string) error {
	if expected == "" {
		return ErrStaleWrite
	}
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND refresh_token_fingerprint = ?", userID, expected).
		Update("refresh_token_fingerprint", next)
	return expectOneRow(res)
}

func (r *GormUserRepository) RecordLogin(ctx context.Context, userID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).
		Update("last_login_at", &at).Error
}

// RehashPassword upgrades the stored hash of an unchanged password. It only
// applies while the row still holds expected.
func (r *GormUserRepository) RehashPassword(ctx context.Context, userID uint, expected, next string) error {
	if expected == "" || next == "" {
		return ErrStaleWrite
	}
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND password_hash = ?", userID, expected).
		Update("password_hash", next)
	return expectOneRow(res)
}

func (r *GormUserRepository) UpdateStatus(ctx context.Context, userID uint, status string) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).
		Updates(map[string]any{"status": status, "refresh_token_fingerprint": ""})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *GormUserRepository) List(ctx context.Context, filter UserFilter, page PageRequest) (PageResult[domain.User], error) {
	page = page.normalized()
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&domain.User{})
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.Role != "" {
			q = q.Where("role = ?", filter.Role)
		}
		return q
	}
	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return PageResult[domain.User]{}, fmt.Errorf("count users: %w", err)
	}
	items := make([]domain.User, 0, page.PageSize)
	if err := scoped().Order("id ASC").Offset(page.offset()).Limit(page.PageSize).Find(&items).Error; err != nil {
		return PageResult[domain.User]{}, fmt.Errorf("list users: %w", err)
	}
	return PageResult[domain.User]{
		Items:      items,
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      total,
		TotalPages: totalPages(total, page.PageSize),
	}, nil
}

func expectOneRow(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return err
}
