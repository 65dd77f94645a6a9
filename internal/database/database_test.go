package database

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/security"
)

func newSQLiteForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestMigrateStatusAndPlan(t *testing.T) {
	db := newSQLiteForTest(t)
	ctx := context.Background()

	plan, err := Plan(ctx, db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 1 || plan[0] != "create table users" {
		t.Fatalf("unexpected plan before migrate: %v", plan)
	}

	if err := MigrateContext(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	statuses, err := Status(ctx, db)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 1 || !statuses[0].UpToDate() {
		t.Fatalf("expected users to be up to date, got %+v", statuses)
	}
	if plan, _ := Plan(ctx, db); len(plan) != 0 {
		t.Fatalf("expected empty plan after migrate, got %v", plan)
	}
}

func TestSeedCreatesBootstrapAdminOnce(t *testing.T) {
	db := newSQLiteForTest(t)
	ctx := context.Background()
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	report, err := SeedSync(ctx, db, " Admin@LabRental.test ", "correct-horse-battery")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !report.CreatedAdmin || report.AdminEmail != "admin@labrental.test" {
		t.Fatalf("unexpected report %+v", report)
	}
	var admin domain.User
	if err := db.Where("email = ?", "admin@labrental.test").First(&admin).Error; err != nil {
		t.Fatalf("load admin: %v", err)
	}
	if admin.Role != domain.RoleAdmin || !admin.EmailVerified || !admin.IsActive() {
		t.Fatalf("unexpected admin %+v", admin)
	}
	if ok, _ := security.VerifyPassword(admin.PasswordHash, "correct-horse-battery"); !ok {
		t.Fatal("admin password not hashed from the configured value")
	}

	again, err := SeedSync(ctx, db, "admin@labrental.test", "correct-horse-battery")
	if err != nil || !again.Noop {
		t.Fatalf("second run should be a no-op: %+v %v", again, err)
	}
}

func TestSeedPromotesExistingUser(t *testing.T) {
	db := newSQLiteForTest(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	u := &domain.User{Email: "ops@labrental.test", Name: "Ops", PasswordHash: "h", Role: domain.RoleInstitute, Status: domain.StatusSuspended}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	report, err := SeedSync(context.Background(), db, "ops@labrental.test", "")
	if err != nil || !report.PromotedUser {
		t.Fatalf("expected promotion, got %+v %v", report, err)
	}
	var got domain.User
	if err := db.First(&got, u.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Role != domain.RoleAdmin || got.Status != domain.StatusActive || !got.EmailVerified || got.PasswordHash != "h" {
		t.Fatalf("unexpected promoted user %+v", got)
	}
}

func TestSeedWithoutAdminEmailIsNoop(t *testing.T) {
	db := newSQLiteForTest(t)
	report, err := SeedSync(context.Background(), db, "", "")
	if err != nil || !report.Noop {
		t.Fatalf("expected noop, got %+v %v", report, err)
	}
}

func TestSeedRejectsShortPassword(t *testing.T) {
	db := newSQLiteForTest(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := Seed(db, "admin@labrental.test", "short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
}

func TestSeedReportString(t *testing.T) {
	var none *SeedReport
	cases := []struct {
		report *SeedReport
		want   string
	}{
		{none, "bootstrap admin: not configured"},
		{&SeedReport{Noop: true}, "bootstrap admin: not configured"},
		{&SeedReport{AdminEmail: "ops@lab.test", CreatedAdmin: true}, "bootstrap admin created: ops@lab.test"},
		{&SeedReport{AdminEmail: "ops@lab.test", PromotedUser: true}, "existing account promoted to admin: ops@lab.test"},
		{&SeedReport{AdminEmail: "ops@lab.test", Noop: true}, "bootstrap admin already present: ops@lab.test"},
	}
	for _, tc := range cases {
		if got := tc.report.String(); got != tc.want {
			t.Fatalf("got %q want %q", got, tc.want)
		}
	}
}
