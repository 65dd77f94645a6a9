package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/observability"
)

// MigrationStatus describes the schema state of one managed table.
type MigrationStatus struct {
	Table          string   `json:"table"`
	Exists         bool     `json:"exists"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

func (s MigrationStatus) UpToDate() bool {
	return s.Exists && len(s.MissingColumns) == 0
}

func models() []any {
	return []any{&domain.User{}}
}

func Migrate(db *gorm.DB) error {
	return MigrateContext(context.Background(), db)
}

func MigrateContext(ctx context.Context, db *gorm.DB) error {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "migrate", time.Since(start))
	}()
	if err := db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "migrate", "error")
		return err
	}
	observability.RecordDatabaseStartupEvent(ctx, "migrate", "success")
	return nil
}

// Status compares the live schema with the models without changing anything.
func Status(ctx context.Context, db *gorm.DB) ([]MigrationStatus, error) {
	migrator := db.WithContext(ctx).Migrator()
	out := make([]MigrationStatus, 0, len(models()))
	for _, model := range models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, err
		}
		st := MigrationStatus{Table: stmt.Schema.Table, Exists: migrator.HasTable(model)}
		if st.Exists {
			for _, field := range stmt.Schema.Fields {
				if field.DBName == "" {
					continue
				}
				if !migrator.HasColumn(model, field.DBName) {
					st.MissingColumns = append(st.MissingColumns, field.DBName)
				}
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// Plan lists the changes AutoMigrate would make, derived from Status.
func Plan(ctx context.Context, db *gorm.DB) ([]string, error) {
	statuses, err := Status(ctx, db)
	if err != nil {
		return nil, err
	}
	var steps []string
	for _, st := range statuses {
		if !st.Exists {
			steps = append(steps, "create table "+st.Table)
			continue
		}
		for _, col := range st.MissingColumns {
			steps = append(steps, "add column "+st.Table+"."+col)
		}
	}
	return steps, nil
}
