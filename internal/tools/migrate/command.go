package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/labrental/instrument-marketplace-api/internal/database"
	"github.com/labrental/instrument-marketplace-api/internal/di"
	"github.com/labrental/instrument-marketplace-api/internal/tools/common"
)

const planFooter = "no mutation executed in plan mode"

// Migrator is the part of the migration runner these commands drive.
type Migrator interface {
	Run(ctx context.Context) (*database.SeedReport, error)
	Status(ctx context.Context) ([]database.MigrationStatus, error)
	Plan(ctx context.Context) ([]string, error)
	Close() error
}

type action func(ctx context.Context, m Migrator) ([]string, error)

func NewRootCommand() *cobra.Command {
	var (
		envFile string
		timeout time.Duration
		ci      bool
	)
	open := func() (Migrator, error) {
		if err := common.LoadEnvFile(envFile); err != nil {
			return nil, err
		}
		runner, err := di.InitializeMigrationRunner()
		if err != nil {
			return nil, err
		}
		return runner, nil
	}
	sub := func(use, short string, fn action) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				details, err := common.Run("migrate", use, ci, timeout, func(ctx context.Context) ([]string, error) {
					m, err := open()
					if err != nil {
						return nil, err
					}
					defer func() { _ = m.Close() }()
					return fn(ctx, m)
				})
				common.Finish(ci, "migrate "+use, details, err, common.ExitDatabase)
				return nil
			},
		}
	}

	cmd := &cobra.Command{Use: "migrate", Short: "Account schema migrations"}
	flags := cmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "path to env file")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "operation timeout")
	flags.BoolVar(&ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(
		sub("up", "Apply schema migrations and seed the bootstrap admin", Up),
		sub("status", "Compare the live schema with the account model", Status),
		sub("plan", "Show pending schema changes without applying them", Plan),
	)
	return cmd
}

func Up(ctx context.Context, m Migrator) ([]string, error) {
	report, err := m.Run(ctx)
	if err != nil {
		return nil, err
	}
	return []string{"schema migration applied", report.String()}, nil
}

func Status(ctx context.Context, m Migrator) ([]string, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	return DescribeStatus(statuses), nil
}

func Plan(ctx context.Context, m Migrator) ([]string, error) {
	steps, err := m.Plan(ctx)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		steps = []string{"schema up to date"}
	}
	return append(steps, planFooter), nil
}

func DescribeStatus(statuses []database.MigrationStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		state := "up to date"
		switch {
		case !st.Exists:
			state = "missing"
		case len(st.MissingColumns) > 0:
			state = fmt.Sprintf("missing columns %v", st.MissingColumns)
		}
		out = append(out, fmt.Sprintf("table %s: %s", st.Table, state))
	}
	return out
}
