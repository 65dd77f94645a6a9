package seed

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/labrental/instrument-marketplace-api/internal/database"
	"github.com/labrental/instrument-marketplace-api/internal/di"
	"github.com/labrental/instrument-marketplace-api/internal/tools/common"
)

// Seeder is the slice of the migration runner the seed commands drive.
type Seeder interface {
	Seed(ctx context.Context) (*database.SeedReport, error)
	SeedPlan(ctx context.Context) ([]string, error)
	Close() error
}

type options struct {
	envFile    string
	adminEmail string
	timeout    time.Duration
	ci         bool
	open       func() (Seeder, error)
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	opts.open = func() (Seeder, error) { return openRunner(opts) }

	cmd := &cobra.Command{Use: "seed", Short: "Bootstrap admin seeding"}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	flags.StringVar(&opts.adminEmail, "bootstrap-admin-email", "", "override BOOTSTRAP_ADMIN_EMAIL")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	flags.BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		subcommand(opts, "apply", "Create or promote the bootstrap admin", Apply),
		subcommand(opts, "dry-run", "Show what apply would change", DryRun),
	)
	return cmd
}

func subcommand(opts *options, use, short string, action func(context.Context, Seeder) ([]string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := common.Run("seed", use, opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				s, err := opts.open()
				if err != nil {
					return nil, err
				}
				defer func() { _ = s.Close() }()
				return action(ctx, s)
			})
			common.Finish(opts.ci, "seed "+use, details, err, common.ExitDatabase)
			return nil
		},
	}
}

func Apply(ctx context.Context, s Seeder) ([]string, error) {
	report, err := s.Seed(ctx)
	if err != nil {
		return nil, err
	}
	return []string{report.String()}, nil
}

func DryRun(ctx context.Context, s Seeder) ([]string, error) {
	return s.SeedPlan(ctx)
}

// openRunner applies the email override before the env file so the flag
// wins over both the file and the inherited environment.
func openRunner(opts *options) (Seeder, error) {
	if email := strings.TrimSpace(opts.adminEmail); email != "" {
		if err := os.Setenv("BOOTSTRAP_ADMIN_EMAIL", email); err != nil {
			return nil, err
		}
	}
	if err := common.LoadEnvFile(opts.envFile); err != nil {
		return nil, err
	}
	runner, err := di.InitializeMigrationRunner()
	if err != nil {
		return nil, err
	}
	return runner, nil
}
