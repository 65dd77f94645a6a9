package loadgen

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/labrental/instrument-marketplace-api/internal/tools/common"
)

// runSlack covers connection drain after the traffic window closes.
const runSlack = 15 * time.Second

func NewRootCommand() *cobra.Command {
	var cfg Config
	var ci bool

	cmd := &cobra.Command{Use: "loadgen", Short: "Drive synthetic auth traffic against a running API"}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.BaseURL, "base-url", "http://localhost:8080", "API base URL")
	flags.StringVar(&cfg.Profile, "profile", "mixed", "traffic profile: mixed|auth|otp|error-heavy")
	flags.DurationVar(&cfg.Duration, "duration", 15*time.Second, "traffic duration")
	flags.IntVar(&cfg.RPS, "rps", 20, "requests per second")
	flags.IntVar(&cfg.Concurrency, "concurrency", 6, "concurrent workers")
	flags.Uint64Var(&cfg.Seed, "seed", 42, "random seed")
	flags.BoolVar(&ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Send traffic for --duration and report status classes",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := common.Run("loadgen", "run", ci, cfg.Duration+runSlack, func(ctx context.Context) ([]string, error) {
				res, err := Run(ctx, cfg)
				if err != nil {
					return nil, err
				}
				return res.Summary(), nil
			})
			common.Finish(ci, "loadgen run", details, err, common.ExitTraffic)
			return nil
		},
	})
	return cmd
}

// Summary lists the counters as key=value lines.
func (r Result) Summary() []string {
	return []string{
		fmt.Sprintf("total_requests=%d", r.TotalRequests),
		fmt.Sprintf("failures=%d", r.Failures),
		fmt.Sprintf("status_2xx=%d", r.Status2xx),
		fmt.Sprintf("status_4xx=%d", r.Status4xx),
		fmt.Sprintf("status_429=%d", r.Status429),
		fmt.Sprintf("status_5xx=%d", r.Status5xx),
	}
}
