package common

import (
	"context"
	"os"
	"time"

	"github.com/labrental/instrument-marketplace-api/internal/observability"
	"github.com/labrental/instrument-marketplace-api/internal/tools/ui"
)

const (
	ExitDatabase = 3
	ExitTraffic  = 4
	ExitAccount  = 5
)

type Action func(context.Context) ([]string, error)

// Run executes action under the interactive view, or with a deadline when ci
// is set, and records the outcome as a tool command metric.
func Run(tool, command string, ci bool, timeout time.Duration, action Action) ([]string, error) {
	start := time.Now()
	var (
		details []string
		err     error
	)
	if ci {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		details, err = action(ctx)
		cancel()
	} else {
		details, err = ui.Run(tool+" "+command, action)
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordToolCommandRun(context.Background(), tool, command, outcome)
	observability.RecordToolCommandDuration(context.Background(), tool, command, outcome, time.Since(start))
	return details, err
}

// Finish prints the CI envelope when asked and exits with code on failure.
func Finish(ci bool, title string, details []string, err error, code int) {
	if ci {
		_ = WriteCIResult(os.Stdout, NewCIResult(title, details, err, code))
	}
	if err != nil {
		os.Exit(code)
	}
}
