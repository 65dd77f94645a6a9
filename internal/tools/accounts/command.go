package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/labrental/instrument-marketplace-api/internal/di"
	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/repository"
	"github.com/labrental/instrument-marketplace-api/internal/tools/common"
)

// Admin is the operator surface the commands drive.
type Admin interface {
	RevokeByEmail(ctx context.Context, email string) (*domain.User, error)
	SetStatusByEmail(ctx context.Context, email, status string) (*domain.User, error)
	List(ctx context.Context, status, role string, page repository.PageRequest) (repository.PageResult[domain.User], error)
	Close() error
}

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
	open    func() (Admin, error)
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	opts.open = func() (Admin, error) {
		if err := common.LoadEnvFile(opts.envFile); err != nil {
			return nil, err
		}
		return di.InitializeAccountAdmin()
	}
	return newRootCommand(opts)
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "accounts", Short: "Operator account controls"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newListCommand(opts), newRevokeSessionsCommand(opts), newSetStatusCommand(opts))
	return cmd
}

func newListCommand(opts *options) *cobra.Command {
	var (
		status, role   string
		page, pageSize int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts, optionally by status and role",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := common.Run("accounts", "list", opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				return List(ctx, opts.open, status, role, repository.PageRequest{Page: page, PageSize: pageSize})
			})
			common.Finish(opts.ci, "accounts list", details, err, common.ExitAccount)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "active, inactive or suspended")
	cmd.Flags().StringVar(&role, "role", "", "msme, institute or admin")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", repository.DefaultPageSize, "accounts per page")
	return cmd
}

func newRevokeSessionsCommand(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "revoke-sessions",
		Short: "Invalidate the outstanding refresh token for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := common.Run("accounts", "revoke-sessions", opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				return RevokeSessions(ctx, opts.open, email)
			})
			common.Finish(opts.ci, "accounts revoke-sessions", details, err, common.ExitAccount)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func newSetStatusCommand(opts *options) *cobra.Command {
	var email, status string
	cmd := &cobra.Command{
		Use:   "set-status",
		Short: "Activate, deactivate or suspend an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := common.Run("accounts", "set-status", opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				return SetStatus(ctx, opts.open, email, status)
			})
			common.Finish(opts.ci, "accounts set-status", details, err, common.ExitAccount)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&status, "status", "", "active, inactive or suspended")
	return cmd
}

func RevokeSessions(ctx context.Context, open func() (Admin, error), email string) ([]string, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("email is required")
	}
	admin, err := open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = admin.Close() }()

	u, err := admin.RevokeByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("revoked sessions for user %d (%s)", u.ID, u.Email)}, nil
}

func SetStatus(ctx context.Context, open func() (Admin, error), email, status string) ([]string, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("email is required")
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return nil, errors.New("status is required")
	}
	admin, err := open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = admin.Close() }()

	u, err := admin.SetStatusByEmail(ctx, email, status)
	if err != nil {
		return nil, err
	}
	details := []string{fmt.Sprintf("user %d (%s) status=%s", u.ID, u.Email, u.Status)}
	if u.Status != domain.StatusActive {
		details = append(details, "sessions revoked")
	}
	return details, nil
}

func List(ctx context.Context, open func() (Admin, error), status, role string, page repository.PageRequest) ([]string, error) {
	admin, err := open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = admin.Close() }()

	res, err := admin.List(ctx, strings.ToLower(strings.TrimSpace(status)), strings.ToLower(strings.TrimSpace(role)), page)
	if err != nil {
		return nil, err
	}
	details := make([]string, 0, len(res.Items)+1)
	details = append(details, fmt.Sprintf("page %d/%d total=%d", res.Page, res.TotalPages, res.Total))
	for _, u := range res.Items {
		details = append(details, fmt.Sprintf("%d %s role=%s status=%s verified=%t", u.ID, u.Email, u.Role, u.Status, u.EmailVerified))
	}
	return details, nil
}
