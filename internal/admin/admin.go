// Package admin implements the operator command line: schema migration and
// manual tier and entitlement grants.
package admin

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/wellkeeper/internal/server/config"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/spf13/cobra"
)

// Backend performs the operations behind the commands.
type Backend interface {
	Migrate(ctx context.Context) error
	GrantPremium(ctx context.Context, accountID string, days *int) (*models.Subscription, error)
	RevokePremium(ctx context.Context, accountID string) (*models.Subscription, error)
	GrantEntitlement(ctx context.Context, accountID, featureID string, days *int, source models.EntitlementSource) (*models.Entitlement, error)
	Close() error
}

// Opener connects a Backend to the database named by dsn.
type Opener func(ctx context.Context, dsn string) (Backend, error)

// NewRootCmd builds the command tree. Every subcommand opens its own backend.
func NewRootCmd(open Opener) *cobra.Command {
	defaults := &config.Config{}
	defaults.LoadDefaults()

	var dsn string

	root := &cobra.Command{
		Use:           "wellkeeper-admin",
		Short:         "Operator tools for the Wellkeeper identity server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&dsn, "dsn", "d", defaults.DatabaseDSN, "PostgreSQL DSN")

	withBackend := func(cmd *cobra.Command, fn func(ctx context.Context, b Backend) error) error {
		ctx := cmd.Context()
		b, err := open(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer b.Close()
		return fn(ctx, b)
	}

	root.AddCommand(
		newMigrateCmd(withBackend),
		newGrantPremiumCmd(withBackend),
		newRevokePremiumCmd(withBackend),
		newGrantEntitlementCmd(withBackend),
	)
	return root
}

type runner func(cmd *cobra.Command, fn func(ctx context.Context, b Backend) error) error

func newMigrateCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, b Backend) error {
				if err := b.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func newGrantPremiumCmd(run runner) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "grant-premium <account-id>",
		Short: "Grant PREMIUM for --days, or LIFETIME when --days is omitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d *int
			if cmd.Flags().Changed("days") {
				d = &days
			}
			return run(cmd, func(ctx context.Context, b Backend) error {
				sub, err := b.GrantPremium(ctx, args[0], d)
				if err != nil {
					return err
				}
				printSubscription(cmd.OutOrStdout(), sub)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "length of the grant in days")
	return cmd
}

func newRevokePremiumCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-premium <account-id>",
		Short: "Return an account to the FREE tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, b Backend) error {
				sub, err := b.RevokePremium(ctx, args[0])
				if err != nil {
					return err
				}
				printSubscription(cmd.OutOrStdout(), sub)
				return nil
			})
		},
	}
}

func newGrantEntitlementCmd(run runner) *cobra.Command {
	var (
		days   int
		source string
	)
	cmd := &cobra.Command{
		Use:   "grant-entitlement <account-id> <feature-id>",
		Short: "Grant access to one feature, optionally for --days",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := models.EntitlementSource(strings.ToLower(source))
			if !src.Valid() {
				return fmt.Errorf("unknown source %q", source)
			}
			var d *int
			if cmd.Flags().Changed("days") {
				d = &days
			}
			return run(cmd, func(ctx context.Context, b Backend) error {
				ent, err := b.GrantEntitlement(ctx, args[0], args[1], d, src)
				if err != nil {
					return err
				}
				expires := "never"
				if ent.ExpiresAt != nil {
					expires = ent.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "feature=%s source=%s expires=%s\n", ent.FeatureID, ent.Source, expires)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "length of the grant in days")
	cmd.Flags().StringVar(&source, "source", string(models.SourceAdmin), "grant source: admin, promo or purchase")
	return cmd
}

func printSubscription(w io.Writer, sub *models.Subscription) {
	end := "none"
	if sub.CurrentPeriodEnd != nil {
		end = sub.CurrentPeriodEnd.UTC().Format("2006-01-02T15:04:05Z")
	}
	fmt.Fprintf(w, "account=%s tier=%s period_end=%s\n", sub.AccountID, sub.Tier, end)
}
