package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"paygate/internal/domain"
	"paygate/internal/service"
	"paygate/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: withApp(func(_ context.Context, cmd *cobra.Command, a *app, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", a.cfg.Database.Path)
			return nil
		}),
	}
}

func tierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tier",
		Short: "Inspect or override entitlement tiers",
	}

	var reason string
	set := &cobra.Command{
		Use:   "set <external-id> <tier>",
		Short: "Grant or revoke a tier outside of a payment",
		Long: `Override the entitlement tier of one account.

Every override requires a reason, which is written to the service log.

Examples:
  paygatectl tier set tg:5849400652 lifetime --reason "refund reissued"
  paygatectl tier set chat:123 none --reason chargeback`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			tier, err := domain.ParseTier(args[1])
			if err != nil {
				return err
			}
			users := service.NewUserService(a.store, nil, a.logger)
			user, err := users.OverrideTier(ctx, args[0], tier, reason)
			if err != nil {
				return fmt.Errorf("override tier: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.ExternalID, user.Tier)
			return nil
		}),
	}
	set.Flags().StringVar(&reason, "reason", "", "why the tier is being overridden (required)")
	_ = set.MarkFlagRequired("reason")

	get := &cobra.Command{
		Use:   "get <external-id>",
		Short: "Show the tier and onboarding state of an account",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			user, err := a.store.Users().GetByExternalID(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\ttier=%s\tonboarding_completed=%t\n", user.ExternalID, user.Tier, user.OnboardingCompleted)
			return nil
		}),
	}

	cmd.AddCommand(set, get)
	return cmd
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage payment sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Mark pending sessions past their expiry as expired",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			broker := service.NewPaymentBroker(a.store, nil, nil, nil, service.BrokerConfig{Logger: a.logger})
			n, err := broker.ExpireStale(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d sessions\n", n)
			return nil
		}),
	})
	return cmd
}

func rateLimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage rate limit counters",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete counters whose window has elapsed",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			limiter := service.NewRateLimiter(a.store, a.cfg.RateLimit.MaxAttempts, a.cfg.RateLimit.Window, nil)
			n, err := limiter.Purge(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d counters\n", n)
			return nil
		}),
	})
	return cmd
}

func profilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect archived onboarding profiles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ls [prefix]",
		Short: "List archived profile documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if a.cfg.Storage.Bucket == "" {
				return fmt.Errorf("storage bucket is not configured")
			}
			archive, err := s3Archive(ctx, a)
			if err != nil {
				return err
			}
			prefix := "profiles"
			if len(args) == 1 {
				prefix = args[0]
			}
			objects, err := archive.ListObjects(ctx, prefix)
			if err != nil {
				return err
			}
			for _, obj := range objects {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", obj.Key, obj.Size)
			}
			return nil
		}),
	})
	return cmd
}

func s3Archive(ctx context.Context, a *app) (*storage.S3Archive, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(a.cfg.Storage.Region),
	}
	if a.cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(a.cfg.AWS.Profile))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if a.cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	return storage.NewS3Archive(client, a.cfg.Storage.Bucket, a.cfg.Storage.KeyPrefix)
}
