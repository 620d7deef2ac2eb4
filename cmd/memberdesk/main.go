package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"memberdesk/cmd/internal/app"
	"memberdesk/cmd/internal/claimapi"
	"memberdesk/cmd/internal/linktoken"
	"memberdesk/cmd/internal/migrations"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "memberdesk",
		Short:         "Single-use claim links for member documents and declarations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newIssueCommand())
	cmd.AddCommand(newStaffTokenCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Serve(cmd.Context(), app.LoadConfig(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations before serving")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Manage the PostgreSQL schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			cfg := app.LoadConfig()
			if cfg.DatabaseURL == "" {
				return errors.New("migrate requires MEMBERDESK_DATABASE_URL")
			}
			ctx := cmd.Context()
			pool, err := app.NewDBPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			switch direction {
			case "down":
				return migrations.Down(ctx, pool)
			case "status":
				return migrations.Status(ctx, pool)
			case "version":
				v, err := migrations.Version(ctx, pool)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			default:
				return migrations.Up(ctx, pool)
			}
		},
	}
	return cmd
}

func newIssueCommand() *cobra.Command {
	var (
		memberID string
		purpose  string
		actorID  string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a claim link for a member and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, ok := linktoken.ParsePurpose(purpose)
			if !ok {
				return fmt.Errorf("unknown purpose %q (want %s or %s)", purpose,
					linktoken.PurposeDocumentUpload, linktoken.PurposeDeclarationSignature)
			}

			cfg := app.LoadConfig()
			if cfg.DatabaseURL == "" {
				return errors.New("issue requires MEMBERDESK_DATABASE_URL")
			}
			if err := app.ValidateSecurityConfig(cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, app.NewLogger(cfg.LogLevel, cfg.LogFormat))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			out, err := a.Issuer().Issue(ctx, linktoken.IssueInput{
				MemberID: memberID,
				Purpose:  p,
				ActorID:  actorID,
				Now:      time.Now().UTC(),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"token_id":   out.TokenID,
				"claim_url":  out.ClaimURL,
				"expires_at": out.ExpiresAt,
				"dispatched": out.Dispatched,
			})
		},
	}

	cmd.Flags().StringVar(&memberID, "member", "", "Member ID")
	cmd.Flags().StringVar(&purpose, "purpose", "", "document_upload or declaration_signature")
	cmd.Flags().StringVar(&actorID, "actor", "cli", "Actor recorded as issuer")
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("purpose")
	return cmd
}

func newStaffTokenCommand() *cobra.Command {
	var (
		actorID string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "staff-token",
		Short: "Mint a staff bearer token for the /staff API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.LoadConfig()
			auth, err := claimapi.NewStaffAuth(cfg.StaffJWTSecret, cfg.StaffJWTIssuer, cfg.StaffJWTAudience)
			if err != nil {
				return err
			}
			tok, err := auth.Sign(actorID, role, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "Staff member ID embedded as the token subject")
	cmd.Flags().StringVar(&role, "role", "staff", "staff or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}
