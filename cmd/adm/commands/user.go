package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"civicapp/internal/middleware"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	"civicapp/internal/services"
	contextutils "civicapp/internal/utils"

	"github.com/spf13/cobra"
)

// UserCommands returns the user management commands
func UserCommands(userService services.UserServiceInterface, verifier *middleware.TokenVerifier, logger *observability.Logger) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands for the civic reporting service.

Available commands:
  list     - List all users
  create   - Register a user
  promote  - Grant or revoke administrator access
  token    - Issue a bearer token for a user`,
	}

	userCmd.AddCommand(listCmd(userService, logger))
	userCmd.AddCommand(createCmd(userService, logger))
	userCmd.AddCommand(promoteCmd(userService, logger))
	userCmd.AddCommand(tokenCmd(userService, verifier, logger))

	return userCmd
}

func listCmd(userService services.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			users, err := userService.ListUsers(ctx)
			if err != nil {
				logger.Error(ctx, "Failed to get users", err)
				return contextutils.WrapError(err, "failed to get users")
			}

			out := cmd.OutOrStdout()
			if len(users) == 0 {
				fmt.Fprintln(out, "No users found")
				return nil
			}

			fmt.Fprintf(out, "%-36s %-20s %-30s %-15s %-6s %-10s\n", "ID", "Name", "Email", "Mobile", "Admin", "Created")
			fmt.Fprintln(out, strings.Repeat("-", 122))
			for _, user := range users {
				fmt.Fprintf(out, "%-36s %-20s %-30s %-15s %-6s %-10s\n",
					user.ID,
					user.Name,
					user.Email,
					orNA(user.Mobile),
					yesNo(user.IsAdmin),
					user.CreatedAt.Format("2006-01-02"),
				)
			}

			logger.Info(ctx, "Listed users", map[string]interface{}{"total": len(users)})
			return nil
		},
	}
}

func createCmd(userService services.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	var name, email, mobile string
	var admin bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			user, err := userService.CreateUser(ctx, name, email, mobile, admin)
			if err != nil {
				logger.Error(ctx, "Failed to create user", err, map[string]interface{}{"email": email})
				return contextutils.WrapErrorf(err, "failed to create user '%s'", email)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s), admin: %s\n", user.ID, user.Email, yesNo(user.IsAdmin))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "E-mail address")
	cmd.Flags().StringVar(&mobile, "mobile", "", "Mobile number")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant administrator access")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func promoteCmd(userService services.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "promote <user id or email>",
		Short: "Grant or revoke administrator access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			user, err := lookupUser(ctx, userService, args[0])
			if err != nil {
				return err
			}

			if err := userService.SetAdmin(ctx, user.ID, !revoke); err != nil {
				logger.Error(ctx, "Failed to update administrator flag", err, map[string]interface{}{"user_id": user.ID})
				return contextutils.WrapErrorf(err, "failed to update user '%s'", user.Email)
			}

			action := "granted"
			if revoke {
				action = "revoked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Administrator access %s for %s (%s)\n", action, user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&revoke, "revoke", false, "Revoke instead of grant")
	return cmd
}

func tokenCmd(userService services.UserServiceInterface, verifier *middleware.TokenVerifier, logger *observability.Logger) *cobra.Command {
	var ttl time.Duration
	var role string

	cmd := &cobra.Command{
		Use:   "token <user id or email>",
		Short: "Issue a bearer token for a user",
		Long: `Issue a signed bearer token for a registered user. Intended for local
development and smoke tests; production tokens come from the identity provider.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			user, err := lookupUser(ctx, userService, args[0])
			if err != nil {
				return err
			}

			token, err := verifier.Issue(user.ID, user.Name, role, ttl)
			if err != nil {
				return contextutils.WrapError(err, "failed to issue token")
			}

			logger.Info(ctx, "Issued token", map[string]interface{}{"user_id": user.ID, "ttl": ttl.String()})
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&role, "role", "", "Role claim to embed")
	return cmd
}

func lookupUser(ctx context.Context, userService services.UserServiceInterface, ref string) (*models.User, error) {
	if strings.Contains(ref, "@") {
		return userService.GetUserByEmail(ctx, ref)
	}
	return userService.GetUserByID(ctx, ref)
}
