package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/markplatform/gateway/cmd/markgw/internal/auth"
	"github.com/markplatform/gateway/cmd/markgw/internal/config"
)

var (
	tokenUserID       string
	tokenRole         string
	tokenAssignmentID int
	tokenGroupID      string
	tokenCallback     string
	tokenTTL          time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a session token for local development",
	Long: `Signs an HS256 session token with JWT_SECRET. Refuses to run when NODE_ENV
is production. The token is printed to stdout.`,
	// Only the secret and execution mode are needed, so the full
	// configuration is decoded without validation.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := readConfigFile(cmd); err != nil {
			return err
		}
		var err error
		cfg, err = config.Decode(viper.GetViper())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.IsProduction() {
			return errors.New("refusing to mint tokens when NODE_ENV is production")
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("JWT_SECRET is required")
		}

		role, err := auth.ParseRole(tokenRole)
		if err != nil {
			return err
		}
		session := auth.UserSession{
			UserID:       tokenUserID,
			Role:         role,
			AssignmentID: tokenAssignmentID,
			GroupID:      tokenGroupID,
		}
		switch tokenCallback {
		case "":
		case "true", "false":
			v := tokenCallback == "true"
			session.GradingCallbackRequired = &v
		default:
			return fmt.Errorf("--grading-callback must be true or false, got %q", tokenCallback)
		}

		raw, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret), session, tokenTTL, time.Now())
		if err != nil {
			return err
		}

		pterm.Warning.WithWriter(cmd.ErrOrStderr()).Printf("Development token for %s (%s), expires in %s\n", session.UserID, session.Role, tokenTTL)
		fmt.Fprintln(cmd.OutOrStdout(), raw)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", auth.DevelopmentUserID, "userId claim")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleAuthor), "role claim (learner or author)")
	tokenCmd.Flags().IntVar(&tokenAssignmentID, "assignment-id", auth.DevelopmentAssignmentID, "assignmentId claim")
	tokenCmd.Flags().StringVar(&tokenGroupID, "group-id", auth.DevelopmentGroupID, "groupId claim")
	tokenCmd.Flags().StringVar(&tokenCallback, "grading-callback", "", "gradingCallbackRequired claim (true or false); omitted when empty")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
