package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/upb/authgate/cmd/authgate/cmd/users"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/internal/observability"
	"go.uber.org/zap"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "authgate",
	Short: "Username/password login that issues signed bearer tokens",
	Long: `authgate authenticates users by username or email and password, issues
short-lived HS256 tokens and authorizes requests by role.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.New(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Observability.LogLevel = level
		}
		logger, err = observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (env: LOG_LEVEL)")
	rootCmd.AddCommand(users.UsersCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
