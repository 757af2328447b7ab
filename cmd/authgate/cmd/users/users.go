package users

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/internal/observability"
	"github.com/upb/authgate/repositories/postgres"
	usersvc "github.com/upb/authgate/services/users"
)

// UsersCmd is the parent command for account management
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage local accounts",
	Long:  `Commands for managing accounts directly in the database.`,
}

func init() {
	createCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the user")
	createCmd.Flags().StringVar(&usernameFlag, "username", "", "Username of the user")
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "Password for the user (use --stdin to avoid shell history)")
	createCmd.Flags().StringSliceVar(&rolesInput, "role", []string{}, "Role(s) to assign (default ROLE_USER)")
	createCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of --password flag")

	rolesCmd.Flags().StringSliceVar(&rolesInput, "role", []string{}, "Role(s) the user should hold (required)")

	UsersCmd.AddCommand(createCmd)
	UsersCmd.AddCommand(rolesCmd)
	UsersCmd.AddCommand(disableCmd)
	UsersCmd.AddCommand(enableCmd)
}

// openService connects to the configured database. The caller must call the
// returned close function.
func openService(ctx context.Context) (*usersvc.Service, func(), error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Auth.UserStore != config.UserStorePostgres {
		return nil, nil, fmt.Errorf("user commands need USER_STORE=%s", config.UserStorePostgres)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, err
	}

	factory, err := postgres.NewRepositoryFactory(cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return nil, nil, err
	}

	svc := usersvc.NewService(factory.NewRepositories(), logger, cfg.Auth.BcryptCost)
	closeFn := func() {
		_ = factory.Close()
		_ = logger.Sync()
	}
	return svc, closeFn, nil
}
