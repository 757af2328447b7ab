package users

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/upb/authgate/models"
	usersvc "github.com/upb/authgate/services/users"
)

var (
	emailFlag    string
	usernameFlag string
	passwordFlag string
	rolesInput   []string
	stdinFlag    bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildCreateRequest(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}

		svc, closeFn, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		user, err := svc.Create(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) with roles %s\n",
			user.Username, user.ID, strings.Join(user.Roles.Strings(), ","))
		return nil
	},
}

var rolesCmd = &cobra.Command{
	Use:   "roles <username>",
	Short: "Replace the roles of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roles, err := parseRoles(rolesInput)
		if err != nil {
			return err
		}
		if len(roles) == 0 {
			return fmt.Errorf("at least one role must be specified using --role")
		}

		svc, closeFn, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		if err := svc.SetRoles(cmd.Context(), args[0], roles...); err != nil {
			return fmt.Errorf("failed to update roles: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated roles of %s\n", args[0])
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <username>",
	Short: "Block an account from logging in",
	Args:  cobra.ExactArgs(1),
	RunE:  setEnabled(false),
}

var enableCmd = &cobra.Command{
	Use:   "enable <username>",
	Short: "Allow a disabled account to log in again",
	Args:  cobra.ExactArgs(1),
	RunE:  setEnabled(true),
}

func setEnabled(enabled bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		if err := svc.SetEnabled(cmd.Context(), args[0], enabled); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%t\n", args[0], enabled)
		return nil
	}
}

// buildCreateRequest checks the flags and reads the password
func buildCreateRequest(stdin io.Reader, prompt io.Writer) (usersvc.CreateUserRequest, error) {
	var req usersvc.CreateUserRequest

	if usernameFlag == "" {
		return req, fmt.Errorf("--username flag is required")
	}
	if emailFlag == "" {
		return req, fmt.Errorf("--email flag is required")
	}

	password := passwordFlag
	if stdinFlag {
		fmt.Fprint(prompt, "Enter password: ")
		scanner := bufio.NewScanner(stdin)
		if scanner.Scan() {
			password = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			return req, fmt.Errorf("failed to read password: %w", err)
		}
	}
	if password == "" {
		return req, fmt.Errorf("password is required (use --password or --stdin)")
	}

	if _, err := parseRoles(rolesInput); err != nil {
		return req, err
	}

	return usersvc.CreateUserRequest{
		Username: usernameFlag,
		Email:    emailFlag,
		Password: password,
		Roles:    rolesInput,
	}, nil
}

func parseRoles(names []string) ([]models.Role, error) {
	set, unknown := models.ParseRoleSet(names)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown role(s): %s", strings.Join(unknown, ", "))
	}
	roles := make([]models.Role, 0, len(set))
	for r := range set {
		roles = append(roles, r)
	}
	return roles, nil
}
