package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/linklift/linklift/internal/model"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long:  "List user accounts, toggle their active flag, and change roles. Accounts are created automatically on first federated login.",
	}

	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserEnableCmd())
	cmd.AddCommand(newUserDisableCmd())
	cmd.AddCommand(newUserRoleCmd())

	return cmd
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	users, err := st.ListUsers(cmdCtx())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Println("No users. Accounts are created on first federated login.")
		return nil
	}

	fmt.Printf("%-6s %-32s %-8s %-8s %-24s\n", "ID", "EMAIL", "ROLE", "ACTIVE", "LAST LOGIN")
	fmt.Printf("%-6s %-32s %-8s %-8s %-24s\n", "--", "-----", "----", "------", "----------")
	for _, u := range users {
		active := "yes"
		if !u.IsActive {
			active = "no"
		}
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.Format(time.RFC3339)
		}
		fmt.Printf("%-6d %-32s %-8s %-8s %-24s\n", u.ID, u.Email, u.Role, active, lastLogin)
	}

	return nil
}

// ---------- user enable / disable ----------

func newUserEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Re-enable a disabled user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserSetActive(args[0], true)
		},
	}
}

func newUserDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable a user account",
		Long:  "Disable a user account. Its API keys and sessions stop authenticating, but the account and keys are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserSetActive(args[0], false)
		},
	}
}

func runUserSetActive(idArg string, active bool) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", idArg)
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.SetUserActive(cmdCtx(), id, active); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	state := "enabled"
	if !active {
		state = "disabled"
	}
	fmt.Printf("User %d %s\n", id, state)
	return nil
}

// ---------- user role ----------

func newUserRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role <id> <USER|ADMIN>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserRole(args[0], args[1])
		},
	}
	return cmd
}

func runUserRole(idArg, roleArg string) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", idArg)
	}

	role := model.Role(roleArg)
	if !role.Valid() {
		return fmt.Errorf("invalid role %q (use USER or ADMIN)", roleArg)
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.SetUserRole(cmdCtx(), id, role); err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	fmt.Printf("User %d role set to %s\n", id, role)
	return nil
}
