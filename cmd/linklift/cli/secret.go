package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the token signing secret",
		Long: `Manage the JWT signing secret stored in the credential store.

Rotating the secret invalidates all issued access tokens immediately;
sessions recover through the refresh flow on their next refresh.`,
	}

	cmd.AddCommand(newSecretSetCmd())

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the token signing secret",
		Long:  "Prompt for a new signing secret and store it. The secret is read from the terminal without echo.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSecretSet()
		},
	}
	return cmd
}

func runSecretSet() error {
	fmt.Fprint(os.Stderr, "New signing secret: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}

	secret := strings.TrimSpace(string(raw))
	if len(secret) < 32 {
		return fmt.Errorf("secret must be at least 32 characters")
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.SetSetting(cmdCtx(), jwtSecretSetting, secret); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}

	fmt.Println("Signing secret updated. Restart the server to pick it up.")
	return nil
}
