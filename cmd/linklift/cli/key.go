package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/linklift/linklift/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Issue, list, and revoke API keys used to authenticate against the linklift API.",
	}

	cmd.AddCommand(newKeyIssueCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key issue ----------

func newKeyIssueCmd() *cobra.Command {
	var (
		userID int64
		label  string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new API key for a user",
		Long:  "Generate a new API key bound to a user account. The raw key is shown once and cannot be retrieved again.",
		Example: `  linklift key issue --user 1 --label "CI pipeline"
  linklift key issue --user 1 --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyIssue(userID, label, ttl)
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "ID of the user the key belongs to (required)")
	cmd.Flags().StringVar(&label, "label", "", "Human-readable label for the key")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Key lifetime (0 means no expiry)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyIssue(userID int64, label string, ttl time.Duration) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := cmdCtx()

	user, err := st.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("user %d not found", userID)
	}

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}

	keys := service.NewAPIKeyService(st, nil)
	rawKey, key, err := keys.Issue(ctx, userID, label, expiresAt)
	if err != nil {
		return fmt.Errorf("issue api key: %w", err)
	}

	fmt.Println("API Key issued:")
	fmt.Println()
	fmt.Printf("  Key:   %s\n", rawKey)
	fmt.Printf("  ID:    %s\n", key.KeyID)
	fmt.Printf("  User:  %s\n", user.Email)
	if label != "" {
		fmt.Printf("  Label: %s\n", label)
	}
	if expiresAt != nil {
		fmt.Printf("  Expires: %s\n", expiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		jsonOutput bool
		userID     int64
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput, userID)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().Int64Var(&userID, "user", 0, "Only show keys for this user ID")

	return cmd
}

func runKeyList(jsonOutput bool, userID int64) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := cmdCtx()

	keys, err := st.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}
	if userID != 0 {
		keys, err = st.ListAPIKeysByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("list api keys: %w", err)
		}
	}

	type keyRow struct {
		KeyID   string `json:"key_id"`
		UserID  int64  `json:"user_id"`
		Label   string `json:"label"`
		Expires string `json:"expires,omitempty"`
	}

	rows := make([]keyRow, len(keys))
	for i, k := range keys {
		row := keyRow{
			KeyID:  k.KeyID,
			UserID: k.UserID,
			Label:  k.Label,
		}
		if k.ExpiresAt != nil {
			row.Expires = k.ExpiresAt.Format(time.RFC3339)
		}
		rows[i] = row
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No API keys. Use 'linklift key issue' to create one.")
		return nil
	}

	fmt.Printf("%-16s %-8s %-24s %-24s\n", "KEY ID", "USER", "LABEL", "EXPIRES")
	fmt.Printf("%-16s %-8s %-24s %-24s\n", "------", "----", "-----", "-------")
	for _, k := range rows {
		expires := k.Expires
		if expires == "" {
			expires = "never"
		}
		fmt.Printf("%-16s %-8d %-24s %-24s\n", k.KeyID, k.UserID, k.Label, expires)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key by its public key ID",
		Long:  "Delete an API key, preventing any further authenticated requests using that key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(keyID string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	keys := service.NewAPIKeyService(st, nil)
	if err := keys.Revoke(cmdCtx(), keyID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %q\n", keyID)
	return nil
}
