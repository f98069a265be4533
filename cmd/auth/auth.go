package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/term"

	"solarweb-terminal/pkg/solaredge"
	"solarweb-terminal/pkg/storage"
)

var storageManager *storage.StorageManager

// SetStorageManager sets the storage manager instance
func SetStorageManager(sm *storage.StorageManager) {
	storageManager = sm
}

// NewAuthCmd creates the auth command
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage portal account authentication",
		Long: `Commands to add, remove, list, and test SolarEdge monitoring portal accounts.

Passwords are never stored. Provide them per invocation with --password,
the SOLARWEB_PASSWORD environment variable, or the interactive prompt.`,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newTestCmd())

	return cmd
}

// newListCmd creates the list command
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all registered accounts",
		Long:  "Display all registered portal accounts and their sites.",
		RunE:  runListAccounts,
	}
}

// newAddCmd creates the add command
func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [site-id] [username]",
		Short: "Register a portal account for a site",
		Long: `Register a SolarEdge monitoring portal account for one site and verify
it by logging in once.

Example:
  solarweb-terminal auth add 1234567 user@example.com`,
		Args: cobra.ExactArgs(2),
		RunE: runAddAccount,
	}

	cmd.Flags().StringP("password", "p", "", "Portal password (prompted when omitted)")

	return cmd
}

// newRemoveCmd creates the remove command
func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [site-id]",
		Short: "Remove a registered account",
		Long:  "Remove a registered portal account and its stored equipment snapshots.",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemoveAccount,
	}
}

// newTestCmd creates the test command
func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test [site-id]",
		Short: "Test portal login for a site",
		Long:  "Log in to the monitoring portal with the registered account and report the result.",
		Args:  cobra.ExactArgs(1),
		RunE:  runTestAccount,
	}

	cmd.Flags().StringP("password", "p", "", "Portal password (prompted when omitted)")

	return cmd
}

// runListAccounts handles the list command
func runListAccounts(cmd *cobra.Command, args []string) error {
	accounts, err := storageManager.ListAccounts()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %v", err)
	}

	if len(accounts) == 0 {
		fmt.Println("No registered accounts found.")
		fmt.Println("Use 'solarweb-terminal auth add [site-id] [username]' to add one.")
		return nil
	}

	fmt.Printf("Found %d registered account(s):\n\n", len(accounts))

	for i, account := range accounts {
		fmt.Printf("Account %d: %s (site %s)\n", i+1, account.Username, account.SiteID)
		fmt.Printf("  Added: %s\n", account.AddedAt.Format("2006-01-02 15:04:05"))
		if !account.LastChecked.IsZero() {
			fmt.Printf("  Last checked: %s\n", account.LastChecked.Format("2006-01-02 15:04:05"))
		}

		equipment, err := storageManager.GetEquipmentForSite(account.SiteID)
		if err == nil && len(equipment) > 0 {
			fmt.Printf("  Equipment: %d known\n", len(equipment))
		}
		fmt.Println()
	}

	return nil
}

// runAddAccount handles the add command
func runAddAccount(cmd *cobra.Command, args []string) error {
	siteID := args[0]
	username := args[1]

	// Validate username format, the portal uses email addresses
	if !strings.Contains(username, "@") || !strings.Contains(username, ".") {
		return fmt.Errorf("invalid username format: %s", username)
	}

	// Check if account already exists
	existingAccount, err := storageManager.GetAccount(siteID)
	if err != nil {
		return fmt.Errorf("failed to check existing account: %v", err)
	}

	if existingAccount != nil {
		fmt.Printf("Site %s is already registered to %s.\n", siteID, existingAccount.Username)
		fmt.Println("Do you want to replace it? (y/N): ")

		var response string
		fmt.Scanln(&response)
		if strings.ToLower(response) != "y" && strings.ToLower(response) != "yes" {
			return nil
		}
	}

	password, err := resolvePassword(cmd, username)
	if err != nil {
		return err
	}

	fmt.Printf("Verifying login for %s (site %s)...\n", username, siteID)

	client := solaredge.NewClient(username, password, siteID, newPortalHTTPClient(), solaredge.DefaultTimeout)
	if err := client.Login(context.Background()); err != nil {
		return fmt.Errorf("login verification failed: %v", err)
	}

	account := storage.Account{
		SiteID:      siteID,
		Username:    username,
		LastChecked: time.Now(),
	}
	if err := storageManager.SaveAccount(account); err != nil {
		return fmt.Errorf("failed to save account: %v", err)
	}

	fmt.Printf("\n✓ Successfully registered %s for site %s\n", username, siteID)

	return nil
}

// runRemoveAccount handles the remove command
func runRemoveAccount(cmd *cobra.Command, args []string) error {
	siteID := args[0]

	existingAccount, err := storageManager.GetAccount(siteID)
	if err != nil {
		return fmt.Errorf("failed to check account: %v", err)
	}

	if existingAccount == nil {
		return fmt.Errorf("no account registered for site %s", siteID)
	}

	fmt.Printf("Are you sure you want to remove %s (site %s)? (y/N):\n", existingAccount.Username, siteID)
	var response string
	fmt.Scanln(&response)
	if strings.ToLower(response) != "y" && strings.ToLower(response) != "yes" {
		fmt.Println("Operation cancelled.")
		return nil
	}

	if err := storageManager.RemoveAccount(siteID); err != nil {
		return fmt.Errorf("failed to remove account: %v", err)
	}

	fmt.Printf("✓ Successfully removed account for site %s\n", siteID)
	return nil
}

// runTestAccount handles the test command
func runTestAccount(cmd *cobra.Command, args []string) error {
	siteID := args[0]

	account, err := storageManager.GetAccount(siteID)
	if err != nil {
		return fmt.Errorf("failed to get account: %v", err)
	}

	if account == nil {
		fmt.Printf("✗ No account registered for site %s\n", siteID)
		return nil
	}

	password, err := resolvePassword(cmd, account.Username)
	if err != nil {
		return err
	}

	fmt.Printf("Testing login for %s (site %s)...\n", account.Username, siteID)

	client := solaredge.NewClient(account.Username, password, siteID, newPortalHTTPClient(), solaredge.DefaultTimeout)
	if err := client.Login(context.Background()); err != nil {
		fmt.Printf("✗ Login failed: %v\n", err)
		return nil
	}

	account.LastChecked = time.Now()
	if err := storageManager.SaveAccount(*account); err != nil {
		return fmt.Errorf("failed to update account: %v", err)
	}

	fmt.Printf("✓ Login succeeded for %s (site %s)\n", account.Username, siteID)

	return nil
}

// resolvePassword takes the password from the flag, the environment, or a
// hidden terminal prompt, in that order.
func resolvePassword(cmd *cobra.Command, username string) (string, error) {
	if password, _ := cmd.Flags().GetString("password"); password != "" {
		return password, nil
	}

	if password := os.Getenv("SOLARWEB_PASSWORD"); password != "" {
		return password, nil
	}

	fmt.Printf("Password for %s: ", username)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %v", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty password")
	}

	return string(raw), nil
}

// newPortalHTTPClient creates the shared HTTP client with a cookie jar for
// the portal session cookies
func newPortalHTTPClient() *http.Client {
	jar, err := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})
	if err != nil {
		return nil
	}

	return &http.Client{
		Jar: jar,
	}
}
