package equipment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"sort"
	"strconv"

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

// NewEquipmentCmd creates the equipment command
func NewEquipmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "equipment",
		Short: "Manage equipment discovery and information",
		Long:  "Commands to discover, list, and inspect the equipment of monitored sites.",
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newInfoCmd())

	return cmd
}

// newListCmd creates the list command
func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all discovered equipment",
		Long:  "Display the equipment discovered for all registered sites.",
		RunE:  runListEquipment,
	}

	cmd.Flags().StringP("site", "s", "", "Filter by site id")

	return cmd
}

// newRefreshCmd creates the refresh command
func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh equipment discovery",
		Long:  "Rediscover equipment for all registered sites by fetching the logical layout.",
		RunE:  runRefreshEquipment,
	}

	cmd.Flags().StringP("password", "p", "", "Portal password (prompted when omitted)")

	return cmd
}

// newInfoCmd creates the info command
func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [equipment-id]",
		Short: "Show detailed equipment information",
		Long:  "Display the stored attributes of a specific piece of equipment.",
		Args:  cobra.ExactArgs(1),
		RunE:  runEquipmentInfo,
	}
}

// runListEquipment handles the list command
func runListEquipment(cmd *cobra.Command, args []string) error {
	siteFilter, _ := cmd.Flags().GetString("site")

	var equipment []storage.EquipmentInfo
	var err error

	if siteFilter != "" {
		equipment, err = storageManager.GetEquipmentForSite(siteFilter)
	} else {
		equipment, err = storageManager.GetAllEquipment()
	}

	if err != nil {
		return fmt.Errorf("failed to get equipment: %v", err)
	}

	if len(equipment) == 0 {
		if siteFilter != "" {
			fmt.Printf("No equipment found for site: %s\n", siteFilter)
		} else {
			fmt.Println("No equipment found.")
			fmt.Println("Use 'solarweb-terminal equipment refresh' to discover equipment.")
		}
		return nil
	}

	fmt.Printf("Found %d equipment:\n\n", len(equipment))

	for i, eq := range equipment {
		name := eq.DisplayName
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%d. %s (id %d)\n", i+1, name, eq.EquipmentID)
		fmt.Printf("   Site: %s\n", eq.SiteID)
		if eq.Type != "" {
			fmt.Printf("   Type: %s\n", eq.Type)
		}
		fmt.Println()
	}

	registry, err := storageManager.GetEquipmentRegistry()
	if err == nil && !registry.LastUpdated.IsZero() {
		fmt.Printf("Last updated: %s\n", registry.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	return nil
}

// runRefreshEquipment handles the refresh command
func runRefreshEquipment(cmd *cobra.Command, args []string) error {
	fmt.Println("Refreshing equipment discovery...")

	accounts, err := storageManager.ListAccounts()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %v", err)
	}

	if len(accounts) == 0 {
		fmt.Println("No registered accounts found.")
		fmt.Println("Use 'solarweb-terminal auth add' to add accounts first.")
		return nil
	}

	totalEquipment := 0
	successfulSites := 0

	for _, account := range accounts {
		fmt.Printf("Discovering equipment for site %s (%s)...\n", account.SiteID, account.Username)

		equipment, err := discoverEquipmentForSite(cmd, &account)
		if err != nil {
			fmt.Printf("  ✗ Failed to discover equipment: %v\n", err)
			continue
		}

		if err := storageManager.UpdateEquipmentForSite(account.SiteID, equipment); err != nil {
			fmt.Printf("  ✗ Failed to save equipment: %v\n", err)
			continue
		}

		fmt.Printf("  ✓ Found %d equipment\n", len(equipment))
		totalEquipment += len(equipment)
		successfulSites++
	}

	fmt.Printf("\n✓ Discovery complete!\n")
	fmt.Printf("Successfully processed %d/%d sites\n", successfulSites, len(accounts))
	fmt.Printf("Total equipment discovered: %d\n", totalEquipment)

	return nil
}

// runEquipmentInfo handles the info command
func runEquipmentInfo(cmd *cobra.Command, args []string) error {
	equipmentID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid equipment id: %s", args[0])
	}

	equipment, err := storageManager.GetAllEquipment()
	if err != nil {
		return fmt.Errorf("failed to get equipment: %v", err)
	}

	var target *storage.EquipmentInfo
	for _, eq := range equipment {
		if eq.EquipmentID == equipmentID {
			target = &eq
			break
		}
	}

	if target == nil {
		return fmt.Errorf("equipment not found: %d", equipmentID)
	}

	fmt.Printf("Equipment Information:\n")
	fmt.Printf("=====================\n\n")
	fmt.Printf("Name: %s\n", target.DisplayName)
	fmt.Printf("Equipment ID: %d\n", target.EquipmentID)
	fmt.Printf("Site: %s\n", target.SiteID)
	if target.Type != "" {
		fmt.Printf("Type: %s\n", target.Type)
	}

	if len(target.Attributes) > 0 {
		fmt.Printf("\nAttributes:\n")

		keys := make([]string, 0, len(target.Attributes))
		for key := range target.Attributes {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			fmt.Printf("  %s: %v\n", key, target.Attributes[key])
		}
	}

	return nil
}

// discoverEquipmentForSite fetches and flattens the logical layout of one site
func discoverEquipmentForSite(cmd *cobra.Command, account *storage.Account) ([]storage.EquipmentInfo, error) {
	password, err := resolvePassword(cmd, account.Username)
	if err != nil {
		return nil, err
	}

	client := solaredge.NewClient(account.Username, password, account.SiteID, newPortalHTTPClient(), solaredge.DefaultTimeout)

	equipment, err := client.GetEquipment(context.Background())
	if err != nil {
		return nil, err
	}

	infos := make([]storage.EquipmentInfo, 0, len(equipment))
	for id, attributes := range equipment {
		infos = append(infos, storage.NewEquipmentInfo(account.SiteID, id, attributes))
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].EquipmentID < infos[j].EquipmentID
	})

	return infos, nil
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
