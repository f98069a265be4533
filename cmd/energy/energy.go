package energy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/term"

	"solarweb-terminal/pkg/core"
	"solarweb-terminal/pkg/solaredge"
	"solarweb-terminal/pkg/storage"
)

var storageManager *storage.StorageManager

// SetStorageManager sets the storage manager instance
func SetStorageManager(sm *storage.StorageManager) {
	storageManager = sm
}

// NewEnergyCmd creates the energy command
func NewEnergyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "energy",
		Short: "Fetch energy production readings",
		Long: `Commands to fetch per-equipment energy production readings from the
monitoring portal. Readings are aggregated by 15 minutes, in Wh.`,
	}

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// newFetchCmd creates the fetch command
func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [site-id]",
		Short: "Fetch energy readings once",
		Long: `Fetch the energy readings of the requested window and print them in
chronological order.

Example:
  solarweb-terminal energy fetch 1234567 --time-unit week`,
		Args: cobra.ExactArgs(1),
		RunE: runFetchEnergy,
	}

	cmd.Flags().StringP("time-unit", "t", "week", "Reporting window (day, week)")
	cmd.Flags().StringP("password", "p", "", "Portal password (prompted when omitted)")

	return cmd
}

// newWatchCmd creates the watch command
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [site-id]",
		Short: "Poll energy readings periodically",
		Long: `Fetch energy readings on an interval until interrupted. The portal
session is reused between polls while the SSO cookie stays valid.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatchEnergy,
	}

	cmd.Flags().StringP("time-unit", "t", "day", "Reporting window (day, week)")
	cmd.Flags().DurationP("interval", "i", 15*time.Minute, "Poll interval")
	cmd.Flags().StringP("password", "p", "", "Portal password (prompted when omitted)")

	return cmd
}

// runFetchEnergy handles the fetch command
func runFetchEnergy(cmd *cobra.Command, args []string) error {
	client, unit, err := setupClient(cmd, args[0])
	if err != nil {
		return err
	}

	return fetchAndPrint(context.Background(), client, args[0], unit)
}

// runWatchEnergy handles the watch command
func runWatchEnergy(cmd *cobra.Command, args []string) error {
	siteID := args[0]

	client, unit, err := setupClient(cmd, siteID)
	if err != nil {
		return err
	}

	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		return fmt.Errorf("invalid interval: %v", interval)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Polling site %s every %v. Press Ctrl+C to stop.\n\n", siteID, interval)

	if err := fetchAndPrint(ctx, client, siteID, unit); err != nil {
		core.Logger.Error().Err(err).Msg("Fetch failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped.")
			return nil
		case <-ticker.C:
			if err := fetchAndPrint(ctx, client, siteID, unit); err != nil {
				core.Logger.Error().Err(err).Msg("Fetch failed")
			}
		}
	}
}

// setupClient resolves the account, password and time unit for a site and
// builds the portal client.
func setupClient(cmd *cobra.Command, siteID string) (*solaredge.Client, solaredge.TimeUnit, error) {
	unitName, _ := cmd.Flags().GetString("time-unit")
	unit, err := solaredge.ParseTimeUnit(unitName)
	if err != nil {
		return nil, 0, err
	}

	account, err := storageManager.GetAccount(siteID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get account: %v", err)
	}
	if account == nil {
		return nil, 0, fmt.Errorf("no account registered for site %s, use 'solarweb-terminal auth add' first", siteID)
	}

	password, err := resolvePassword(cmd, account.Username)
	if err != nil {
		return nil, 0, err
	}

	client := solaredge.NewClient(account.Username, password, siteID, newPortalHTTPClient(), solaredge.DefaultTimeout)
	return client, unit, nil
}

// fetchAndPrint fetches one window of readings and prints them sorted by
// interval start. The portal itself does not guarantee any ordering.
func fetchAndPrint(ctx context.Context, client *solaredge.Client, siteID string, unit solaredge.TimeUnit) error {
	samples, err := client.GetEnergyData(ctx, unit)
	if err != nil {
		return err
	}

	if len(samples) == 0 {
		fmt.Printf("No energy readings returned for site %s (%s window)\n", siteID, unit)
		return nil
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].StartTime.Before(samples[j].StartTime)
	})

	names := equipmentNames(siteID)

	fmt.Printf("Energy readings for site %s (%s window, %d intervals):\n\n", siteID, unit, len(samples))

	for _, sample := range samples {
		var total float64
		for _, wh := range sample.Values {
			total += wh
		}

		fmt.Printf("%s  total %.1f Wh\n", sample.StartTime.Format("2006-01-02 15:04:05"), total)

		ids := make([]int, 0, len(sample.Values))
		for id := range sample.Values {
			ids = append(ids, id)
		}
		sort.Ints(ids)

		for _, id := range ids {
			label := names[id]
			if label == "" {
				label = fmt.Sprintf("equipment %d", id)
			}
			fmt.Printf("    %-30s %10.1f Wh\n", label, sample.Values[id])
		}
	}

	return nil
}

// equipmentNames maps equipment ids to display names from the registry,
// when discovery has run for the site.
func equipmentNames(siteID string) map[int]string {
	names := make(map[int]string)

	equipment, err := storageManager.GetEquipmentForSite(siteID)
	if err != nil {
		return names
	}

	for _, eq := range equipment {
		if eq.DisplayName != "" {
			names[eq.EquipmentID] = eq.DisplayName
		}
	}

	return names
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
