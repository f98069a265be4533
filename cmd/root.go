package cmd

import (
	"fmt"
	"os"

	"solarweb-terminal/cmd/auth"
	"solarweb-terminal/cmd/energy"
	"solarweb-terminal/cmd/equipment"
	"solarweb-terminal/pkg/core"
	"solarweb-terminal/pkg/storage"

	"github.com/spf13/cobra"
)

var (
	storageManager *storage.StorageManager
	logLevel       string
)

var rootCmd = &cobra.Command{
	Use:   "solarweb-terminal",
	Short: "SolarEdge monitoring portal terminal",
	Long: `A CLI tool to inspect SolarEdge installations through the monitoring portal.

This tool allows you to:
- Manage portal accounts per site
- Discover installed equipment (inverters, optimizers, ...)
- Fetch periodic energy production readings

Examples:
  solarweb-terminal auth list
  solarweb-terminal auth add 1234567 user@example.com
  solarweb-terminal equipment refresh
  solarweb-terminal energy fetch 1234567 --time-unit week`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		core.InitLogger(logLevel)
	},
}

func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(auth.NewAuthCmd())
	rootCmd.AddCommand(equipment.NewEquipmentCmd())
	rootCmd.AddCommand(energy.NewEnergyCmd())
}

func initConfig() {
	var err error
	storageManager, err = storage.NewStorageManager("")
	if err != nil {
		fmt.Println("Failed to initialize storage")
		os.Exit(1)
	}

	// Make storage manager available to subcommands
	auth.SetStorageManager(storageManager)
	equipment.SetStorageManager(storageManager)
	energy.SetStorageManager(storageManager)
}

func GetStorageManager() *storage.StorageManager {
	return storageManager
}
