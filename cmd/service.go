package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/CloudNativeWorks/sak-client/pkg/template"
	"github.com/spf13/cobra"
)

var (
	unitBinary   string
	unitUser     string
	unitWatchdog string
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Helpers for running under systemd",
}

var serviceUnitCmd = &cobra.Command{
	Use:   "unit",
	Short: "Print a systemd unit file for the start command",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		binary := unitBinary
		if binary == "" {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot resolve executable path: %w", err)
			}
			binary = exe
		}

		configPath := cfgFile
		if configPath != "" {
			abs, err := filepath.Abs(configPath)
			if err != nil {
				return fmt.Errorf("cannot resolve config path: %w", err)
			}
			configPath = abs
		}

		unit, err := template.RenderUnit(template.UnitOptions{
			Binary:   binary,
			Config:   configPath,
			User:     unitUser,
			Watchdog: unitWatchdog,
		})
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), unit)
		return nil
	},
}

func init() {
	serviceUnitCmd.Flags().StringVar(&unitBinary, "binary", "", "path of the client binary (default: this executable)")
	serviceUnitCmd.Flags().StringVar(&unitUser, "user", "root", "user and group the service runs as")
	serviceUnitCmd.Flags().StringVar(&unitWatchdog, "watchdog", "120s", "WatchdogSec of the unit")

	serviceCmd.AddCommand(serviceUnitCmd)
	RootCmd.AddCommand(serviceCmd)
}
