package cmd

import (
	"fmt"
	"os"

	"github.com/CloudNativeWorks/sak-client/internal/config"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	pageType string
	Cfg      *config.Config
	Version  string
)

var RootCmd = &cobra.Command{
	Use:   "sak-client",
	Short: "SAK Client - timed data sender with release update checks",
	Long: `SAK Client re-sends configured payloads to a transport on a fixed interval
and checks the project's release feed for newer versions.`,
	SilenceUsage: true,
}

func Execute(version string) error {
	Version = version
	return RootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or $HOME/.sak/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&pageType, "page", "p", "", "page type of timed-send items (overrides config file)")
}

func initConfig() {
	var err error

	Cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Configuration could not be loaded: %v\n", err)
		os.Exit(1)
	}

	// Override page type if provided via command line flag
	if pageType != "" {
		Cfg.Storage.PageType = pageType
		if err := Cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logCfg := Cfg.Logging
	if logCfg.Module == "" {
		logCfg.Module = "root"
	}
	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Logger could not be initialized: %v\n", err)
		os.Exit(1)
	}
}
