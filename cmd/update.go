package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/CloudNativeWorks/sak-client/internal/ui"
	"github.com/CloudNativeWorks/sak-client/internal/update"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	notesWidth  int
	visitLocale string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for new releases",
}

var updateCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the release feed for a newer version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		checker, err := newChecker()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		report, err := checker.CheckForUpdate(ctx)
		if msg, ok := checker.Notice().Current(); ok {
			fmt.Fprintln(cmd.ErrOrStderr(), ui.Notice(msg))
		}
		if err != nil {
			return err
		}

		ui.PrintReport(cmd.OutOrStdout(), report, notesWidth)
		return nil
	},
}

var updateVisitCmd = &cobra.Command{
	Use:   "visit",
	Short: "Open the release page in a browser",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		checker, err := newChecker()
		if err != nil {
			return err
		}

		locale := visitLocale
		if locale == "" {
			locale = update.SystemLocale()
		}
		page, err := checker.VisitWeb(locale)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), page)
		return nil
	},
}

var updateAutoCmd = &cobra.Command{
	Use:       "auto [on|off]",
	Short:     "Show or set the check for update on startup flag",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		checker, err := newChecker()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Auto check for update: %s\n", onOff(checker.AutoCheckEnabled()))
			return nil
		}

		enabled, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		if err := checker.SetAutoCheck(enabled); err != nil {
			return fmt.Errorf("failed to save setting: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Auto check for update: %s\n", onOff(enabled))
		return nil
	},
}

func init() {
	updateCheckCmd.Flags().IntVar(&notesWidth, "width", 80, "wrap release notes at this width")
	updateVisitCmd.Flags().StringVar(&visitLocale, "locale", "", "locale used to pick the mirror (default: $LANG)")

	updateCmd.AddCommand(updateCheckCmd, updateVisitCmd, updateAutoCmd)
	RootCmd.AddCommand(updateCmd)
}

func newChecker() (*update.Checker, error) {
	if Cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return update.NewChecker(Cfg.Update, Version, Cfg, logger.NewLogger("update")), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
