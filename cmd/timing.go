package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CloudNativeWorks/sak-client/internal/store"
	"github.com/CloudNativeWorks/sak-client/internal/timing"
	"github.com/CloudNativeWorks/sak-client/internal/transport"
	"github.com/CloudNativeWorks/sak-client/internal/ui"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	itemInterval string
	itemFormat   string
	itemComment  string
	setInterval  string
	setFormat    string
	setComment   string
	setData      string
	sendFor      time.Duration
	importPage   string
)

var timingCmd = &cobra.Command{
	Use:   "timing",
	Short: "Manage timed sends",
	Long:  `Add, edit, remove and try out the timed sends of a page.`,
}

var timingAddCmd = &cobra.Command{
	Use:   "add [data]",
	Short: "Add a timed send",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := transport.ParseFormat(itemFormat)
		if err != nil {
			return err
		}
		payload := ""
		if len(args) == 1 {
			payload = args[0]
		}

		return withSession(cmd.Context(), func(ctx context.Context, s *Session) error {
			sender := s.manager.Add(timing.Item{
				Interval: timing.ParseInterval(itemInterval),
				Format:   format,
				Comment:  itemComment,
				Payload:  payload,
			})
			if err := s.manager.Update(ctx, sender.ID()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added timed send %d\n", sender.ID())
			return nil
		})
	},
}

var timingListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List timed sends",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, s *Session) error {
			senders := s.manager.Senders()
			if len(senders) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No timed sends on page %q\n", s.manager.PageType())
				return nil
			}

			rows := make([]ui.ItemRow, 0, len(senders))
			for _, sender := range senders {
				rows = append(rows, ui.ItemRow{Item: sender.Item(), Running: sender.Running()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.ItemsTable(rows))
			return nil
		})
	},
}

var timingSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Edit a timed send",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}

		return withSession(cmd.Context(), func(ctx context.Context, s *Session) error {
			sender, ok := s.manager.Get(id)
			if !ok {
				return fmt.Errorf("timed send %d not found", id)
			}

			flags := cmd.Flags()
			if flags.Changed("interval") {
				sender.SetInterval(setInterval)
			}
			if flags.Changed("format") {
				format, err := transport.ParseFormat(setFormat)
				if err != nil {
					return err
				}
				sender.SetFormat(format)
			}
			if flags.Changed("comment") {
				sender.SetComment(setComment)
			}
			if flags.Changed("data") {
				sender.SetPayload(setData)
			}
			return s.manager.Update(ctx, id)
		})
	},
}

var timingRemoveCmd = &cobra.Command{
	Use:     "remove <id>...",
	Aliases: []string{"rm"},
	Short:   "Remove timed sends",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := parseItemID(arg)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		return withSession(cmd.Context(), func(ctx context.Context, s *Session) error {
			for _, id := range ids {
				if err := s.manager.Remove(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed timed send %d\n", id)
			}
			return nil
		})
	},
}

var timingSendCmd = &cobra.Command{
	Use:   "send <id>",
	Short: "Send a timed send once, or run its timer for a while",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}

		return withSession(cmd.Context(), func(ctx context.Context, s *Session) error {
			sender, ok := s.manager.Get(id)
			if !ok {
				return fmt.Errorf("timed send %d not found", id)
			}

			if sendFor <= 0 {
				if err := sender.Fire(); err != nil {
					return err
				}
			} else {
				sender.Start()
				select {
				case <-ctx.Done():
				case <-time.After(sendFor):
				}
				sender.Stop()
			}

			stats := s.client.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %d packets (%d bytes), %d errors\n", stats.Packets, stats.Bytes, stats.Errors)
			return nil
		})
	},
}

var timingExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the timed sends of a page as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var w io.Writer = cmd.OutOrStdout()
		if len(args) == 1 && args[0] != "-" {
			f, ferr := os.Create(args[0])
			if ferr != nil {
				return fmt.Errorf("failed to create export file: %w", ferr)
			}
			defer func() {
				if cerr := f.Close(); cerr != nil && err == nil {
					err = fmt.Errorf("failed to close export file: %w", cerr)
				}
			}()
			w = f
		}

		return withStore(cmd.Context(), func(ctx context.Context, st *store.SQLiteStore) error {
			n, err := store.ExportYAML(ctx, st, Cfg.Storage.PageType, w)
			if err != nil {
				return err
			}
			logger.NewLogger("timing").WithFields(logger.Fields{
				"page_type": Cfg.Storage.PageType,
				"count":     n,
			}).Info("Timed sends exported")
			return nil
		})
	},
}

var timingImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import timed sends from YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()
			r = f
		}

		return withStore(cmd.Context(), func(ctx context.Context, st *store.SQLiteStore) error {
			n, err := store.ImportYAML(ctx, st, importPage, r)
			if err != nil {
				return fmt.Errorf("import stopped after %d items: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d timed sends\n", n)
			return nil
		})
	},
}

func init() {
	timingAddCmd.Flags().StringVarP(&itemInterval, "interval", "i", "1000", "send interval in milliseconds")
	timingAddCmd.Flags().StringVarP(&itemFormat, "format", "f", "hex", "text format: bin, oct, dec, hex, ascii, utf8")
	timingAddCmd.Flags().StringVarP(&itemComment, "comment", "c", "", "comment shown in the list")

	timingSetCmd.Flags().StringVarP(&setInterval, "interval", "i", "", "send interval in milliseconds")
	timingSetCmd.Flags().StringVarP(&setFormat, "format", "f", "", "text format: bin, oct, dec, hex, ascii, utf8")
	timingSetCmd.Flags().StringVarP(&setComment, "comment", "c", "", "comment shown in the list")
	timingSetCmd.Flags().StringVarP(&setData, "data", "d", "", "data to send")

	timingSendCmd.Flags().DurationVar(&sendFor, "for", 0, "run the timer for this long instead of sending once")

	timingImportCmd.Flags().StringVar(&importPage, "into", "", "page type to import into (default: the document's page)")

	timingCmd.AddCommand(timingAddCmd, timingListCmd, timingSetCmd, timingRemoveCmd, timingSendCmd, timingExportCmd, timingImportCmd)
	RootCmd.AddCommand(timingCmd)
}

func parseItemID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timed send id %q", s)
	}
	return id, nil
}

func withSession(ctx context.Context, fn func(context.Context, *Session) error) error {
	if Cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, Cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func withStore(ctx context.Context, fn func(context.Context, *store.SQLiteStore) error) error {
	if Cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := store.Open(ctx, Cfg.Storage.Path, logger.NewLogger("store"))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}
