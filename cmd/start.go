package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CloudNativeWorks/sak-client/internal/config"
	"github.com/CloudNativeWorks/sak-client/internal/services"
	"github.com/CloudNativeWorks/sak-client/internal/store"
	"github.com/CloudNativeWorks/sak-client/internal/timing"
	"github.com/CloudNativeWorks/sak-client/internal/transport"
	"github.com/CloudNativeWorks/sak-client/internal/update"
	"github.com/CloudNativeWorks/sak-client/pkg/helper"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

// Session holds the collaborators of a running client
type Session struct {
	store    *store.SQLiteStore
	client   *transport.Client
	manager  *timing.Manager
	checker  *update.Checker
	reporter *services.StatsReporter
}

// openSession opens the item store and wires the transport and timed senders
func openSession(ctx context.Context, cfg *config.Config) (*Session, error) {
	st, err := store.Open(ctx, cfg.Storage.Path, logger.NewLogger("store"))
	if err != nil {
		return nil, err
	}

	client := transport.NewClient(cfg.Transport, logger.NewLogger("transport"))
	manager := timing.NewManager(cfg.Storage.PageType, client, st, logger.NewLogger("timing"))
	if err := manager.Load(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	return &Session{
		store:   st,
		client:  client,
		manager: manager,
	}, nil
}

// Close stops every sender and releases the connection and the store
func (s *Session) Close() error {
	if s.reporter != nil {
		s.reporter.Stop()
	}
	s.manager.StopAll()
	if err := s.client.Close(); err != nil {
		logger.NewLogger("transport").Warnf("Failed to close connection: %v", err)
	}
	return s.store.Close()
}

// SessionManager handles the lifecycle of a running client
type SessionManager struct {
	session *Session
	logger  *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	sigChan chan os.Signal
}

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the client",
	Long: `Start every stored timed send of the configured page and keep them
running until the process is stopped. SIGHUP reloads the items from the store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logger.NewLogger("main")

		return NewSessionManager(logger).Run()
	},
}

func init() {
	RootCmd.AddCommand(StartCmd)
}

// NewSessionManager creates a new session manager
func NewSessionManager(log *logger.Logger) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
	}
}

// Run starts the timed senders and blocks until shutdown
func (m *SessionManager) Run() error {
	if err := m.initialize(); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	defer m.cleanup()

	return m.mainLoop()
}

// initialize sets up the session
func (m *SessionManager) initialize() error {
	if Cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	session, err := openSession(m.ctx, Cfg)
	if err != nil {
		return err
	}

	session.checker = update.NewChecker(Cfg.Update, Version, Cfg, logger.NewLogger("update"))
	session.reporter = services.NewStatsReporter(logger.NewLogger("stats"), session.client, 0)
	m.session = session

	signal.Notify(m.sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	return nil
}

// cleanup performs cleanup operations
func (m *SessionManager) cleanup() {
	m.logger.Info("Cleaning up resources...")

	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		m.logger.Debugf("Failed to notify systemd: %v", err)
	}

	if m.session != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := m.session.Close(); err != nil {
				m.logger.Errorf("Failed to close session: %v", err)
			}
		}()

		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			m.logger.Warn("Session shutdown timed out")
		}
	}

	signal.Stop(m.sigChan)
	m.cancel()

	m.logger.Info("Cleanup completed")
}

// mainLoop starts the senders and handles signals until shutdown
func (m *SessionManager) mainLoop() error {
	started := m.session.manager.StartAll()
	m.logger.WithFields(logger.Fields{
		"page_type": m.session.manager.PageType(),
		"started":   started,
		"transport": Cfg.Transport.URL,
	}).Info("Timed sends started")

	m.session.reporter.Start()

	if m.session.checker.AutoCheckEnabled() {
		helper.Go(m.logger, "auto-update-check", m.autoCheck)
	}

	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		m.logger.Warnf("Failed to notify systemd readiness: %v", err)
	} else if sent {
		m.logger.Debug("Notified systemd readiness")
	}

	for {
		select {
		case <-m.ctx.Done():
			return nil
		case sig := <-m.sigChan:
			if sig == syscall.SIGHUP {
				m.reload()
				continue
			}
			m.logger.Warnf("Received signal %s, initiating shutdown...", sig)
			return nil
		}
	}
}

// reload re-reads the items from the store and restarts them
func (m *SessionManager) reload() {
	m.logger.Info("Reloading timed sends")

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReloading); err != nil {
		m.logger.Debugf("Failed to notify systemd: %v", err)
	}

	if err := m.session.manager.Load(m.ctx); err != nil {
		m.logger.Errorf("Reload failed: %v", err)
	} else {
		started := m.session.manager.StartAll()
		m.logger.WithFields(logger.Fields{"started": started}).Info("Timed sends reloaded")
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		m.logger.Debugf("Failed to notify systemd: %v", err)
	}
}

// autoCheck runs the startup update check
func (m *SessionManager) autoCheck() {
	ctx, cancel := context.WithTimeout(m.ctx, Cfg.Update.Timeout+time.Second)
	defer cancel()

	report, err := m.session.checker.CheckForUpdate(ctx)
	if err != nil {
		m.logger.Warnf("Startup update check failed: %v", err)
		return
	}
	if report.Newer {
		m.logger.WithFields(logger.Fields{
			"current": report.CurrentVersion,
			"latest":  report.LatestVersion,
			"page":    report.HTMLURL,
		}).Warn("A new version is available")
	}
}
