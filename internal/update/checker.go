// Package update checks the release feed for a newer version and lists its
// downloads per platform.
package update

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/CloudNativeWorks/sak-client/internal/config"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const maxReleaseBodySize = 4 << 20

// ErrCheckInProgress is returned when a check is triggered while another
// one has not finished
var ErrCheckInProgress = errors.New("update check already in progress")

// Settings is the collaborator holding the persisted auto-check flag
type Settings interface {
	AutoCheckForUpdate() bool
	SetAutoCheckForUpdate(enabled bool) error
}

// Report is the outcome of a successful check
type Report struct {
	CheckID        string
	CurrentVersion string
	LatestVersion  string
	Newer          bool
	HTMLURL        string
	Notes          string
	Downloads      []DownloadRow
}

// Option customizes a Checker
type Option func(*Checker)

// WithHTTPClient replaces the default client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Checker) {
		c.httpClient = hc
	}
}

// WithClock swaps the clock driving notice expiry
func WithClock(clk clock.Clock) Option {
	return func(c *Checker) {
		c.clock = clk
	}
}

// WithOpener replaces the browser launcher
func WithOpener(open Opener) Option {
	return func(c *Checker) {
		c.open = open
	}
}

// Checker fetches the latest release and keeps the state the update view
// shows: notes, download list and an inline notice.
type Checker struct {
	cfg            config.UpdateConfig
	currentVersion string
	settings       Settings
	log            *logger.Logger
	httpClient     *http.Client
	clock          clock.Clock
	open           Opener

	mu        sync.Mutex
	inFlight  bool
	release   *ReleaseInfo
	newer     bool
	notes     string
	downloads *DownloadList
	notice    *Notice
}

// NewChecker creates a checker comparing releases against currentVersion
func NewChecker(cfg config.UpdateConfig, currentVersion string, settings Settings, log *logger.Logger, opts ...Option) *Checker {
	c := &Checker{
		cfg:            cfg,
		currentVersion: currentVersion,
		settings:       settings,
		log:            log,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		clock:          clock.New(),
		open:           OpenBrowser,
		downloads:      NewDownloadList(),
	}
	for _, opt := range opts {
		opt(c)
	}

	timeout := cfg.NoticeTimeout
	if timeout <= 0 {
		timeout = config.DefaultNoticeClear
	}
	c.notice = NewNotice(c.clock, timeout)
	return c
}

// Notice exposes the inline message
func (c *Checker) Notice() *Notice {
	return c.notice
}

// Downloads exposes the download list
func (c *Checker) Downloads() *DownloadList {
	return c.downloads
}

// InFlight reports whether a check is running; the trigger is disabled meanwhile
func (c *Checker) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// CheckForUpdate runs one request against the release endpoint. Previous
// notes and downloads are cleared before the request is sent; on failure
// they stay cleared and a red notice carries the error.
func (c *Checker) CheckForUpdate(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrCheckInProgress
	}
	c.inFlight = true
	c.newer = false
	c.notes = ""
	c.downloads.Clear()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	checkID := uuid.NewString()
	log := c.log.WithFields(logger.Fields{
		"check_id": checkID,
		"url":      c.cfg.ReleaseURL,
	})
	log.Info("Checking for update")

	info, err := c.fetch(ctx, checkID)
	if err != nil {
		kind := "unknown"
		var ce *CheckError
		if errors.As(err, &ce) {
			kind = ce.Kind.String()
		}
		log.WithField("kind", kind).WithError(err).Warn("Update check failed")
		c.notice.Error(err.Error())
		return nil, err
	}

	newer := CompareVersions(info.Name, c.currentVersion)

	c.mu.Lock()
	c.release = info
	c.newer = newer
	if newer {
		c.notes = info.Notes()
		c.downloads.Populate(info)
	}
	c.mu.Unlock()

	log.WithFields(logger.Fields{
		"current": c.currentVersion,
		"latest":  info.Name,
		"newer":   newer,
	}).Info("Update check finished")

	if newer {
		c.notice.Info("New version " + DisplayVersion(info.Name) + " is available")
	} else {
		c.notice.Info("No new version")
	}

	r := c.Report()
	r.CheckID = checkID
	return r, nil
}

func (c *Checker) fetch(ctx context.Context, checkID string) (*ReleaseInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ReleaseURL, nil)
	if err != nil {
		return nil, transportError("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "sak-client/"+c.currentVersion)
	req.Header.Set("X-Request-ID", checkID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("failed to fetch release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, transportError("release endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReleaseBodySize))
	if err != nil {
		return nil, transportError("failed to read release: %w", err)
	}
	return ParseRelease(data)
}

// Report returns the state of the last check
func (c *Checker) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &Report{
		CurrentVersion: DisplayVersion(c.currentVersion),
		Newer:          c.newer,
		Notes:          c.notes,
		Downloads:      c.downloads.Rows(),
	}
	if c.release != nil {
		r.LatestVersion = DisplayVersion(c.release.Name)
		r.HTMLURL = c.release.HTMLURL
	}
	return r
}

// ClearDownloadList evicts every download row
func (c *Checker) ClearDownloadList() {
	c.downloads.Clear()
}

// AutoCheckEnabled reads the persisted "check on startup" flag
func (c *Checker) AutoCheckEnabled() bool {
	if c.settings == nil {
		return false
	}
	return c.settings.AutoCheckForUpdate()
}

// SetAutoCheck persists the "check on startup" flag
func (c *Checker) SetAutoCheck(enabled bool) error {
	if c.settings == nil {
		return errors.New("no settings store configured")
	}
	return c.settings.SetAutoCheckForUpdate(enabled)
}

// VisitWeb opens the release page mirror for locale and returns its URL
func (c *Checker) VisitWeb(locale string) (string, error) {
	page := ReleasePage(c.cfg.GithubPage, c.cfg.GiteePage, locale)
	if err := c.open(page); err != nil {
		c.notice.Error(err.Error())
		return page, err
	}
	return page, nil
}
