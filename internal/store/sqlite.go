// Package store persists timed-send items in SQLite, one table per page type.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"github.com/CloudNativeWorks/sak-client/internal/timing"
	"github.com/CloudNativeWorks/sak-client/internal/transport"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const tablePrefix = "timing_sending_"

var pageTypePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// SQLiteStore implements timing.Store
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
}

var _ timing.Store = (*SQLiteStore)(nil)

// Open creates the database file if needed and verifies the connection
func Open(ctx context.Context, path string, log *logger.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	log.WithFields(logger.Fields{"path": path}).Debug("Item store opened")
	return &SQLiteStore{db: db, log: log}, nil
}

func buildDSN(path string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(path),
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(3000)")
	q.Add("_pragma", "journal_mode(WAL)")
	u.RawQuery = q.Encode()
	return u.String()
}

// tableName maps a page type to its table. Page types are restricted to
// identifier characters since they end up in SQL text.
func tableName(pageType string) (string, error) {
	if !pageTypePattern.MatchString(pageType) {
		return "", fmt.Errorf("invalid page type %q", pageType)
	}
	return tablePrefix + pageType, nil
}

func (s *SQLiteStore) ensureTable(ctx context.Context, pageType string) (string, error) {
	table, err := tableName(pageType)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          INTEGER PRIMARY KEY,
			interval_ms INTEGER NOT NULL,
			format      INTEGER NOT NULL,
			comment     TEXT NOT NULL DEFAULT '',
			data        TEXT NOT NULL DEFAULT ''
		)`, table))
	if err != nil {
		return "", fmt.Errorf("create table %s: %w", table, err)
	}
	return table, nil
}

// List returns the items of pageType ordered by id
func (s *SQLiteStore) List(ctx context.Context, pageType string) ([]timing.Item, error) {
	table, err := s.ensureTable(ctx, pageType)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, interval_ms, format, comment, data FROM %s ORDER BY id`, table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var items []timing.Item
	for rows.Next() {
		var (
			item   timing.Item
			format uint32
		)
		if err := rows.Scan(&item.ID, &item.Interval, &format, &item.Comment, &item.Payload); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		item.Format = transport.TextFormat(format)
		items = append(items, item)
	}
	return items, rows.Err()
}

// Upsert inserts item or replaces the row with the same id
func (s *SQLiteStore) Upsert(ctx context.Context, pageType string, item timing.Item) error {
	table, err := s.ensureTable(ctx, pageType)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, interval_ms, format, comment, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			interval_ms = excluded.interval_ms,
			format      = excluded.format,
			comment     = excluded.comment,
			data        = excluded.data`, table),
		item.ID, item.Interval, uint32(item.Format), item.Comment, item.Payload)
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}

	s.log.WithFields(logger.Fields{
		"page_type": pageType,
		"id":        item.ID,
	}).Debug("Timed send item saved")
	return nil
}

// Delete removes the item with id. Deleting a missing id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, pageType string, id int64) error {
	table, err := s.ensureTable(ctx, pageType)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

// Close releases the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
