package update

import (
	"strings"
	"sync"
)

// RowKind tells header rows from download rows
type RowKind int

const (
	RowHeader RowKind = iota
	RowLink
)

// DownloadRow is one line of the download list
type DownloadRow struct {
	Kind     RowKind
	Platform string
	URL      string
}

const sourcePlatform = "Source"

type platformFilter struct {
	platform string
	suffixes []string
}

// Display order of the download list
var platformFilters = []platformFilter{
	{"Windows", []string{".exe"}},
	{"Linux", []string{".run", ".Appimage"}},
	{"Apple", []string{".dmg"}},
	{"Android", []string{".pkg"}},
}

// DownloadList holds the categorized links of the last newer release
type DownloadList struct {
	mu   sync.Mutex
	rows []DownloadRow
}

// NewDownloadList returns an empty list
func NewDownloadList() *DownloadList {
	return &DownloadList{}
}

// Populate replaces the rows with the downloads of info. Each platform gets
// a header followed by every URL containing one of its suffixes; a URL that
// matches several suffixes appears once per match. The source archives are
// always appended under a "Source" header.
func (l *DownloadList) Populate(info *ReleaseInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rows = l.rows[:0]
	for _, pf := range platformFilters {
		l.rows = append(l.rows, DownloadRow{Kind: RowHeader, Platform: pf.platform})
		for _, suffix := range pf.suffixes {
			for _, u := range info.DownloadURLs {
				if strings.Contains(u, suffix) {
					l.rows = append(l.rows, DownloadRow{Kind: RowLink, Platform: pf.platform, URL: u})
				}
			}
		}
	}

	l.rows = append(l.rows,
		DownloadRow{Kind: RowHeader, Platform: sourcePlatform},
		DownloadRow{Kind: RowLink, Platform: sourcePlatform, URL: info.TarballURL},
		DownloadRow{Kind: RowLink, Platform: sourcePlatform, URL: info.ZipballURL},
	)
}

// Clear evicts every row
func (l *DownloadList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = nil
}

// Len returns the number of rows, headers included
func (l *DownloadList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

// Rows returns a copy of the rows in display order
func (l *DownloadList) Rows() []DownloadRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]DownloadRow(nil), l.rows...)
}
