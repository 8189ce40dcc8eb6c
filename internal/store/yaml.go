package store

import (
	"context"
	"fmt"
	"io"

	"github.com/CloudNativeWorks/sak-client/internal/timing"
	"gopkg.in/yaml.v3"
)

// Document is the YAML exchange format for a page's timed sends
type Document struct {
	PageType string        `yaml:"page_type"`
	Items    []timing.Item `yaml:"items"`
}

// ExportYAML writes every item of pageType to w
func ExportYAML(ctx context.Context, st timing.Store, pageType string, w io.Writer) (int, error) {
	items, err := st.List(ctx, pageType)
	if err != nil {
		return 0, err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Document{PageType: pageType, Items: items}); err != nil {
		return 0, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("flush yaml: %w", err)
	}
	return len(items), nil
}

// ImportYAML upserts the items read from r. The page type stored in the
// document is used unless pageType is set.
func ImportYAML(ctx context.Context, st timing.Store, pageType string, r io.Reader) (int, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode yaml: %w", err)
	}
	if pageType == "" {
		pageType = doc.PageType
	}
	if pageType == "" {
		return 0, fmt.Errorf("no page type given and none in document")
	}

	for i, item := range doc.Items {
		if item.ID == 0 {
			return i, fmt.Errorf("item %d has no id", i)
		}
		if item.Interval == 0 {
			item.Interval = timing.DefaultInterval
		}
		if err := st.Upsert(ctx, pageType, item); err != nil {
			return i, err
		}
	}
	return len(doc.Items), nil
}
