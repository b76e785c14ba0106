package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spec-kit/orderdesk/pkg/util/fileutil"
)

// DefaultImagePathPrefix is applied when a fetched document omits one.
const DefaultImagePathPrefix = "/uploads/products/"

// Document is the catalog payload served to the storefront. Data holds the
// product groups as opaque JSON.
type Document struct {
	Data            []json.RawMessage `json:"data"`
	ImagePathPrefix string            `json:"imagePathPrefix"`
	Size            *int              `json:"size,omitempty"`
	UpdatedAt       string            `json:"updatedAt,omitempty"`
}

// Len returns the number of product groups.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Data)
}

// LoadMirror reads the on-disk copy. It returns nil without error when the
// file is missing or holds no items.
func LoadMirror(path string) (*Document, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read catalog mirror: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog mirror: %w", err)
	}
	if doc.Len() == 0 {
		return nil, nil
	}
	return &doc, nil
}

// SaveMirror writes doc to path atomically.
func SaveMirror(path string, doc *Document) error {
	if path == "" || doc == nil {
		return nil
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog mirror: %w", err)
	}
	if err := fileutil.WriteAtomic(path, raw); err != nil {
		return fmt.Errorf("write catalog mirror: %w", err)
	}
	return nil
}
