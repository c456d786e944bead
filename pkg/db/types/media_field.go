package dbtypes

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// MediaField is the stored media column of a product. Rows written before the
// namespaced layout hold a single path (a JSON string or bare text); current
// rows hold an ordered JSON array of URLs.
type MediaField struct {
	legacy   string
	urls     []string
	isLegacy bool
}

// MediaList builds the list representation. Empty entries are dropped.
func MediaList(urls ...string) MediaField {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		out = append(out, u)
	}
	return MediaField{urls: out}
}

// LegacyMedia builds the single-path representation. An empty path is an empty list.
func LegacyMedia(path string) MediaField {
	path = strings.TrimSpace(path)
	if path == "" {
		return MediaList()
	}
	return MediaField{legacy: path, isLegacy: true}
}

// IsLegacy reports whether the field still uses the single-path representation.
func (f MediaField) IsLegacy() bool { return f.isLegacy }

// LegacyPath returns the single stored path when the field is legacy.
func (f MediaField) LegacyPath() (string, bool) {
	if !f.isLegacy {
		return "", false
	}
	return f.legacy, true
}

// URLs returns the list view of the field. A legacy path becomes a one-element list.
func (f MediaField) URLs() []string {
	if f.isLegacy {
		return []string{f.legacy}
	}
	out := make([]string, len(f.urls))
	copy(out, f.urls)
	return out
}

// Len returns the number of referenced media.
func (f MediaField) Len() int {
	if f.isLegacy {
		return 1
	}
	return len(f.urls)
}

func (f *MediaField) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = MediaList()
		return nil
	case string:
		return f.parse([]byte(v))
	case []byte:
		return f.parse(v)
	default:
		return fmt.Errorf("MediaField: unsupported Scan type %T", src)
	}
}

func (f MediaField) Value() (driver.Value, error) {
	var (
		raw []byte
		err error
	)
	if f.isLegacy {
		raw, err = json.Marshal(f.legacy)
	} else {
		urls := f.urls
		if urls == nil {
			urls = []string{}
		}
		raw, err = json.Marshal(urls)
	}
	if err != nil {
		return nil, fmt.Errorf("MediaField: marshal: %w", err)
	}
	return string(raw), nil
}

// MarshalJSON always exposes the list view.
func (f MediaField) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.URLs())
}

func (f *MediaField) UnmarshalJSON(data []byte) error {
	return f.parse(data)
}

// GormDBDataType keeps jsonb on postgres and plain text elsewhere.
func (MediaField) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

func (f *MediaField) parse(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = MediaList()
		return nil
	}
	switch trimmed[0] {
	case '[':
		var items []*string
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("MediaField: parse list: %w", err)
		}
		urls := make([]string, 0, len(items))
		for _, item := range items {
			if item == nil {
				continue
			}
			urls = append(urls, *item)
		}
		*f = MediaList(urls...)
	case '"':
		var single string
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return fmt.Errorf("MediaField: parse legacy: %w", err)
		}
		*f = LegacyMedia(single)
	default:
		*f = LegacyMedia(string(trimmed))
	}
	return nil
}
