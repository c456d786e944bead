package media

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/miuvuu/miuvuu-backend/pkg/config"
)

const legacyNamespace = ""

// Descriptor is the parsed form of one stored media URL.
type Descriptor struct {
	URL       string `json:"url"`
	Namespace string `json:"namespace,omitempty"`
	Filename  string `json:"filename"`
	Extension string `json:"extension"`
}

// IsLegacy reports whether the descriptor points at a flat file outside any namespace.
func (d Descriptor) IsLegacy() bool {
	return d.Namespace == legacyNamespace
}

// Mapper converts between public media URLs and paths relative to the storage root.
type Mapper struct {
	root           string
	productsDir    string
	productsSeg    string
	uploadsPrefix  string
	productsPrefix string
}

// NewMapper builds a mapper for the configured storage layout.
func NewMapper(cfg config.StorageConfig) *Mapper {
	uploads := "/" + cfg.UploadsSegment + "/"
	root := filepath.Clean(cfg.Root)
	return &Mapper{
		root:           root,
		productsDir:    filepath.Join(root, cfg.ProductsSegment),
		productsSeg:    cfg.ProductsSegment,
		uploadsPrefix:  uploads,
		productsPrefix: uploads + cfg.ProductsSegment + "/",
	}
}

// Root returns the cleaned storage root.
func (m *Mapper) Root() string { return m.root }

// ProductsDir returns the directory holding every product namespace.
func (m *Mapper) ProductsDir() string { return m.productsDir }

// UploadsPrefix returns the public URL prefix served from the storage root.
func (m *Mapper) UploadsPrefix() string { return m.uploadsPrefix }

// Normalize strips scheme and host from absolute URLs and restores the
// leading slash on bare uploads references. It is idempotent.
func (m *Mapper) Normalize(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if u, err := url.Parse(value); err == nil && u.Scheme != "" && u.Host != "" {
		value = u.EscapedPath()
	}
	if !strings.HasPrefix(value, "/") && strings.HasPrefix(value, strings.TrimPrefix(m.uploadsPrefix, "/")) {
		value = "/" + value
	}
	return value
}

// ToPath maps a media URL to a slash-free relative path under the storage
// root. The result is not checked for traversal; Cleanup does that before
// touching the filesystem.
func (m *Mapper) ToPath(raw string) (string, bool) {
	value := m.Normalize(raw)
	if !strings.HasPrefix(value, m.uploadsPrefix) {
		return "", false
	}
	rest := value[len(m.uploadsPrefix):]
	if idx := strings.IndexAny(rest, "?#"); idx >= 0 {
		rest = rest[:idx]
	}
	decoded, err := url.PathUnescape(rest)
	if err != nil || decoded == "" || strings.ContainsRune(decoded, 0) {
		return "", false
	}
	return filepath.FromSlash(decoded), true
}

// ToURL is the inverse of ToPath for paths produced by this service.
func (m *Mapper) ToURL(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return m.uploadsPrefix + strings.Join(parts, "/")
}

// NamespaceURL builds the URL of filename stored inside namespace.
func (m *Mapper) NamespaceURL(namespace, filename string) string {
	return m.ToURL(path.Join(m.productsSeg, namespace, filename))
}

// FolderOf returns the namespace a URL lives in, or "" for legacy flat URLs
// and anything that does not parse as a namespaced reference.
func (m *Mapper) FolderOf(raw string) string {
	value := m.Normalize(raw)
	if !strings.HasPrefix(value, m.productsPrefix) {
		return ""
	}
	rest := value[len(m.productsPrefix):]
	idx := strings.Index(rest, "/")
	if idx <= 0 {
		return ""
	}
	segment, err := url.PathUnescape(rest[:idx])
	if err != nil || !validSegment(segment) {
		return ""
	}
	return segment
}

// Describe splits a URL into namespace, filename and extension.
func (m *Mapper) Describe(raw string) Descriptor {
	value := m.Normalize(raw)
	name := path.Base(value)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "/" || name == "." {
		name = ""
	}
	return Descriptor{
		URL:       value,
		Namespace: m.FolderOf(value),
		Filename:  name,
		Extension: strings.ToLower(path.Ext(name)),
	}
}

func validSegment(segment string) bool {
	if segment == "" || segment == "." || segment == ".." {
		return false
	}
	return !strings.ContainsAny(segment, "/\\\x00")
}
