package media

import (
	"mime"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	formatPNG  = "image/png"
	formatJPEG = "image/jpeg"
	formatWebP = "image/webp"
)

// CanonicalContentType is the single stored format for product images.
const CanonicalContentType = formatWebP

// CanonicalExt is the extension of every normalized product image.
const CanonicalExt = ".webp"

var formatAliases = map[string]string{
	"image/png":   formatPNG,
	"png":         formatPNG,
	"image/jpeg":  formatJPEG,
	"image/jpg":   formatJPEG,
	"image/pjpeg": formatJPEG,
	"jpeg":        formatJPEG,
	"jpg":         formatJPEG,
	"image/webp":  formatWebP,
	"webp":        formatWebP,
}

var extByFormat = map[string]string{
	formatPNG:  ".png",
	formatJPEG: ".jpg",
	formatWebP: ".webp",
}

// SupportedFormats lists the accepted upload content types.
func SupportedFormats() []string {
	out := make([]string, 0, len(extByFormat))
	for format := range extByFormat {
		out = append(out, format)
	}
	sort.Strings(out)
	return out
}

// CanonicalFormat maps a declared content type, or a bare format name, to one
// of the supported image types.
func CanonicalFormat(declared string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(declared))
	if strings.Contains(value, "/") {
		if parsed, _, err := mime.ParseMediaType(value); err == nil {
			value = parsed
		}
	}
	if format, ok := formatAliases[value]; ok {
		return format, nil
	}
	return "", unsupportedFormat(declared)
}

// needsSniff reports whether the declared type carries no usable information.
func needsSniff(declared string) bool {
	value := strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return value == "" || value == "application/octet-stream"
}

// resolveFormat returns the supported format for a stored upload, sniffing the
// file when the client sent no meaningful content type.
func resolveFormat(path, declared string) (string, error) {
	if !needsSniff(declared) {
		return CanonicalFormat(declared)
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", ioError(err, "sniff upload")
	}
	return CanonicalFormat(detected.String())
}

func extensionFor(format string) string {
	if ext, ok := extByFormat[format]; ok {
		return ext
	}
	return ".bin"
}
