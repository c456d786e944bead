package media

import (
	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
)

func unsupportedFormat(contentType string) error {
	return pkgerrors.New(pkgerrors.CodeUnsupportedMedia, "unsupported image format").
		WithDetails(map[string]any{
			"content_type": contentType,
			"allowed":      SupportedFormats(),
		})
}

func ioError(err error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeMediaProcessing, err, msg)
}

func traversal(url string) error {
	return pkgerrors.New(pkgerrors.CodePathTraversal, "media reference resolves outside storage root: "+url)
}

// IsTraversal reports whether err rejected a reference escaping the storage root.
func IsTraversal(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodePathTraversal)
}

// IsUnsupportedFormat reports whether err rejected an upload's content type.
func IsUnsupportedFormat(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeUnsupportedMedia)
}

// IsIOError reports whether err is a storage or image processing failure.
func IsIOError(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeMediaProcessing)
}
