package validators

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// multipartOverhead leaves room for text fields and part headers on top of
// the file payload cap.
const multipartOverhead = 1 << 20

// memoryLimit is how much of a form is buffered before parts spill to disk.
const memoryLimit = 8 << 20

// ParseMultipart caps the request body and parses it as multipart form data.
// A body over the cap maps to a payload-too-large error.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(memoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.Wrap(pkgerrors.CodePayloadTooLarge, err, "upload too large").
				WithDetails(map[string]any{"max_bytes": maxBytes})
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	return nil
}

// FormFiles collects the file parts sent under any of keys, in key order.
func FormFiles(r *http.Request, keys ...string) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	var out []*multipart.FileHeader
	for _, key := range keys {
		for _, fh := range r.MultipartForm.File[key] {
			if fh != nil && fh.Filename != "" {
				out = append(out, fh)
			}
		}
	}
	return out
}

// FormValue returns the first value sent for key and whether the field was
// present at all.
func FormValue(r *http.Request, key string) (string, bool) {
	if r.MultipartForm != nil {
		if values, ok := r.MultipartForm.Value[key]; ok && len(values) > 0 {
			return values[0], true
		}
		return "", false
	}
	if values, ok := r.PostForm[key]; ok && len(values) > 0 {
		return values[0], true
	}
	return "", false
}

// FormInt parses an optional integer field.
func FormInt(r *http.Request, key string) (*int64, error) {
	raw, ok := FormValue(r, key)
	if !ok {
		return nil, nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{key: "must be a whole number"})
	}
	return &value, nil
}

// FormDecimal parses an optional decimal field.
func FormDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	raw, ok := FormValue(r, key)
	if !ok {
		return nil, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{key: "must be a number"})
	}
	return &value, nil
}

// FormStringList reads a field carrying either a JSON array of strings or a
// single bare string. An absent field returns nil; a blank one returns an
// empty list.
func FormStringList(r *http.Request, key string) (*[]string, error) {
	raw, ok := FormValue(r, key)
	if !ok {
		return nil, nil
	}
	list, err := ParseStringList(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed").
			WithDetails(map[string]string{key: "must be a JSON array of strings"})
	}
	return &list, nil
}

// ParseStringList decodes raw as a JSON string array, falling back to a
// one-element list for a bare string.
func ParseStringList(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []string{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, err
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var single string
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, err
		}
		trimmed = strings.TrimSpace(single)
		if trimmed == "" {
			return []string{}, nil
		}
	}
	return []string{trimmed}, nil
}
