package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
)

// QueryInt64 reads an optional integer query parameter. An absent or blank
// value returns nil; anything else must parse and fall within [min, max].
func QueryInt64(r *http.Request, key string, min, max int64) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").
			WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return &value, nil
}
