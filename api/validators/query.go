package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
)

// ParseQueryInt reads an integer query parameter bounded by [min, max].
// A missing parameter yields defaultVal.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, key+" must be an integer").
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max, "value": value})
	}
	return value, nil
}

// ParseQueryEnum reads an enum query parameter through parse. The boolean is
// false when the parameter is absent or equals one of the wildcard values
// (for example "all").
func ParseQueryEnum[T any](r *http.Request, key string, parse func(string) (T, error), wildcards ...string) (T, bool, error) {
	var zero T
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return zero, false, nil
	}
	for _, w := range wildcards {
		if strings.EqualFold(raw, w) {
			return zero, false, nil
		}
	}
	value, err := parse(raw)
	if err != nil {
		return zero, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key).
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	return value, true, nil
}
