// Package enums holds the string enumerations stored in the database and
// exchanged over the API.
package enums

import (
	"fmt"
	"slices"
)

// valueSet is the list of allowed values for one enumeration.
type valueSet[T ~string] []T

func (s valueSet[T]) has(v T) bool {
	return slices.Contains(s, v)
}

func (s valueSet[T]) parse(raw, kind string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
