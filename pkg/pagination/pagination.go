// Package pagination implements keyset paging over (timestamp, id) ordered
// tables. Cursors are opaque to clients.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Cursor string
}

// Size clamps Limit into [1, MaxLimit], using DefaultLimit when unset.
func (p Params) Size() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// Keyset is the sort position of the last row on a page.
type Keyset struct {
	At time.Time `json:"at"`
	ID uuid.UUID `json:"id"`
}

func (k Keyset) Encode() string {
	payload, _ := json.Marshal(Keyset{At: k.At.UTC(), ID: k.ID})
	return base64.RawURLEncoding.EncodeToString(payload)
}

// Decode returns nil for an empty cursor.
func Decode(cursor string) (*Keyset, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("cursor encoding: %w", err)
	}
	var k Keyset
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("cursor payload: %w", err)
	}
	if k.At.IsZero() || k.ID == uuid.Nil {
		return nil, fmt.Errorf("cursor incomplete")
	}
	return &k, nil
}

// Validate reports whether the cursor in p can be decoded.
func (p Params) Validate() error {
	_, err := Decode(p.Cursor)
	return err
}

// Seek orders query by column and id descending, skips past the cursor and
// fetches one row more than the page size so Page can tell if more remain.
// column must be a trusted identifier.
func Seek(query *gorm.DB, column string, p Params) (*gorm.DB, error) {
	after, err := Decode(p.Cursor)
	if err != nil {
		return nil, err
	}
	if after != nil {
		query = query.Where(
			fmt.Sprintf("(%s < ? OR (%s = ? AND id < ?))", column, column),
			after.At, after.At, after.ID,
		)
	}
	return query.Order(column + " DESC").Order("id DESC").Limit(p.Size() + 1), nil
}

// Page trims the extra row fetched by Seek and returns the cursor for the
// next page, or "" on the last page.
func Page[T any](rows []T, p Params, keyOf func(T) Keyset) ([]T, string) {
	size := p.Size()
	if len(rows) <= size {
		return rows, ""
	}
	rows = rows[:size]
	return rows, keyOf(rows[size-1]).Encode()
}
