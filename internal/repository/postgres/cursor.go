package postgres

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrBadCursor = errors.New("invalid cursor")

// cursor is the keyset position of the last row of a page.
type cursor struct {
	SentAt time.Time `json:"t"`
	ID     string    `json:"id"`
}

func encodeCursor(c cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (cursor, error) {
	var c cursor
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, ErrBadCursor
	}
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" || c.SentAt.IsZero() {
		return cursor{}, ErrBadCursor
	}
	return c, nil
}
