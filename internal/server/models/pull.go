package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/timex"
)

// PullQuery selects an owner's records changed after Since, in
// (UpdatedAt, ID) order. After, when set, restricts the selection to rows
// strictly past that position.
type PullQuery struct {
	Since  time.Time
	Limit  int
	Offset int
	After  *Cursor
}

// CheckLimit validates a page size the client gave explicitly.
func CheckLimit(n int) error {
	if n < 1 || n > common.MaxPullLimit {
		return fmt.Errorf("%w: limit must be within [1, %d]", common.ErrValidation, common.MaxPullLimit)
	}
	return nil
}

// Normalize applies defaults and validates bounds. A zero Limit means "not
// given" and becomes common.DefaultPullLimit; transports reject an explicit
// zero with CheckLimit before building the query. A zero Since means a full
// resync.
func (q *PullQuery) Normalize() error {
	if q.Since.IsZero() {
		q.Since = time.Unix(0, 0)
	}
	q.Since = timex.Normalize(q.Since)
	if q.Limit == 0 {
		q.Limit = common.DefaultPullLimit
	}
	if err := CheckLimit(q.Limit); err != nil {
		return err
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative", common.ErrValidation)
	}
	return nil
}

// PullPage is one page of changed records.
type PullPage struct {
	Records    []*VaultRecord
	TotalCount int64
	HasMore    bool
	// NextCursor points past the last record of the page; empty when the
	// page is empty.
	NextCursor string
}

// Cursor is a seek position in pull order.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}

type cursorWire struct {
	T  int64  `json:"t"`
	ID string `json:"id"`
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	b, _ := json.Marshal(cursorWire{T: c.UpdatedAt.UnixMicro(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(b)
}

// Precedes reports whether (t, id) sorts strictly after the cursor.
func (c Cursor) Precedes(t time.Time, id string) bool {
	if t.Equal(c.UpdatedAt) {
		return id > c.ID
	}
	return t.After(c.UpdatedAt)
}

// DecodeCursor parses a token produced by Cursor.Encode.
func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", common.ErrValidation)
	}
	var w cursorWire
	if err := json.Unmarshal(b, &w); err != nil || w.ID == "" {
		return nil, fmt.Errorf("%w: malformed cursor", common.ErrValidation)
	}
	return &Cursor{UpdatedAt: time.UnixMicro(w.T).UTC(), ID: w.ID}, nil
}
