package ids

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ID identifies a party, project, unit type, listing or transaction.
// It is the only identifier representation used past the HTTP boundary;
// handlers must go through Parse so malformed input is rejected once,
// at the edge, instead of being normalized ad hoc downstream.
type ID struct {
	uuid.UUID
}

// Nil is the zero ID.
var Nil = ID{}

var ErrInvalidID = errors.New("invalid id")

// Parse accepts only the canonical 36-character UUID form. Braced,
// URN-prefixed and undashed variants are rejected rather than normalized.
func Parse(s string) (ID, error) {
	if len(s) != 36 || strings.Count(s, "-") != 4 {
		return Nil, ErrInvalidID
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, ErrInvalidID
	}
	return ID{u}, nil
}

// New returns a random ID.
func New() ID {
	return ID{uuid.New()}
}

// IsNil reports whether the ID is unset.
func (id ID) IsNil() bool {
	return id.UUID == uuid.Nil
}
