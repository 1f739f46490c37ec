package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Canonical(t *testing.T) {
	id, err := Parse("b3b8c9d0-1234-4abc-8def-0123456789ab")
	require.NoError(t, err)
	assert.Equal(t, "b3b8c9d0-1234-4abc-8def-0123456789ab", id.String())
}

func TestParse_RejectsNonCanonicalForms(t *testing.T) {
	cases := []string{
		"",
		"not-a-uuid",
		"b3b8c9d012344abc8def0123456789ab",       // undashed
		"{b3b8c9d0-1234-4abc-8def-0123456789ab}", // braced
		"urn:uuid:b3b8c9d0-1234-4abc-8def-0123456789ab", // URN
		"b3b8c9d0-1234-4abc-8def-0123456789ab ",         // trailing space
		"b3b8c9d0-1234-4abc-8def-0123456789az",          // bad hex
		"b3b8-c9d0-1234-4abc-8def0123456789ab",          // dashes misplaced
	}
	for _, s := range cases {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrInvalidID, "input %q", s)
	}
}

func TestNewAndNil(t *testing.T) {
	id := New()
	assert.False(t, id.IsNil())
	assert.True(t, Nil.IsNil())

	// Round-trips through its own string form
	back, err := Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, back)
}
