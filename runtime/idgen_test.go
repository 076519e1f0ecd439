package runtime

import (
	"chat-relay/errors"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"
)

func TestIDGenerator_Alphanumeric_Of_Requested_Length(t *testing.T) {
	req := require.New(t)
	gen := NewIDGenerator()

	id, err := gen.Generate(UserIDLength, func(string) bool { return false })

	req.NoError(err)
	req.Len(id, UserIDLength)
	for _, r := range id {
		req.True(unicode.IsDigit(r) || unicode.IsLetter(r), "unexpected rune %q", r)
	}
}

func TestIDGenerator_Widens_When_Length_Is_Saturated(t *testing.T) {
	req := require.New(t)
	gen := NewIDGenerator()

	// Given every id of the starting length is taken
	id, err := gen.Generate(2, func(id string) bool { return len(id) == 2 })

	// Then a longer id is produced
	req.NoError(err)
	req.Len(id, 2+widenStep)
}

func TestIDGenerator_Gives_Up_On_A_Saturated_Space(t *testing.T) {
	gen := NewIDGenerator()

	_, err := gen.Generate(3, func(string) bool { return true })

	require.ErrorIs(t, err, errors.ErrIDSpaceExhausted)
}

func TestIDGenerator_Retries_On_Collision(t *testing.T) {
	req := require.New(t)
	samples := []string{"taken", "taken", "free"}
	gen := IDGenerator{sample: func(int) string {
		s := samples[0]
		samples = samples[1:]
		return s
	}}

	id, err := gen.Generate(5, func(id string) bool { return id == "taken" })

	req.NoError(err)
	req.Equal("free", id)
}
