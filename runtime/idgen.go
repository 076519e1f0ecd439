package runtime

import (
	"chat-relay/errors"
	"fmt"
	"math/rand/v2"
)

const (
	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// UserIDLength and ChatIDLength are the starting lengths of generated ids.
	UserIDLength = 10
	ChatIDLength = 20

	attemptsPerLength = 64
	widenStep         = 4
	maxWidenings      = 4
)

// IDGenerator samples alphanumeric ids until one is not taken.
// After attemptsPerLength collisions the length widens by widenStep, at most maxWidenings times.
type IDGenerator struct {
	sample func(length int) string
}

func NewIDGenerator() IDGenerator {
	return IDGenerator{sample: randomString}
}

// Generate returns an id of at least length characters for which taken reports false.
func (g IDGenerator) Generate(length int, taken func(string) bool) (string, error) {
	for widening := 0; widening <= maxWidenings; widening++ {
		size := length + widening*widenStep
		for attempt := 0; attempt < attemptsPerLength; attempt++ {
			id := g.sample(size)
			if !taken(id) {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %d characters", errors.ErrIDSpaceExhausted, length+maxWidenings*widenStep)
}

func randomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(b)
}
