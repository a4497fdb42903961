package uid

import (
	"strings"

	"github.com/google/uuid"
)

// StringID generates string identifiers.
type StringID interface {
	Generate() string
}

// UUID generates RFC 9562 UUID strings.
type UUID struct{}

// NewUUID returns a UUID generator.
func NewUUID() *UUID {
	return &UUID{}
}

// Generate returns a new UUID string.
func (u *UUID) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString() // fallback: uuidV4
	}
	return id.String()
}

// ShortHex generates short random lowercase hex strings taken from a UUID v4.
// It backs subscription suffixes and message keys where a handful of hex
// characters is enough to avoid collisions between concurrent clients.
type ShortHex struct {
	n int
}

// NewShortHex returns a generator of n hex characters, clamped to [1, 32].
func NewShortHex(n int) *ShortHex {
	n = max(1, min(n, 32))
	return &ShortHex{n: n}
}

// Generate returns a new short hex string.
func (s *ShortHex) Generate() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:s.n]
}
