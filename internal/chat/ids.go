package chat

import "github.com/oklog/ulid/v2"

// NewSessionID returns a 26-char ULID. ulid.Make draws from a process-wide
// monotonic source, so ids created in the same millisecond still sort.
func NewSessionID() string {
	return ulid.Make().String()
}
