// Package identifier generates transaction identifiers: 26-character
// ULIDs, lexically sortable by creation time, monotonic within a process.
package identifier

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh transaction id. Never fails; entropy exhaustion
// within a single millisecond is not reachable at our request rates.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
