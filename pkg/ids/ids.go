// Package ids generates record identifiers: sortable ULIDs for append-only
// logs and random UUIDs for domain records.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// ULID returns a lexically sortable id for t. Ids made in the same
// millisecond still sort in creation order.
func ULID(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// UUID returns a random v4 UUID string.
func UUID() string { return uuid.NewString() }
