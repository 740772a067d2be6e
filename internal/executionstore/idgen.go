package executionstore

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDFormat selects how CreateExecution mints execution_id values.
type IDFormat string

const (
	// IDFormatUUID is the default: a random v4 UUID, opaque and unordered.
	IDFormatUUID IDFormat = "uuid"
	// IDFormatULID produces a lexicographically sortable id, so a plain
	// directory listing of progress/<execution_id>.json files sorts by
	// creation time without a separate index.
	IDFormatULID IDFormat = "ulid"
)

var ulidEntropy = struct {
	mu sync.Mutex
	r  *ulid.MonotonicEntropy
}{r: ulid.Monotonic(rand.Reader, 0)}

func newExecutionID(format IDFormat) string {
	if format == IDFormatULID {
		ulidEntropy.mu.Lock()
		defer ulidEntropy.mu.Unlock()
		return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy.r).String()
	}
	return uuid.NewString()
}
