// Package ids issues the ULID primary keys used by every directory entity.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var generator = struct {
	sync.Mutex
	entropy *ulid.MonotonicEntropy
}{
	entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
}

// New returns a fresh ULID string. Ids minted in the same millisecond stay
// ordered thanks to the monotonic entropy source.
func New() string {
	now := time.Now()
	generator.Lock()
	defer generator.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), generator.entropy).String()
}
