package khalti

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

const referencePrefix = "STB"

var refCounter atomic.Uint64

// GenerateReference produces a human-traceable correlation id distinct from
// pidx: namespace prefix, millisecond timestamp, a process-wide counter and
// a random suffix. Practically unique across concurrent callers without
// coordination, but not cryptographically unpredictable; never use it as a
// security token.
func GenerateReference() string {
	seq := refCounter.Add(1) % 1_000_000
	return fmt.Sprintf("%s-%d-%06d%04x", referencePrefix, time.Now().UnixMilli(), seq, rand.Uint32()&0xffff)
}
