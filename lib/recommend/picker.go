package recommend

import (
	"math/rand"
	"sync"
	"time"
)

// Picker chooses an index in [0, n). Implementations must be safe for
// concurrent use when shared across requests.
type Picker interface {
	Intn(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewPicker returns a uniform Picker. A zero seed seeds from the clock.
func NewPicker(seed int64) Picker {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{r: rand.New(rand.NewSource(seed))} //nolint:gosec // selection, not security
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
