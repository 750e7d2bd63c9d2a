package ingest

import (
	"hash/fnv"
	"sync"
)

// keyLocks serializes writes per entity or relationship key. Keys hash onto
// a fixed set of stripes.
type keyLocks struct {
	stripes []sync.Mutex
}

func newKeyLocks(n int) *keyLocks {
	if n < 1 {
		n = 1
	}
	return &keyLocks{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock function. Callers
// hold at most one stripe at a time.
func (k *keyLocks) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	m.Lock()
	return m.Unlock
}
