package v1

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_LockSessionDropsEntryAfterUnlock(t *testing.T) {
	unlock := lockSession("lock-test-1")
	assert.True(t, sessionLocks.Has("lock-test-1"))

	unlock()
	assert.False(t, sessionLocks.Has("lock-test-1"))
}

func Test_LockSessionKeepsEntryWhileContended(t *testing.T) {
	const workers = 8

	var inCritical bool
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := lockSession("lock-test-2")
			defer unlock()

			if inCritical {
				t.Error("two holders inside the critical section")
			}
			inCritical = true
			inCritical = false
		}()
	}
	wg.Wait()

	// The last unlock takes the map entry with it.
	assert.False(t, sessionLocks.Has("lock-test-2"))
}
