package asciichat

import (
	"bytes"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uintptr_of_mutex(m *tracked_mutex) uintptr {
	return uintptr(unsafe.Pointer(m))
}

// The registry is process-global; serialize the tests that init/shutdown it.
var lock_debug_test_mutex sync.Mutex

func with_lock_debug(t *testing.T, body func()) {
	t.Helper()
	lock_debug_test_mutex.Lock()
	defer lock_debug_test_mutex.Unlock()

	lock_debug_init()
	defer lock_debug_shutdown()

	body()
}

func TestLockDebugUninitializedIsSafe(t *testing.T) {
	lock_debug_test_mutex.Lock()
	defer lock_debug_test_mutex.Unlock()

	require.Nil(t, lock_debug.Load())

	// Tracked primitives degrade to the plain primitive.
	var m tracked_mutex
	m.Lock()
	m.Unlock()

	var rw tracked_rwlock
	rw.RLock()
	rw.RUnlock()
	rw.Lock()
	rw.Unlock()

	var acquired, released, held = lock_debug_counters()
	assert.Zero(t, acquired)
	assert.Zero(t, released)
	assert.Zero(t, held)
}

func TestLockDebugMatchedPair(t *testing.T) {
	with_lock_debug(t, func() {
		var m tracked_mutex

		m.Lock()

		var mgr = lock_debug.Load()
		var key = lock_key(uintptr_of_mutex(&m), LOCK_TYPE_MUTEX, goroutine_id())
		mgr.held_lock.RLock()
		var _, present = mgr.held[key]
		mgr.held_lock.RUnlock()
		assert.True(t, present, "acquire should create a held record")

		m.Unlock()

		mgr.held_lock.RLock()
		_, present = mgr.held[key]
		mgr.held_lock.RUnlock()
		assert.False(t, present, "matched release should remove the record")

		var acquired, released, held = lock_debug_counters()
		assert.GreaterOrEqual(t, acquired, uint64(1))
		assert.Equal(t, acquired, released)
		assert.EqualValues(t, 0, held)
	})
}

func TestLockDebugAcquiredNeverBelowReleased(t *testing.T) {
	with_lock_debug(t, func() {
		var m tracked_mutex
		for i := 0; i < 100; i++ {
			m.Lock()
			var acquired, released, _ = lock_debug_counters()
			assert.GreaterOrEqual(t, acquired, released)
			m.Unlock()
		}
	})
}

func TestLockDebugOrphanRelease(t *testing.T) {
	with_lock_debug(t, func() {
		var m tracked_mutex
		m.Lock()

		// Unlock from a different goroutine: the record key includes the
		// goroutine id, so the release cannot match and must be recorded
		// as an orphan.
		var done = make(chan struct{})
		go func() {
			m.Unlock()
			close(done)
		}()
		<-done

		var mgr = lock_debug.Load()
		mgr.orphan_lock.RLock()
		var orphans = len(mgr.orphans)
		mgr.orphan_lock.RUnlock()
		assert.Equal(t, 1, orphans)

		// The original goroutine's record is still "held"; drop it so
		// shutdown sees a drained registry.
		mgr.held_lock.Lock()
		for k := range mgr.held {
			delete(mgr.held, k)
		}
		mgr.held_lock.Unlock()
		mgr.held_now.Store(0)
	})
}

func TestLockDebugHoldTimeStats(t *testing.T) {
	with_lock_debug(t, func() {
		var m tracked_mutex
		m.Lock()
		SLEEP_MS(2)
		m.Unlock()

		var mgr = lock_debug.Load()
		mgr.stats_lock.RLock()
		defer mgr.stats_lock.RUnlock()
		require.NotEmpty(t, mgr.stats)
		var found = false
		for _, st := range mgr.stats {
			if st.ltype == LOCK_TYPE_MUTEX && st.count >= 1 {
				found = true
				assert.GreaterOrEqual(t, st.max_ns, int64(2*time.Millisecond))
				assert.LessOrEqual(t, st.min_ns, st.max_ns)
				assert.GreaterOrEqual(t, st.total_ns, st.max_ns)
			}
		}
		assert.True(t, found)
	})
}

func TestLockDebugDumpShowsHeldLock(t *testing.T) {
	with_lock_debug(t, func() {
		var m tracked_mutex
		m.Lock()

		var out bytes.Buffer
		lock_debug_dump(&out)
		assert.Contains(t, out.String(), "held locks: 1")
		assert.Contains(t, out.String(), "lock_debug_test.go")

		m.Unlock()

		out.Reset()
		lock_debug_dump(&out)
		assert.Contains(t, out.String(), "held locks: 0")
	})
}

func TestLockDebugCondWaitTimeout(t *testing.T) {
	with_lock_debug(t, func() {
		var m tracked_mutex
		var cond = tracked_cond_create(&m)

		m.Lock()
		var start = time.Now()
		var signalled = cond.wait_timeout(10 * time.Millisecond)
		m.Unlock()

		assert.False(t, signalled, "nobody signalled; the timer must have fired")
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

		var _, _, held = lock_debug_counters()
		assert.EqualValues(t, 0, held)
	})
}

func TestLockDebugCondSignal(t *testing.T) {
	with_lock_debug(t, func() {
		var m tracked_mutex
		var cond = tracked_cond_create(&m)
		var ready = false

		var done = make(chan struct{})
		go func() {
			m.Lock()
			for !ready {
				cond.wait()
			}
			m.Unlock()
			close(done)
		}()

		SLEEP_MS(5)
		m.Lock()
		ready = true
		cond.signal()
		m.Unlock()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("cond wait never woke up")
		}
	})
}

func TestLockDebugRequestDump(t *testing.T) {
	with_lock_debug(t, func() {
		// Just exercise the trigger path; output goes to stderr via the
		// monitor goroutine.
		lock_debug_request_dump()
		SLEEP_MS(10)
	})
}

func TestLockDebugKeyIsStable(t *testing.T) {
	var a = lock_key(0xDEADBEEF, LOCK_TYPE_MUTEX, 7)
	var b = lock_key(0xDEADBEEF, LOCK_TYPE_MUTEX, 7)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, lock_key(0xDEADBEEF, LOCK_TYPE_RWLOCK_RD, 7))
	assert.NotEqual(t, a, lock_key(0xDEADBEEF, LOCK_TYPE_MUTEX, 8))
	assert.NotEqual(t, a, lock_key(0xDEADBEF0, LOCK_TYPE_MUTEX, 7))
}
