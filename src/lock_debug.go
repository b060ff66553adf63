package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Lock acquisition tracker.
 *
 * Description:	Real-time pipelines die from two lock bugs: something
 *		held too long, and something never released.  Every
 *		mutex, rwlock, and condvar in the core goes through the
 *		tracked wrappers below.  Each acquire records who/where/
 *		when plus a backtrace, keyed by (lock address, lock type,
 *		goroutine); the matching release removes the record and
 *		folds the hold time into per-site usage statistics.  A
 *		release with no record lands in the orphan map.
 *
 *		The registry is always safe to call: before
 *		lock_debug_init (or after shutdown) the wrappers degrade
 *		to the plain sync primitive.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

type lock_type_t int

const (
	LOCK_TYPE_MUTEX lock_type_t = iota
	LOCK_TYPE_RWLOCK_RD
	LOCK_TYPE_RWLOCK_WR
	LOCK_TYPE_COND
)

func (lt lock_type_t) String() string {
	switch lt {
	case LOCK_TYPE_MUTEX:
		return "mutex"
	case LOCK_TYPE_RWLOCK_RD:
		return "rwlock-rd"
	case LOCK_TYPE_RWLOCK_WR:
		return "rwlock-wr"
	case LOCK_TYPE_COND:
		return "cond"
	}
	return "unknown"
}

const LOCK_BACKTRACE_DEPTH = 16

type lock_site_t struct {
	file     string
	line     int
	function string
}

type lock_record_t struct {
	addr        uintptr
	ltype       lock_type_t
	gid         uint64
	acquired_at time.Time
	site        lock_site_t
	backtrace   []uintptr
}

/* Aggregate per call site, for the lifetime of the process. */

type lock_usage_stats_t struct {
	site     lock_site_t
	ltype    lock_type_t
	count    uint64
	total_ns int64
	min_ns   int64
	max_ns   int64
	first    time.Time
	last     time.Time
}

type lock_orphan_t struct {
	addr  uintptr
	ltype lock_type_t
	gid   uint64
	site  lock_site_t
	when  time.Time
	count uint64
}

type lock_debug_manager_t struct {
	held_lock   sync.RWMutex
	held        map[uint64]*lock_record_t
	orphan_lock sync.RWMutex
	orphans     map[uint64]*lock_orphan_t
	stats_lock  sync.RWMutex
	stats       map[uint64]*lock_usage_stats_t

	acquired atomic.Uint64
	released atomic.Uint64
	held_now atomic.Int64

	dump_request chan struct{}
	quit         chan struct{}
}

/* Process singleton.  Loaded/stored atomically so the tracked wrappers
 * can test it without any ordering requirements on init/shutdown. */

var lock_debug atomic.Pointer[lock_debug_manager_t]

func lock_debug_init() {
	if lock_debug.Load() != nil {
		return
	}
	var mgr = &lock_debug_manager_t{
		held:         make(map[uint64]*lock_record_t),
		orphans:      make(map[uint64]*lock_orphan_t),
		stats:        make(map[uint64]*lock_usage_stats_t),
		dump_request: make(chan struct{}, 1),
		quit:         make(chan struct{}),
	}
	lock_debug.Store(mgr)

	go lock_debug_monitor(mgr)
}

/*
 * Shutdown must observe every record drain before the maps go away.
 * Callers that cannot guarantee quiescence get a warning instead of a
 * teardown.
 */

func lock_debug_shutdown() {
	var mgr = lock_debug.Load()
	if mgr == nil {
		return
	}

	// Give in-flight critical sections a moment to drain before the
	// maps go away.
	var remaining = 0
	for deadline := time.Now().Add(100 * time.Millisecond); ; {
		mgr.held_lock.RLock()
		remaining = len(mgr.held)
		mgr.held_lock.RUnlock()
		if remaining == 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if remaining != 0 {
		logger.Warn("lock debug shutdown with locks still held", "held", remaining)
		lock_debug_dump(os.Stderr)
		return
	}

	close(mgr.quit)
	lock_debug.Store(nil)
}

/* FNV-1a over the identifying fields.  Same key on acquire and release
 * finds the same record. */

func lock_key(addr uintptr, ltype lock_type_t, gid uint64) uint64 {
	const offset = 14695981039346656037
	const prime = 1099511628211

	var h uint64 = offset
	var mix = func(v uint64) {
		for i := 0; i < 8; i++ {
			h ^= (v >> (8 * i)) & 0xFF
			h *= prime
		}
	}
	mix(uint64(addr))
	mix(uint64(ltype))
	mix(gid)
	return h
}

func lock_stats_key(site lock_site_t, ltype lock_type_t) uint64 {
	const offset = 14695981039346656037
	const prime = 1099511628211

	var h uint64 = offset
	for _, b := range []byte(site.file) {
		h ^= uint64(b)
		h *= prime
	}
	for _, b := range []byte(site.function) {
		h ^= uint64(b)
		h *= prime
	}
	h ^= uint64(site.line)
	h *= prime
	h ^= uint64(ltype)
	h *= prime
	return h
}

/*
 * Goroutine id, parsed out of the first line of the stack header.
 * The runtime does not expose it on purpose; for diagnostics keyed by
 * "which thread of execution holds this", it is exactly what we need.
 */

func goroutine_id() uint64 {
	var buf [64]byte
	var n = runtime.Stack(buf[:], false)
	// "goroutine 123 [running]:"
	var fields = bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	var id, err = strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

/* Call site of the wrapper's caller: skip runtime.Callers, the capture
 * helper, the acquired/released hook, and the Lock/Unlock wrapper itself. */

func lock_capture_site(skip int) (lock_site_t, []uintptr) {
	var pcs [LOCK_BACKTRACE_DEPTH]uintptr
	var n = runtime.Callers(skip, pcs[:])
	var trace = make([]uintptr, n)
	copy(trace, pcs[:n])

	var site lock_site_t
	if n > 0 {
		var frame, _ = runtime.CallersFrames(trace).Next()
		site = lock_site_t{file: frame.File, line: frame.Line, function: frame.Function}
	}
	return site, trace
}

func lock_debug_acquired(addr uintptr, ltype lock_type_t) {
	var mgr = lock_debug.Load()
	if mgr == nil {
		return
	}

	var site, trace = lock_capture_site(4)
	var gid = goroutine_id()
	var rec = &lock_record_t{
		addr:        addr,
		ltype:       ltype,
		gid:         gid,
		acquired_at: time.Now(),
		site:        site,
		backtrace:   trace,
	}

	mgr.held_lock.Lock()
	mgr.held[lock_key(addr, ltype, gid)] = rec
	mgr.held_lock.Unlock()

	mgr.acquired.Add(1)
	mgr.held_now.Add(1)
}

func lock_debug_released(addr uintptr, ltype lock_type_t) {
	var mgr = lock_debug.Load()
	if mgr == nil {
		return
	}

	var gid = goroutine_id()
	var key = lock_key(addr, ltype, gid)

	mgr.held_lock.Lock()
	var rec, ok = mgr.held[key]
	if ok {
		delete(mgr.held, key)
	}
	mgr.held_lock.Unlock()

	var site, _ = lock_capture_site(4)

	if !ok {
		mgr.orphan_lock.Lock()
		var orphan, seen = mgr.orphans[key]
		if seen {
			orphan.count++
			orphan.when = time.Now()
		} else {
			mgr.orphans[key] = &lock_orphan_t{
				addr:  addr,
				ltype: ltype,
				gid:   gid,
				site:  site,
				when:  time.Now(),
				count: 1,
			}
		}
		mgr.orphan_lock.Unlock()
		return
	}

	var hold = time.Since(rec.acquired_at).Nanoseconds()

	mgr.stats_lock.Lock()
	var skey = lock_stats_key(site, ltype)
	var st, have = mgr.stats[skey]
	if !have {
		st = &lock_usage_stats_t{
			site:   site,
			ltype:  ltype,
			min_ns: hold,
			max_ns: hold,
			first:  rec.acquired_at,
		}
		mgr.stats[skey] = st
	}
	st.count++
	st.total_ns += hold
	if hold < st.min_ns {
		st.min_ns = hold
	}
	if hold > st.max_ns {
		st.max_ns = hold
	}
	st.last = rec.acquired_at
	mgr.stats_lock.Unlock()

	mgr.released.Add(1)
	mgr.held_now.Add(-1)
}

/*-------------------------------------------------------------------
 *
 * Name:        lock_debug_dump
 *
 * Purpose:     Print every currently-held lock with its backtrace,
 *		every orphaned release, and the per-site statistics.
 *
 * Description:	Traversal takes only read locks, so a dump never blocks
 *		the hot path for longer than a map read.
 *
 *--------------------------------------------------------------------*/

func lock_debug_dump(w io.Writer) {
	var mgr = lock_debug.Load()
	if mgr == nil {
		fmt.Fprintf(w, "lock debug not initialized\n")
		return
	}

	fmt.Fprintf(w, "=== lock debug: acquired=%d released=%d held=%d ===\n",
		mgr.acquired.Load(), mgr.released.Load(), mgr.held_now.Load())

	mgr.held_lock.RLock()
	fmt.Fprintf(w, "--- held locks: %d ---\n", len(mgr.held))
	for _, rec := range mgr.held {
		fmt.Fprintf(w, "%s @ 0x%x goroutine %d, held %v, acquired at %s:%d (%s)\n",
			rec.ltype, rec.addr, rec.gid, time.Since(rec.acquired_at),
			rec.site.file, rec.site.line, rec.site.function)
		var frames = runtime.CallersFrames(rec.backtrace)
		for {
			var frame, more = frames.Next()
			fmt.Fprintf(w, "\t%s\n\t\t%s:%d\n", frame.Function, frame.File, frame.Line)
			if !more {
				break
			}
		}
	}
	mgr.held_lock.RUnlock()

	mgr.orphan_lock.RLock()
	fmt.Fprintf(w, "--- orphan releases: %d ---\n", len(mgr.orphans))
	for _, orphan := range mgr.orphans {
		fmt.Fprintf(w, "%s @ 0x%x goroutine %d x%d, last at %v, release site %s:%d (%s)\n",
			orphan.ltype, orphan.addr, orphan.gid, orphan.count, orphan.when,
			orphan.site.file, orphan.site.line, orphan.site.function)
	}
	mgr.orphan_lock.RUnlock()

	mgr.stats_lock.RLock()
	fmt.Fprintf(w, "--- usage stats: %d sites ---\n", len(mgr.stats))
	for _, st := range mgr.stats {
		fmt.Fprintf(w, "%s %s:%d (%s): count=%d total=%dns min=%dns max=%dns\n",
			st.ltype, st.site.file, st.site.line, st.site.function,
			st.count, st.total_ns, st.min_ns, st.max_ns)
	}
	mgr.stats_lock.RUnlock()
}

/* The '?' key (or anything else) pokes this; the monitor goroutine does
 * the actual printing so the requester never blocks on terminal IO. */

func lock_debug_request_dump() {
	var mgr = lock_debug.Load()
	if mgr == nil {
		return
	}
	select {
	case mgr.dump_request <- struct{}{}:
	default:
	}
}

func lock_debug_monitor(mgr *lock_debug_manager_t) {
	for {
		select {
		case <-mgr.dump_request:
			lock_debug_dump(os.Stderr)
		case <-mgr.quit:
			return
		}
	}
}

func lock_debug_counters() (acquired uint64, released uint64, held int64) {
	var mgr = lock_debug.Load()
	if mgr == nil {
		return 0, 0, 0
	}
	return mgr.acquired.Load(), mgr.released.Load(), mgr.held_now.Load()
}

/*
 * Tracked primitives.  Same shape as sync.Mutex / sync.RWMutex /
 * sync.Cond so swapping one in is a type change, not a code change.
 * The underlying primitive is always invoked first; the bookkeeping
 * happens while the lock is held (acquire) or just before release.
 */

type tracked_mutex struct {
	mu sync.Mutex
}

func (m *tracked_mutex) Lock() {
	m.mu.Lock()
	lock_debug_acquired(uintptr(unsafe.Pointer(m)), LOCK_TYPE_MUTEX)
}

func (m *tracked_mutex) Unlock() {
	lock_debug_released(uintptr(unsafe.Pointer(m)), LOCK_TYPE_MUTEX)
	m.mu.Unlock()
}

type tracked_rwlock struct {
	mu sync.RWMutex
}

func (rw *tracked_rwlock) RLock() {
	rw.mu.RLock()
	lock_debug_acquired(uintptr(unsafe.Pointer(rw)), LOCK_TYPE_RWLOCK_RD)
}

func (rw *tracked_rwlock) RUnlock() {
	lock_debug_released(uintptr(unsafe.Pointer(rw)), LOCK_TYPE_RWLOCK_RD)
	rw.mu.RUnlock()
}

func (rw *tracked_rwlock) Lock() {
	rw.mu.Lock()
	lock_debug_acquired(uintptr(unsafe.Pointer(rw)), LOCK_TYPE_RWLOCK_WR)
}

func (rw *tracked_rwlock) Unlock() {
	lock_debug_released(uintptr(unsafe.Pointer(rw)), LOCK_TYPE_RWLOCK_WR)
	rw.mu.Unlock()
}

/*
 * Condition variable over a tracked mutex.  Wait gives up the mutex,
 * so the registry sees it released for the duration of the wait and
 * re-acquired on wakeup.  wait_timeout blocks for at most d; like
 * pthread_cond_timedwait the caller must re-check the predicate either
 * way, because the broadcast used to implement the timeout wakes every
 * waiter.
 */

type tracked_cond struct {
	c *sync.Cond
	m *tracked_mutex
}

func tracked_cond_create(m *tracked_mutex) *tracked_cond {
	return &tracked_cond{c: sync.NewCond(&m.mu), m: m}
}

func (tc *tracked_cond) wait() {
	lock_debug_released(uintptr(unsafe.Pointer(tc.m)), LOCK_TYPE_MUTEX)
	tc.c.Wait()
	lock_debug_acquired(uintptr(unsafe.Pointer(tc.m)), LOCK_TYPE_MUTEX)
}

/* Returns false when the timer fired before a signal arrived. */

func (tc *tracked_cond) wait_timeout(d time.Duration) bool {
	var timer = time.AfterFunc(d, func() {
		tc.c.Broadcast()
	})
	lock_debug_released(uintptr(unsafe.Pointer(tc.m)), LOCK_TYPE_MUTEX)
	tc.c.Wait()
	lock_debug_acquired(uintptr(unsafe.Pointer(tc.m)), LOCK_TYPE_MUTEX)
	return timer.Stop()
}

func (tc *tracked_cond) signal() {
	tc.c.Signal()
}

func (tc *tracked_cond) broadcast() {
	tc.c.Broadcast()
}
