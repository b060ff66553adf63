package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Pre-allocated buffer pool for the hot paths.
 *
 * Description:	The render pipeline and the packet queues churn through
 *		buffers at frame rate.  Rather than hammering the
 *		allocator, four size classes are carved out up front,
 *		each one contiguous backing block with an intrusive LIFO
 *		free list over it.  LIFO keeps the most recently touched
 *		block hottest in cache.
 *
 *		An allocation dispatches to the smallest class that fits.
 *		If the class is dry, or the request is bigger than the
 *		biggest class, we fall back to the regular allocator and
 *		count it.  The caller frees with the same size it
 *		allocated with, which is how the class is recovered
 *		without per-block metadata.
 *
 *---------------------------------------------------------------*/

import (
	"sync"
	"unsafe"
)

const (
	BUFFER_POOL_SMALL_SIZE  = 1024
	BUFFER_POOL_MEDIUM_SIZE = 64 * 1024
	BUFFER_POOL_LARGE_SIZE  = 256 * 1024
	BUFFER_POOL_XLARGE_SIZE = 2 * 1024 * 1024

	BUFFER_POOL_SMALL_COUNT  = 64
	BUFFER_POOL_MEDIUM_COUNT = 32
	BUFFER_POOL_LARGE_COUNT  = 16
	BUFFER_POOL_XLARGE_COUNT = 8
)

type pool_node_t struct {
	next   *pool_node_t
	index  int
	in_use bool
}

/* One size class: a backing block, pool_size nodes over it, and the
 * free list threaded through the nodes. */

type buffer_pool_t struct {
	buffer_size int
	pool_size   int
	backing     []byte
	nodes       []pool_node_t
	free_head   *pool_node_t

	used_count int
	peak_used  int
	hits       uint64
	misses     uint64
	returns    uint64
}

func buffer_pool_create(buffer_size int, pool_size int) *buffer_pool_t {
	var p = &buffer_pool_t{
		buffer_size: buffer_size,
		pool_size:   pool_size,
		backing:     make([]byte, buffer_size*pool_size),
		nodes:       make([]pool_node_t, pool_size),
	}

	// Thread the free list back to front so node 0 pops first.
	for i := pool_size - 1; i >= 0; i-- {
		p.nodes[i].index = i
		p.nodes[i].next = p.free_head
		p.free_head = &p.nodes[i]
	}

	return p
}

/* Pop one node.  Caller holds the manager mutex. */

func (p *buffer_pool_t) get() []byte {
	var node = p.free_head
	if node == nil {
		p.misses++
		return nil
	}
	p.free_head = node.next
	node.next = nil
	node.in_use = true

	p.used_count++
	if p.used_count > p.peak_used {
		p.peak_used = p.used_count
	}
	p.hits++

	var off = node.index * p.buffer_size
	return p.backing[off : off+p.buffer_size : off+p.buffer_size]
}

/* Push a buffer back if it belongs to this class's backing block.
 * Returns false for foreign (fallback) pointers.  Caller holds the
 * manager mutex. */

func (p *buffer_pool_t) put(buf []byte) bool {
	if len(buf) == 0 || len(p.backing) == 0 {
		return false
	}
	var base = uintptr(unsafe.Pointer(&p.backing[0]))
	var addr = uintptr(unsafe.Pointer(&buf[0]))
	if addr < base || addr >= base+uintptr(len(p.backing)) {
		return false
	}

	var node = &p.nodes[int(addr-base)/p.buffer_size]
	if !node.in_use {
		logger.Error("buffer pool double free", "class", p.buffer_size, "index", node.index)
		return true
	}
	node.in_use = false
	node.next = p.free_head
	p.free_head = node

	p.used_count--
	p.returns++
	return true
}

func (p *buffer_pool_t) free_list_length() int {
	var n = 0
	for node := p.free_head; node != nil; node = node.next {
		n++
	}
	return n
}

/* Per-class counters, snapshotted under the manager mutex. */

type buffer_pool_class_stats_t struct {
	buffer_size int
	pool_size   int
	used_count  int
	peak_used   int
	hits        uint64
	misses      uint64
	returns     uint64
	bytes       int
}

type buffer_pool_stats_t struct {
	small  buffer_pool_class_stats_t
	medium buffer_pool_class_stats_t
	large  buffer_pool_class_stats_t
	xlarge buffer_pool_class_stats_t

	total_allocs     uint64
	total_frees      uint64
	malloc_fallbacks uint64
}

/* The manager: four classes under one mutex. */

type data_buffer_pool_t struct {
	mu     tracked_mutex
	small  *buffer_pool_t
	medium *buffer_pool_t
	large  *buffer_pool_t
	xlarge *buffer_pool_t

	total_allocs     uint64
	total_frees      uint64
	malloc_fallbacks uint64
}

func data_buffer_pool_create() *data_buffer_pool_t {
	return &data_buffer_pool_t{
		small:  buffer_pool_create(BUFFER_POOL_SMALL_SIZE, BUFFER_POOL_SMALL_COUNT),
		medium: buffer_pool_create(BUFFER_POOL_MEDIUM_SIZE, BUFFER_POOL_MEDIUM_COUNT),
		large:  buffer_pool_create(BUFFER_POOL_LARGE_SIZE, BUFFER_POOL_LARGE_COUNT),
		xlarge: buffer_pool_create(BUFFER_POOL_XLARGE_SIZE, BUFFER_POOL_XLARGE_COUNT),
	}
}

/* Smallest class whose buffers fit size, or nil when size exceeds them all. */

func (dp *data_buffer_pool_t) class_for(size int) *buffer_pool_t {
	switch {
	case size <= BUFFER_POOL_SMALL_SIZE:
		return dp.small
	case size <= BUFFER_POOL_MEDIUM_SIZE:
		return dp.medium
	case size <= BUFFER_POOL_LARGE_SIZE:
		return dp.large
	case size <= BUFFER_POOL_XLARGE_SIZE:
		return dp.xlarge
	}
	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        data_buffer_pool_t.alloc
 *
 * Purpose:     Hand out a buffer of at least size bytes.
 *
 * Inputs:	size	- Requested length in bytes, > 0.
 *
 * Returns:	A slice of exactly size bytes (capacity may be the full
 *		class buffer), or nil for a non-positive size.  Never
 *		fails otherwise: pool exhaustion and oversized requests
 *		fall back to the regular allocator.
 *
 *--------------------------------------------------------------------*/

func (dp *data_buffer_pool_t) alloc(size int) []byte {
	if size <= 0 {
		return nil
	}

	dp.mu.Lock()
	dp.total_allocs++
	var class = dp.class_for(size)
	if class != nil {
		var buf = class.get()
		if buf != nil {
			dp.mu.Unlock()
			return buf[:size]
		}
	}
	dp.malloc_fallbacks++
	dp.mu.Unlock()

	return make([]byte, size)
}

/*-------------------------------------------------------------------
 *
 * Name:        data_buffer_pool_t.free
 *
 * Purpose:     Return a buffer to its class.
 *
 * Inputs:	buf	- The slice returned by alloc.
 *		size	- The SAME size passed to alloc.  This recovers
 *			  the class; there is no per-block metadata.
 *
 * Description:	A pointer outside the class backing block was a fallback
 *		allocation; the garbage collector owns it and there is
 *		nothing to do beyond counting.
 *
 *--------------------------------------------------------------------*/

func (dp *data_buffer_pool_t) free(buf []byte, size int) {
	if buf == nil || size <= 0 {
		return
	}

	dp.mu.Lock()
	dp.total_frees++
	var class = dp.class_for(size)
	if class != nil && class.put(buf) {
		dp.mu.Unlock()
		return
	}
	dp.mu.Unlock()
	// Fallback allocation: dropped here, collected later.
}

func (dp *data_buffer_pool_t) stats() buffer_pool_stats_t {
	var class_stats = func(p *buffer_pool_t) buffer_pool_class_stats_t {
		return buffer_pool_class_stats_t{
			buffer_size: p.buffer_size,
			pool_size:   p.pool_size,
			used_count:  p.used_count,
			peak_used:   p.peak_used,
			hits:        p.hits,
			misses:      p.misses,
			returns:     p.returns,
			bytes:       len(p.backing),
		}
	}

	dp.mu.Lock()
	defer dp.mu.Unlock()
	return buffer_pool_stats_t{
		small:            class_stats(dp.small),
		medium:           class_stats(dp.medium),
		large:            class_stats(dp.large),
		xlarge:           class_stats(dp.xlarge),
		total_allocs:     dp.total_allocs,
		total_frees:      dp.total_frees,
		malloc_fallbacks: dp.malloc_fallbacks,
	}
}

/* Process-wide singleton.  Lazy, idempotent init; explicit teardown at
 * shutdown. */

var global_pool_once sync.Once
var global_pool *data_buffer_pool_t

func data_buffer_pool_init_global() {
	global_pool_once.Do(func() {
		global_pool = data_buffer_pool_create()
		logger.Debug("global buffer pool initialized",
			"small", BUFFER_POOL_SMALL_COUNT,
			"medium", BUFFER_POOL_MEDIUM_COUNT,
			"large", BUFFER_POOL_LARGE_COUNT,
			"xlarge", BUFFER_POOL_XLARGE_COUNT)
	})
}

func data_buffer_pool_destroy_global() {
	if global_pool == nil {
		return
	}
	var st = global_pool.stats()
	if st.small.used_count+st.medium.used_count+st.large.used_count+st.xlarge.used_count != 0 {
		logger.Warn("buffer pool destroyed with buffers outstanding",
			"small", st.small.used_count, "medium", st.medium.used_count,
			"large", st.large.used_count, "xlarge", st.xlarge.used_count)
	}
	global_pool = nil
	global_pool_once = sync.Once{}
}

func data_buffer_pool_alloc(size int) []byte {
	data_buffer_pool_init_global()
	return global_pool.alloc(size)
}

func data_buffer_pool_free(buf []byte, size int) {
	if global_pool == nil {
		return
	}
	global_pool.free(buf, size)
}

func data_buffer_pool_get_stats() buffer_pool_stats_t {
	data_buffer_pool_init_global()
	return global_pool.stats()
}
