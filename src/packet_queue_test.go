package asciichat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketQueueFIFO(t *testing.T) {
	var q, err = packet_queue_create(4)
	require.NoError(t, err)

	require.NoError(t, q.enqueue([]byte("one"), false))
	require.NoError(t, q.enqueue([]byte("two"), false))

	var first, deq_err = q.dequeue()
	require.NoError(t, deq_err)
	assert.Equal(t, "one", string(first))
	q.release(first)

	var second, deq_err2 = q.dequeue()
	require.NoError(t, deq_err2)
	assert.Equal(t, "two", string(second))
	q.release(second)
}

func TestPacketQueueFullRejectsWithoutDrop(t *testing.T) {
	var q, _ = packet_queue_create(2)

	require.NoError(t, q.enqueue([]byte("a"), false))
	require.NoError(t, q.enqueue([]byte("b"), false))

	var err = q.enqueue([]byte("c"), false)
	assert.ErrorIs(t, err, ErrResourceExhausted)

	var st = q.stats()
	assert.Equal(t, 2, st.depth)
	assert.Zero(t, st.dropped)
}

func TestPacketQueueDropOldest(t *testing.T) {
	var q, _ = packet_queue_create(2)

	require.NoError(t, q.enqueue([]byte("stale"), true))
	require.NoError(t, q.enqueue([]byte("old"), true))
	require.NoError(t, q.enqueue([]byte("fresh"), true))

	var st = q.stats()
	assert.EqualValues(t, 1, st.dropped)
	assert.Equal(t, 2, st.depth)

	var first, err = q.dequeue()
	require.NoError(t, err)
	assert.Equal(t, "old", string(first), "the stalest frame is the one dropped")
	q.release(first)
}

func TestPacketQueueBlockingDequeue(t *testing.T) {
	var q, _ = packet_queue_create(2)

	var got = make(chan string, 1)
	go func() {
		var buf, err = q.dequeue()
		if err != nil {
			got <- "error: " + err.Error()
			return
		}
		got <- string(buf)
		q.release(buf)
	}()

	SLEEP_MS(20)
	require.NoError(t, q.enqueue([]byte("wakeup"), false))

	select {
	case v := <-got:
		assert.Equal(t, "wakeup", v)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue never woke")
	}
}

func TestPacketQueueDequeueTimeout(t *testing.T) {
	var q, _ = packet_queue_create(2)

	var start = time.Now()
	var _, err = q.dequeue_timeout(30 * time.Millisecond)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestPacketQueueClose(t *testing.T) {
	var q, _ = packet_queue_create(2)
	require.NoError(t, q.enqueue([]byte("last"), false))

	q.close()

	assert.ErrorIs(t, q.enqueue([]byte("too late"), false), ErrQueueClosed)

	// Queued packets remain readable after close...
	var buf, err = q.dequeue()
	require.NoError(t, err)
	assert.Equal(t, "last", string(buf))
	q.release(buf)

	// ...then the drained queue reports closed.
	_, err = q.dequeue()
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestPacketQueueCloseWakesWaiter(t *testing.T) {
	var q, _ = packet_queue_create(1)

	var done = make(chan error, 1)
	go func() {
		var _, err = q.dequeue()
		done <- err
	}()

	SLEEP_MS(10)
	q.close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("close did not wake the waiter")
	}
}

func TestPacketQueueStatsCount(t *testing.T) {
	var q, _ = packet_queue_create(8)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.enqueue([]byte{byte(i)}, false))
	}
	for i := 0; i < 3; i++ {
		var buf, err = q.dequeue()
		require.NoError(t, err)
		q.release(buf)
	}

	var st = q.stats()
	assert.EqualValues(t, 5, st.enqueued)
	assert.EqualValues(t, 3, st.dequeued)
	assert.Equal(t, 2, st.depth)
}
