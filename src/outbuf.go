package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Growable output byte buffer for assembled frames.
 *
 * Description:	The renderer emits rows into the spare capacity of one
 *		of these; when a row does not fit, the buffer doubles
 *		and the row is retried.  Geometric growth keeps the
 *		amortized cost per frame constant once the steady-state
 *		size is reached.
 *
 *---------------------------------------------------------------*/

type outbuf_t struct {
	data   []byte
	length int
}

const OUTBUF_INITIAL_CAP = 4096

func outbuf_create(initial_cap int) *outbuf_t {
	if initial_cap <= 0 {
		initial_cap = OUTBUF_INITIAL_CAP
	}
	return &outbuf_t{data: make([]byte, initial_cap)}
}

func (o *outbuf_t) len() int {
	return o.length
}

func (o *outbuf_t) cap() int {
	return len(o.data)
}

func (o *outbuf_t) bytes() []byte {
	return o.data[:o.length]
}

func (o *outbuf_t) reset() {
	o.length = 0
}

/* Everything past length, for in-place row rendering. */

func (o *outbuf_t) tail() []byte {
	return o.data[o.length:]
}

func (o *outbuf_t) advance(n int) {
	o.length += n
}

/* Ensure at least need spare bytes, doubling until it fits. */

func (o *outbuf_t) grow(need int) {
	var want = o.length + need
	if want <= len(o.data) {
		return
	}
	var newcap = len(o.data)
	if newcap == 0 {
		newcap = OUTBUF_INITIAL_CAP
	}
	for newcap < want {
		newcap *= 2
	}
	var bigger = make([]byte, newcap)
	copy(bigger, o.data[:o.length])
	o.data = bigger
}

func (o *outbuf_t) append_byte(b byte) {
	o.grow(1)
	o.data[o.length] = b
	o.length++
}

func (o *outbuf_t) append_bytes(p []byte) {
	o.grow(len(p))
	copy(o.data[o.length:], p)
	o.length += len(p)
}

func (o *outbuf_t) append_string(s string) {
	o.grow(len(s))
	copy(o.data[o.length:], s)
	o.length += len(s)
}
