package feature

// ringBuffer is a fixed-capacity float64 window; pushing past capacity
// overwrites the oldest value.
type ringBuffer struct {
	buf   []float64
	start int
	n     int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]float64, capacity)}
}

func (r *ringBuffer) push(v float64) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// at returns the i-th oldest value.
func (r *ringBuffer) at(i int) float64 {
	return r.buf[(r.start+i)%len(r.buf)]
}

func (r *ringBuffer) len() int { return r.n }

func (r *ringBuffer) full() bool { return r.n == len(r.buf) }

func (r *ringBuffer) last() (float64, bool) {
	if r.n == 0 {
		return 0, false
	}
	return r.at(r.n - 1), true
}
