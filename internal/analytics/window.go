package analytics

import (
	"math"

	"stock-analytics/internal/dataset"
)

// window is a fixed-size trailing window over a value stream. Undefined values
// occupy a slot but do not contribute; statistics are reported only once every
// slot holds a defined value. Running mean and M2 are maintained with
// Welford's add/remove updates, so each push is O(1).
type window struct {
	size   int
	values []float64
	valid  []bool
	head   int
	pushed int

	n    int
	mean float64
	m2   float64
}

func newWindow(size int) *window {
	return &window{
		size:   size,
		values: make([]float64, size),
		valid:  make([]bool, size),
	}
}

func (w *window) push(v float64, ok bool) {
	if w.pushed >= w.size && w.valid[w.head] {
		w.remove(w.values[w.head])
	}
	w.values[w.head] = v
	w.valid[w.head] = ok
	w.head = (w.head + 1) % w.size
	w.pushed++

	if ok {
		w.add(v)
	}
}

func (w *window) add(x float64) {
	w.n++
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (x - w.mean)
}

func (w *window) remove(x float64) {
	if w.n <= 1 {
		w.n, w.mean, w.m2 = 0, 0, 0
		return
	}
	prevMean := w.mean
	w.mean = (float64(w.n)*prevMean - x) / float64(w.n-1)
	w.n--
	w.m2 -= (x - prevMean) * (x - w.mean)
	if w.m2 < 0 {
		w.m2 = 0
	}
}

func (w *window) full() bool {
	return w.n == w.size
}

func (w *window) average() dataset.Float {
	if !w.full() {
		return dataset.Float{}
	}
	return dataset.Some(w.mean)
}

// stddev is the sample standard deviation (n-1 denominator).
func (w *window) stddev() dataset.Float {
	if !w.full() || w.size < 2 {
		return dataset.Float{}
	}
	return dataset.Some(math.Sqrt(w.m2 / float64(w.n-1)))
}
