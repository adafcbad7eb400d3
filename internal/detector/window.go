package detector

import "fmt"

// Number covers the two sample types the pipeline aggregates: integer CPM
// and floating-point dose rate.
type Number interface {
	~int | ~float64
}

// Stats summarizes the current contents of a window. Value is the most
// recently pushed sample; Avg is always a float64 mean regardless of the
// sample type.
type Stats[T Number] struct {
	Value T
	Min   T
	Max   T
	Avg   float64
}

// Window is a fixed-capacity FIFO ring buffer of samples. When full, a
// push evicts the oldest sample. Insertion order is arrival order.
type Window[T Number] struct {
	items []T
	head  int
	size  int
}

// NewWindow creates a window holding at most capacity samples.
func NewWindow[T Number](capacity int) (*Window[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("window capacity must be at least 1, got %d", capacity)
	}
	return &Window[T]{items: make([]T, capacity)}, nil
}

// Push appends a sample, evicting the oldest one if the window is full.
func (w *Window[T]) Push(v T) {
	if w.size < len(w.items) {
		w.items[(w.head+w.size)%len(w.items)] = v
		w.size++
		return
	}
	w.items[w.head] = v
	w.head = (w.head + 1) % len(w.items)
}

// Len returns the number of samples currently held.
func (w *Window[T]) Len() int {
	return w.size
}

// Values returns the samples oldest first.
func (w *Window[T]) Values() []T {
	out := make([]T, 0, w.size)
	for i := 0; i < w.size; i++ {
		out = append(out, w.items[(w.head+i)%len(w.items)])
	}
	return out
}

// Snapshot computes min, max and mean over the current contents. Min and
// max are exact; the mean is recomputed from scratch on every call so no
// floating-point drift accumulates across long runs. ok is false when the
// window is empty.
func (w *Window[T]) Snapshot() (stats Stats[T], ok bool) {
	if w.size == 0 {
		return Stats[T]{}, false
	}

	first := w.items[w.head]
	stats.Min = first
	stats.Max = first

	var sum float64
	for i := 0; i < w.size; i++ {
		v := w.items[(w.head+i)%len(w.items)]
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		sum += float64(v)
		stats.Value = v
	}
	stats.Avg = sum / float64(w.size)

	return stats, true
}
