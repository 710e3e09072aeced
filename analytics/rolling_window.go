package analytics

// RollingWindow keeps the most recent windowSize angles of one channel.
type RollingWindow struct {
	windowSize int
	values     []float64
	index      int
	count      int
}

func NewRollingWindow(size int) *RollingWindow {
	return &RollingWindow{
		windowSize: size,
		values:     make([]float64, size),
	}
}

func (rw *RollingWindow) Add(angle float64) {
	rw.values[rw.index] = angle
	rw.index = (rw.index + 1) % rw.windowSize
	if rw.count < rw.windowSize {
		rw.count++
	}
}

func (rw *RollingWindow) Len() int {
	return rw.count
}

// Full reports whether the window holds windowSize angles.
func (rw *RollingWindow) Full() bool {
	return rw.count == rw.windowSize
}

// Values returns the buffered angles oldest first.
func (rw *RollingWindow) Values() []float64 {
	out := make([]float64, 0, rw.count)
	if rw.count < rw.windowSize {
		return append(out, rw.values[:rw.count]...)
	}
	out = append(out, rw.values[rw.index:]...)
	return append(out, rw.values[:rw.index]...)
}

// Baseline recomputes the circular statistics of the buffered angles.
func (rw *RollingWindow) Baseline() (Baseline, error) {
	return CircularStatistics(rw.Values())
}
