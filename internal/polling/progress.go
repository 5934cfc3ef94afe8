package polling

// DefaultMaxProgress is the ceiling of the projected progress value.
const DefaultMaxProgress = 12

// NextProgress projects the next progress value. It is a UI heuristic that
// counts poll iterations; it says nothing about how far the server job
// actually got. A reset (a freshly started poll chain) always yields 1.
func NextProgress(current int, reset bool, max int) int {
	if max <= 0 {
		max = DefaultMaxProgress
	}
	if reset {
		return 1
	}
	if current < 0 {
		return 1
	}
	if current+1 > max {
		return max
	}
	return current + 1
}
