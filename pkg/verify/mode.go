package verify

import (
	"math"
	"slices"

	"github.com/montanaflynn/stats"
)

// ModeWindow is the number of sorted values per window in [GenMode].
const ModeWindow = 7

// GenMode returns a generalized mode of values: the mean of the narrowest
// window of ModeWindow consecutive sorted values, taken as the median over
// every window offset. With fewer values than one window it returns the
// minimum.
func GenMode(values []float64) (float64, error) {
	if len(values) < ModeWindow {
		return stats.Min(values)
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	modes := make([]float64, 0, ModeWindow)
	for offset := range ModeWindow {
		best, bestWidth := 0, math.Inf(1)
		for i := 0; ModeWindow*i-offset < n; i++ {
			low := max(0, ModeWindow*i-offset)
			high := min(n-1, ModeWindow*(i+1)-offset-1)
			if high == low {
				continue
			}
			width := (sorted[high] - sorted[low]) / float64(high-low+1)
			if width < bestWidth {
				best, bestWidth = i, width
			}
		}
		low := max(0, ModeWindow*best-offset)
		high := min(n, ModeWindow*(best+1)-offset)
		mean, err := stats.Mean(sorted[low:high])
		if err != nil {
			return 0, err
		}
		modes = append(modes, mean)
	}
	return stats.Median(modes)
}
