package spectral

import (
	"github.com/RyanBlaney/micmon/algorithms/common"
)

// Crop returns data[low:high] with both bounds clamped to the slice, so an
// out-of-range band yields a shorter (possibly empty) slice instead of a panic.
// The bounds are bin indices, not Hz.
func Crop(data []float64, low, high int) []float64 {
	low = max(low, 0)
	high = min(high, len(data))
	if low >= high {
		return []float64{}
	}
	return data[low:high]
}

// AverageBins splits data into bins contiguous slices of len(data)/bins
// elements each, dropping the remainder, and returns the mean of every slice.
// When there are fewer elements than bins every slice is empty and averages to 0.
func AverageBins(data []float64, bins int) []float64 {
	if bins <= 0 {
		return []float64{}
	}

	width := len(data) / bins
	out := make([]float64, bins)
	if width == 0 {
		return out
	}

	for i := range bins {
		out[i] = common.Mean(data[i*width : (i+1)*width])
	}

	return out
}
