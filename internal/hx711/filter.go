package hx711

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Filter reduces a set of repeated readings to one robust average. Failed
// reads are dropped, then values too far from the median are rejected before
// averaging. Readings from a flaky connection can pass the ready check and
// still be garbage; the stdev ceiling catches that case by discarding the
// whole set.
type Filter struct {
	// MaxStdev is the ceiling on the standard deviation of the readings'
	// distances from their median. Above it the whole set is considered
	// garbage and no measurement is produced.
	MaxStdev float64

	// MaxDeviationsFromMedian is the outlier cut: readings whose distance
	// from the median exceeds this many deviations are discarded.
	MaxDeviationsFromMedian float64
}

// DefaultFilter returns the filter thresholds tuned for the HX711's 10Hz
// output on a stable load cell.
func DefaultFilter() Filter {
	return Filter{
		MaxStdev:                100,
		MaxDeviationsFromMedian: 2.0,
	}
}

// Reduce filters the results of a set of read cycles down to one measurement.
// The second return is false when nothing survives filtering; an absent
// measurement is always distinguishable from a valid zero. Values are sorted
// before any accumulation, so the result is independent of input order.
func (f Filter) Reduce(results []ReadResult) (float64, bool) {
	values := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			values = append(values, float64(r.Value))
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	if len(values) == 1 {
		return values[0], true
	}

	sort.Float64s(values)
	med := median(values)

	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = abs(v - med)
	}
	stdev := stat.StdDev(devs, nil)

	if stdev > f.MaxStdev {
		return 0, false
	}
	if stdev == 0 {
		return med, true
	}

	kept := values[:0]
	for i, v := range values {
		if devs[i]/stdev <= f.MaxDeviationsFromMedian {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return 0, false
	}
	return stat.Mean(kept, nil), true
}

// median of a sorted slice, averaging the middle pair for even lengths.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
