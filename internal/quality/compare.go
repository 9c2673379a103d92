package quality

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Comparison holds the derived metrics between two Snapshots taken before
// and after a cleaning step. Ratios with a zero denominator are NaN and set
// OverProcessed rather than raising; a cleaning step that flattens the signal
// to zero variance is suspicious, not an internal error.
type Comparison struct {
	AmplitudeReductionPct float64            `json:"amplitude_reduction_pct"`
	VarianceReductionPct  float64            `json:"variance_reduction_pct"`
	SNRImprovementDB      float64            `json:"snr_improvement_db"`
	BandChangeDB          map[string]float64 `json:"band_change_db"`
	KurtosisChange        float64            `json:"kurtosis_change"`
	OverProcessed         bool               `json:"over_processed,omitempty"`

	// ChannelCorrMean and ChannelCorrMin summarize the per-channel Pearson
	// correlation between the compared buffers. Compare works on snapshots
	// and cannot derive them, so it sets both to NaN; callers holding the
	// sample buffers fill them in via SetChannelCorrelation.
	ChannelCorrMean float64 `json:"channel_corr_mean"`
	ChannelCorrMin  float64 `json:"channel_corr_min"`
}

// SetChannelCorrelation computes the channel correlation between the two
// buffers and records it on the comparison.
func (c *Comparison) SetChannelCorrelation(before, after [][]float64) {
	c.ChannelCorrMean, c.ChannelCorrMin = ChannelCorrelation(before, after)
}

// Compare diffs two snapshots of the same recording. Comparing a snapshot
// with itself yields all-zero changes (or NaN where both sides are
// structurally zero).
func Compare(before, after Snapshot) Comparison {
	cmp := Comparison{
		BandChangeDB:    make(map[string]float64, len(Bands)),
		KurtosisChange:  after.Kurtosis - before.Kurtosis,
		ChannelCorrMean: math.NaN(),
		ChannelCorrMin:  math.NaN(),
	}

	cmp.AmplitudeReductionPct = reductionPct(before.MeanAbs, after.MeanAbs)
	cmp.VarianceReductionPct = reductionPct(before.Std*before.Std, after.Std*after.Std)

	if before.Std == 0 || after.Std == 0 {
		cmp.SNRImprovementDB = math.NaN()
		cmp.OverProcessed = true
	} else {
		cmp.SNRImprovementDB = 20 * math.Log10(before.Std/after.Std)
	}
	if math.IsNaN(cmp.AmplitudeReductionPct) || math.IsNaN(cmp.VarianceReductionPct) {
		cmp.OverProcessed = true
	}

	for _, b := range Bands {
		cmp.BandChangeDB[b.Name] = after.BandPowerDB[b.Name] - before.BandPowerDB[b.Name]
	}

	return cmp
}

func reductionPct(before, after float64) float64 {
	if before == 0 {
		return math.NaN()
	}
	return (before - after) / before * 100
}

// minCorrelationSamples is the shortest series the channel correlation will
// accept; anything shorter reports NaN.
const minCorrelationSamples = 100

// ChannelCorrelation computes the Pearson correlation per index-aligned
// channel pair between two buffers, truncated to the shorter series, and
// reports the mean and minimum across channels. Both are NaN when the
// channel counts differ or fewer than minCorrelationSamples samples overlap.
func ChannelCorrelation(a, b [][]float64) (mean, min float64) {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN(), math.NaN()
	}
	n := len(a[0])
	if len(b[0]) < n {
		n = len(b[0])
	}
	if n < minCorrelationSamples {
		return math.NaN(), math.NaN()
	}

	min = math.Inf(1)
	var sum float64
	for c := range a {
		r := stat.Correlation(a[c][:n], b[c][:n], nil)
		sum += r
		if r < min {
			min = r
		}
	}
	return sum / float64(len(a)), min
}
