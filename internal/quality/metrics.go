// Package quality computes signal quality statistics for a channels-by-samples
// buffer. Everything here is a pure function of the data and sample rate; no
// pipeline state is consulted.
package quality

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// Band is a canonical physiological frequency range.
type Band struct {
	Name string
	Low  float64 // Hz, inclusive
	High float64 // Hz, exclusive
}

// Band names, for keyed lookups into Snapshot.BandPowerDB.
const (
	BandDelta = "delta"
	BandTheta = "theta"
	BandAlpha = "alpha"
	BandBeta  = "beta"
	BandGamma = "gamma"
)

// Bands lists the five canonical EEG bands in ascending order.
var Bands = []Band{
	{BandDelta, 0.5, 4},
	{BandTheta, 4, 8},
	{BandAlpha, 8, 13},
	{BandBeta, 13, 30},
	{BandGamma, 30, 40},
}

// Snapshot holds the quality statistics computed at one pipeline checkpoint.
// Amplitudes are in source units; band powers are 10*log10 of the mean PSD
// within the band.
type Snapshot struct {
	Channels   int     `json:"channels"`
	Samples    int     `json:"samples"`
	SampleRate float64 `json:"sample_rate"`

	MeanAbs float64 `json:"mean_abs_amplitude"`
	Std     float64 `json:"std_amplitude"`
	MaxAbs  float64 `json:"max_abs_amplitude"`

	// Kurtosis is the excess (Fisher) kurtosis averaged across channels;
	// 0 for a Gaussian signal. Skewness likewise.
	Kurtosis float64 `json:"kurtosis"`
	Skewness float64 `json:"skewness"`

	BandPowerDB  map[string]float64 `json:"band_power_db"`
	TotalPowerDB float64            `json:"total_power_db"`
}

// welchSegment is the periodogram segment length used for PSD estimation.
// Segments overlap by half and are Hann-windowed.
const welchSegment = 256

// Compute builds a Snapshot from a channels-by-samples buffer. An empty
// buffer yields a zero Snapshot with NaN band powers.
func Compute(data [][]float64, sampleRate float64) Snapshot {
	snap := Snapshot{
		Channels:    len(data),
		SampleRate:  sampleRate,
		BandPowerDB: make(map[string]float64, len(Bands)),
	}
	if len(data) > 0 {
		snap.Samples = len(data[0])
	}
	if snap.Channels == 0 || snap.Samples == 0 {
		for _, b := range Bands {
			snap.BandPowerDB[b.Name] = math.NaN()
		}
		snap.TotalPowerDB = math.NaN()
		return snap
	}

	// Amplitude stats over the flattened buffer.
	var sumAbs, sum, sumSq float64
	n := 0
	for _, ch := range data {
		for _, v := range ch {
			a := math.Abs(v)
			sumAbs += a
			if a > snap.MaxAbs {
				snap.MaxAbs = a
			}
			sum += v
			sumSq += v * v
			n++
		}
	}
	snap.MeanAbs = sumAbs / float64(n)
	mean := sum / float64(n)
	if n > 1 {
		snap.Std = math.Sqrt((sumSq - float64(n)*mean*mean) / float64(n-1))
	}

	// Higher-order stats per channel, averaged across channels.
	var kurtSum, skewSum float64
	for _, ch := range data {
		kurtSum += stat.ExKurtosis(ch, nil)
		skewSum += stat.Skew(ch, nil)
	}
	snap.Kurtosis = kurtSum / float64(snap.Channels)
	snap.Skewness = skewSum / float64(snap.Channels)

	// Average the per-channel PSDs (not the signals), then integrate bands.
	freqs, avgPSD := averagePSD(data, sampleRate)
	var totalSum float64
	totalCount := 0
	for _, b := range Bands {
		var s float64
		c := 0
		for i, f := range freqs {
			if f >= b.Low && f < b.High {
				s += avgPSD[i]
				c++
			}
		}
		if c == 0 {
			snap.BandPowerDB[b.Name] = math.NaN()
			continue
		}
		snap.BandPowerDB[b.Name] = 10 * math.Log10(s/float64(c))
		totalSum += s
		totalCount += c
	}
	if totalCount > 0 {
		snap.TotalPowerDB = 10 * math.Log10(totalSum/float64(totalCount))
	} else {
		snap.TotalPowerDB = math.NaN()
	}

	return snap
}

// BandPowerLinear returns the band's mean PSD in linear units, or NaN when
// the band was not resolvable at this sample rate.
func (s Snapshot) BandPowerLinear(band string) float64 {
	db, ok := s.BandPowerDB[band]
	if !ok || math.IsNaN(db) {
		return math.NaN()
	}
	return math.Pow(10, db/10)
}

// RelativeBandPower returns the band's share of total band power in linear
// units, NaN when either term is unavailable.
func (s Snapshot) RelativeBandPower(band string) float64 {
	bp := s.BandPowerLinear(band)
	total := math.Pow(10, s.TotalPowerDB/10)
	if math.IsNaN(bp) || math.IsNaN(s.TotalPowerDB) || total == 0 {
		return math.NaN()
	}
	return bp / total
}

// averagePSD computes a Welch-style PSD per channel and averages the PSDs
// across channels.
func averagePSD(data [][]float64, sampleRate float64) (freqs, psd []float64) {
	seg := welchSegment
	if n := len(data[0]); n < seg {
		seg = n
	}
	if seg < 8 {
		// Too short for a meaningful estimate; a single raw periodogram
		// still lets band integration degrade gracefully.
		seg = len(data[0])
	}

	nBins := seg/2 + 1
	freqs = make([]float64, nBins)
	for i := range freqs {
		freqs[i] = float64(i) * sampleRate / float64(seg)
	}

	psd = make([]float64, nBins)
	for _, ch := range data {
		chPSD := WelchPSD(ch, seg)
		for i := range psd {
			psd[i] += chPSD[i]
		}
	}
	for i := range psd {
		psd[i] /= float64(len(data))
	}
	return freqs, psd
}

// WelchPSD estimates the power spectral density of one channel using
// Hann-windowed segments of the given length with 50% overlap. The result
// has seg/2+1 bins. Power normalisation is consistent across calls, which is
// what the before/after comparisons need.
func WelchPSD(x []float64, seg int) []float64 {
	nBins := seg/2 + 1
	out := make([]float64, nBins)
	if len(x) < seg || seg < 2 {
		return out
	}

	window := make([]float64, seg)
	var windowPower float64
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(seg-1)))
		windowPower += window[i] * window[i]
	}

	fft := fourier.NewFFT(seg)
	buf := make([]float64, seg)
	step := seg / 2
	segments := 0
	for start := 0; start+seg <= len(x); start += step {
		for i := 0; i < seg; i++ {
			buf[i] = x[start+i] * window[i]
		}
		coeffs := fft.Coefficients(nil, buf)
		for i, c := range coeffs {
			out[i] += (real(c)*real(c) + imag(c)*imag(c)) / windowPower
		}
		segments++
	}
	if segments > 0 {
		for i := range out {
			out[i] /= float64(segments)
		}
	}
	return out
}
