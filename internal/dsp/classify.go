package dsp

import (
	"math"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
	"github.com/Metanome/eeg-preprocppl/internal/pipeline"
	"github.com/Metanome/eeg-preprocppl/internal/quality"
	"gonum.org/v1/gonum/stat"
)

// Classification thresholds (tunable).
const (
	lineNoiseProminence  = 4.0  // line-frequency peak vs neighbouring bins
	channelWeightMinimum = 0.8  // fraction of mixing energy on one channel
	eyeLowFreqFraction   = 0.55 // sub-4 Hz share of component power
	eyeFrontalFraction   = 0.5  // mixing energy on anterior sensors
	muscleHighFreqFrac   = 0.40 // 20 Hz+ share of component power
	heartKurtosisMin     = 8.0  // spiky, QRS-like activations

	highConfidence   = 0.85
	mediumConfidence = 0.70
	lowConfidence    = 0.50

	// brainBaseConfidence sits above common brain-threshold settings so a
	// component with no artifact signature survives removal.
	brainBaseConfidence = 0.80
)

// RuleClassifier implements pipeline.Classifier with deterministic
// rule-based heuristics over per-component statistics. It is a stand-in for
// an ML component classifier: usable, explainable, and cheap, but not a
// substitute for one where accuracy matters.
type RuleClassifier struct{}

// componentFeatures holds the statistics the rules inspect.
type componentFeatures struct {
	Kurtosis    float64
	Skewness    float64
	LowFreq     float64 // power fraction below 4 Hz
	HighFreq    float64 // power fraction above 20 Hz
	LinePeak    float64 // 50/60 Hz prominence over neighbours
	WeightFocus float64 // largest single-channel share of mixing energy
	Frontality  float64 // anterior share of mixing energy (needs montage)
}

// Classify builds one probability vector per component. The montage supplies
// sensor positions for the frontality feature; classification proceeds with
// Frontality=0 for channels missing from the montage.
func (RuleClassifier) Classify(ds *eeg.Dataset, dec pipeline.Decomposition, m *eeg.Montage) (pipeline.ComponentClassification, error) {
	n := dec.Components()
	cls := pipeline.ComponentClassification{Probabilities: make([][]float64, n)}
	for i := 0; i < n; i++ {
		f := extractFeatures(ds, dec, m, i)
		class, confidence := decide(f)
		cls.Probabilities[i] = probabilityVector(class, confidence)
	}
	return cls, nil
}

func extractFeatures(ds *eeg.Dataset, dec pipeline.Decomposition, m *eeg.Montage, i int) componentFeatures {
	src := dec.Source(i)
	f := componentFeatures{
		Kurtosis: stat.ExKurtosis(src, nil),
		Skewness: stat.Skew(src, nil),
	}

	seg := 256
	if len(src) < seg {
		seg = len(src)
	}
	psd := quality.WelchPSD(src, seg)
	binHz := ds.SampleRate / float64(seg)
	var total, low, high float64
	for b, p := range psd {
		hz := float64(b) * binHz
		total += p
		if hz < 4 {
			low += p
		}
		if hz >= 20 {
			high += p
		}
	}
	if total > 0 {
		f.LowFreq = low / total
		f.HighFreq = high / total
	}
	f.LinePeak = math.Max(peakProminence(psd, binHz, 50), peakProminence(psd, binHz, 60))

	weights := dec.ChannelWeights(i)
	var energy, maxEnergy, frontal float64
	for c, w := range weights {
		e := w * w
		energy += e
		if e > maxEnergy {
			maxEnergy = e
		}
		if m != nil {
			if pos, ok := m.Positions[ds.Labels[c]]; ok && pos[1] > 0.8 {
				frontal += e
			}
		}
	}
	if energy > 0 {
		f.WeightFocus = maxEnergy / energy
		f.Frontality = frontal / energy
	}
	return f
}

// decide applies the rules in priority order and returns the winning class
// with a confidence, in the same shape as a rule-based object classifier:
// each rule adds or subtracts confidence, clamped to [low, high].
func decide(f componentFeatures) (pipeline.ComponentClass, float64) {
	if f.LinePeak > lineNoiseProminence {
		conf := mediumConfidence
		if f.LinePeak > 2*lineNoiseProminence {
			conf += 0.1
		}
		return pipeline.ClassLineNoise, clamp(conf, lowConfidence, highConfidence)
	}

	if f.WeightFocus > channelWeightMinimum {
		conf := mediumConfidence
		if f.WeightFocus > 0.95 {
			conf += 0.1
		}
		return pipeline.ClassChannelNoise, clamp(conf, lowConfidence, highConfidence)
	}

	if f.LowFreq > eyeLowFreqFraction && f.Frontality > eyeFrontalFraction {
		conf := mediumConfidence
		if math.Abs(f.Skewness) > 1 {
			conf += 0.1
		}
		return pipeline.ClassEye, clamp(conf, lowConfidence, highConfidence)
	}

	if f.HighFreq > muscleHighFreqFrac {
		conf := mediumConfidence
		if f.HighFreq > 0.6 {
			conf += 0.1
		}
		if f.Kurtosis < 0 {
			conf -= 0.1
		}
		return pipeline.ClassMuscle, clamp(conf, lowConfidence, highConfidence)
	}

	if f.Kurtosis > heartKurtosisMin && f.LowFreq > 0.3 {
		return pipeline.ClassHeart, lowConfidence
	}

	// Default: brain. The base confidence sits above the usual removal
	// threshold so an unremarkable component is kept; heavy tails push it
	// below.
	conf := brainBaseConfidence
	if f.Kurtosis > 5 {
		conf -= 0.2
	}
	if f.LowFreq+f.HighFreq < 0.7 {
		conf += 0.05
	}
	return pipeline.ClassBrain, clamp(conf, lowConfidence, highConfidence)
}

// probabilityVector spreads 1-confidence over the remaining classes so the
// vector sums to exactly 1.
func probabilityVector(class pipeline.ComponentClass, confidence float64) []float64 {
	n := len(pipeline.ComponentClasses)
	rest := (1 - confidence) / float64(n-1)
	out := make([]float64, n)
	for j, c := range pipeline.ComponentClasses {
		if c == class {
			out[j] = confidence
		} else {
			out[j] = rest
		}
	}
	return out
}

// peakProminence measures the PSD at the target frequency relative to the
// mean of its neighbourhood, returning 0 when the bin is out of range.
func peakProminence(psd []float64, binHz, targetHz float64) float64 {
	if binHz <= 0 {
		return 0
	}
	bin := int(targetHz/binHz + 0.5)
	if bin < 3 || bin >= len(psd)-3 {
		return 0
	}
	var neighbours float64
	count := 0
	for d := 2; d <= 3; d++ {
		neighbours += psd[bin-d] + psd[bin+d]
		count += 2
	}
	baseline := neighbours / float64(count)
	if baseline == 0 {
		return 0
	}
	peak := math.Max(psd[bin-1], math.Max(psd[bin], psd[bin+1]))
	return peak / baseline
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
