package dsp

import (
	"fmt"
	"math"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
)

// artifactWindowSecs is the sliding-window length used for burst detection.
const artifactWindowSecs = 0.5

// RejectArtifacts removes window-aligned segments contaminated by
// high-amplitude transients. Per channel, each window's RMS is converted to
// a z-score against that channel's own window-RMS distribution. A window is
// rejected when any channel exceeds the burst criterion, or — when window
// rejection is enabled (windowCriterion >= 0) — when the fraction of
// channels outside the tolerance band exceeds the window criterion.
//
// The surviving windows are concatenated, so the sample count shrinks but
// never grows. Events inside rejected windows are dropped; the rest are
// shifted to the compacted timeline.
func (Ops) RejectArtifacts(ds *eeg.Dataset, burstCriterion, windowCriterion float64, tolerances [2]float64) error {
	if burstCriterion <= 0 {
		return fmt.Errorf("burst criterion must be positive, got %g", burstCriterion)
	}
	if tolerances[0] >= tolerances[1] {
		return fmt.Errorf("tolerance band [%g, %g] is not an interval", tolerances[0], tolerances[1])
	}
	nChan := ds.Channels()
	nSamp := ds.Samples()
	win := int(artifactWindowSecs * ds.SampleRate)
	if win < 1 {
		win = 1
	}
	nWin := nSamp / win
	if nChan == 0 || nWin < 3 {
		// Too short to estimate a baseline; reject nothing.
		return nil
	}

	// Per-channel window RMS matrix.
	rms := make([][]float64, nChan)
	for c := 0; c < nChan; c++ {
		rms[c] = make([]float64, nWin)
		for w := 0; w < nWin; w++ {
			var sq float64
			for s := w * win; s < (w+1)*win; s++ {
				sq += ds.Data[c][s] * ds.Data[c][s]
			}
			rms[c][w] = math.Sqrt(sq / float64(win))
		}
	}

	// Z-scores against each channel's own window-RMS distribution.
	zs := make([][]float64, nChan)
	for c := 0; c < nChan; c++ {
		zs[c] = make([]float64, nWin)
		mean, std := meanStd(rms[c])
		if std == 0 {
			continue
		}
		for w := 0; w < nWin; w++ {
			zs[c][w] = (rms[c][w] - mean) / std
		}
	}

	keep := make([]bool, nWin)
	for w := 0; w < nWin; w++ {
		keep[w] = true
		out := 0
		for c := 0; c < nChan; c++ {
			z := zs[c][w]
			if z > burstCriterion {
				keep[w] = false
			}
			if z < tolerances[0] || z > tolerances[1] {
				out++
			}
		}
		if windowCriterion >= 0 && float64(out)/float64(nChan) > windowCriterion {
			keep[w] = false
		}
	}

	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	if kept == nWin {
		return nil
	}
	if kept == 0 {
		return fmt.Errorf("artifact rejection would remove the entire recording")
	}

	// Compact the kept windows. Trailing samples beyond the last full
	// window are always kept.
	tail := nSamp - nWin*win
	outN := kept*win + tail
	for c := 0; c < nChan; c++ {
		dst := make([]float64, 0, outN)
		for w := 0; w < nWin; w++ {
			if keep[w] {
				dst = append(dst, ds.Data[c][w*win:(w+1)*win]...)
			}
		}
		dst = append(dst, ds.Data[c][nWin*win:]...)
		ds.Data[c] = dst
	}

	// Remap events to the compacted timeline.
	offsetBefore := make([]int, nWin+1)
	for w := 0; w < nWin; w++ {
		offsetBefore[w+1] = offsetBefore[w]
		if !keep[w] {
			offsetBefore[w+1] += win
		}
	}
	remapped := ds.Events[:0]
	for _, ev := range ds.Events {
		w := ev.Sample / win
		if w < nWin && !keep[w] {
			continue
		}
		if w > nWin {
			w = nWin
		}
		ev.Sample -= offsetBefore[w]
		remapped = append(remapped, ev)
	}
	ds.Events = remapped
	return nil
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean = sum / float64(len(xs))
	var sq float64
	for _, v := range xs {
		d := v - mean
		sq += d * d
	}
	if len(xs) > 1 {
		std = math.Sqrt(sq / float64(len(xs)-1))
	}
	return mean, std
}
