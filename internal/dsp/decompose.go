package dsp

import (
	"fmt"
	"sort"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
	"github.com/Metanome/eeg-preprocppl/internal/pipeline"
	"gonum.org/v1/gonum/mat"
)

// maxComponents caps the decomposition size; the component count can never
// exceed the channel count.
const maxComponents = 15

// SVDDecomposer implements pipeline.Decomposer using a singular value
// decomposition of the channel-centred data matrix. The leading singular
// vectors play the role of source components; removal subtracts a
// component's rank-one contribution from the recording.
type SVDDecomposer struct{}

type svdDecomposition struct {
	ds     *eeg.Dataset
	u      mat.Dense // channels x k
	v      mat.Dense // samples x k
	values []float64
	means  []float64
	k      int
}

// Decompose factorizes the recording into at most maxComponents components.
func (SVDDecomposer) Decompose(ds *eeg.Dataset) (pipeline.Decomposition, error) {
	nChan := ds.Channels()
	nSamp := ds.Samples()
	if nChan < 2 || nSamp < nChan {
		return nil, fmt.Errorf("decomposition needs at least 2 channels and more samples than channels, got %dx%d", nChan, nSamp)
	}

	k := maxComponents
	if nChan < k {
		k = nChan
	}

	// Row-centre the data matrix; the component expansion applies to the
	// centred signal and removal subtracts from the original.
	means := make([]float64, nChan)
	x := mat.NewDense(nChan, nSamp, nil)
	for c := 0; c < nChan; c++ {
		var sum float64
		for _, v := range ds.Data[c] {
			sum += v
		}
		means[c] = sum / float64(nSamp)
		for s, v := range ds.Data[c] {
			x.Set(c, s, v-means[c])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, fmt.Errorf("svd factorization failed")
	}

	dec := &svdDecomposition{ds: ds, means: means, k: k}
	svd.UTo(&dec.u)
	svd.VTo(&dec.v)
	dec.values = svd.Values(nil)
	return dec, nil
}

func (d *svdDecomposition) Components() int { return d.k }

// Source returns component i's activation time series, scaled by its
// singular value.
func (d *svdDecomposition) Source(i int) []float64 {
	nSamp := d.ds.Samples()
	out := make([]float64, nSamp)
	for s := 0; s < nSamp; s++ {
		out[s] = d.values[i] * d.v.At(s, i)
	}
	return out
}

// ChannelWeights returns component i's per-channel mixing weights.
func (d *svdDecomposition) ChannelWeights(i int) []float64 {
	nChan := d.ds.Channels()
	out := make([]float64, nChan)
	for c := 0; c < nChan; c++ {
		out[c] = d.u.At(c, i)
	}
	return out
}

// Remove subtracts the listed components' rank-one contributions from the
// recording in place.
func (d *svdDecomposition) Remove(indices []int) error {
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= d.k {
			return fmt.Errorf("component index %d out of range [0, %d)", i, d.k)
		}
		if seen[i] {
			return fmt.Errorf("duplicate component index %d", i)
		}
		seen[i] = true
	}
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)

	nChan := d.ds.Channels()
	nSamp := d.ds.Samples()
	for _, i := range sorted {
		sigma := d.values[i]
		for c := 0; c < nChan; c++ {
			w := sigma * d.u.At(c, i)
			if w == 0 {
				continue
			}
			row := d.ds.Data[c]
			for s := 0; s < nSamp; s++ {
				row[s] -= w * d.v.At(s, i)
			}
		}
	}
	return nil
}
