package dsp

import (
	"fmt"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Bandpass applies a [lowHz, highHz] passband per channel in the frequency
// domain: forward FFT, zero the stop-band bins, inverse FFT. A brick-wall
// response is acceptable for the preprocessing use case; recordings are long
// relative to the filter edges.
func (Ops) Bandpass(ds *eeg.Dataset, lowHz, highHz float64) error {
	if lowHz <= 0 || highHz <= lowHz {
		return fmt.Errorf("invalid passband [%g, %g] Hz", lowHz, highHz)
	}
	nyquist := ds.SampleRate / 2
	if highHz > nyquist {
		return fmt.Errorf("passband upper edge %g Hz exceeds Nyquist %g Hz", highHz, nyquist)
	}
	n := ds.Samples()
	if n < 2 {
		return nil
	}

	fft := fourier.NewFFT(n)
	binHz := ds.SampleRate / float64(n)
	for c := range ds.Data {
		coeffs := fft.Coefficients(nil, ds.Data[c])
		for i := range coeffs {
			f := float64(i) * binHz
			if f < lowHz || f > highHz {
				coeffs[i] = 0
			}
		}
		seq := fft.Sequence(nil, coeffs)
		// fourier.FFT's inverse is unnormalized.
		scale := 1 / float64(n)
		for i := range seq {
			ds.Data[c][i] = seq[i] * scale
		}
	}
	return nil
}
