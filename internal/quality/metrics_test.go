package quality

import (
	"math"
	"testing"
)

// sine builds n samples of a pure tone at freq Hz.
func sine(freq, rate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / rate)
	}
	return out
}

func TestComputeAmplitudeStats(t *testing.T) {
	data := [][]float64{
		{1, -1, 1, -1},
		{2, -2, 2, -2},
	}
	snap := Compute(data, 100)
	if snap.Channels != 2 || snap.Samples != 4 {
		t.Fatalf("unexpected shape: %+v", snap)
	}
	if snap.MeanAbs != 1.5 {
		t.Errorf("expected mean abs 1.5, got %g", snap.MeanAbs)
	}
	if snap.MaxAbs != 2 {
		t.Errorf("expected max abs 2, got %g", snap.MaxAbs)
	}
	if snap.Std <= 0 {
		t.Errorf("expected positive std, got %g", snap.Std)
	}
}

func TestComputeEmpty(t *testing.T) {
	snap := Compute(nil, 100)
	if snap.Channels != 0 || snap.Samples != 0 {
		t.Fatalf("unexpected shape: %+v", snap)
	}
	for _, b := range Bands {
		if !math.IsNaN(snap.BandPowerDB[b.Name]) {
			t.Errorf("expected NaN band power for %s", b.Name)
		}
	}
	if !math.IsNaN(snap.TotalPowerDB) {
		t.Error("expected NaN total power")
	}
}

func TestComputeSineKurtosis(t *testing.T) {
	// A pure sine has excess kurtosis -1.5.
	snap := Compute([][]float64{sine(10, 256, 2048)}, 256)
	if math.Abs(snap.Kurtosis-(-1.5)) > 0.01 {
		t.Errorf("expected excess kurtosis ~ -1.5 for a sine, got %g", snap.Kurtosis)
	}
	if math.Abs(snap.Skewness) > 0.01 {
		t.Errorf("expected ~0 skewness for a sine, got %g", snap.Skewness)
	}
}

func TestAlphaToneDominatesAlphaBand(t *testing.T) {
	// 10 Hz tone: alpha should carry more power than any other band.
	snap := Compute([][]float64{sine(10, 256, 4096)}, 256)
	alpha := snap.BandPowerDB[BandAlpha]
	for _, b := range Bands {
		if b.Name == BandAlpha {
			continue
		}
		if snap.BandPowerDB[b.Name] >= alpha {
			t.Errorf("expected alpha (%g dB) to dominate %s (%g dB)", alpha, b.Name, snap.BandPowerDB[b.Name])
		}
	}
	rel := snap.RelativeBandPower(BandAlpha)
	if !(rel > 0.5 && rel <= 1) {
		t.Errorf("expected alpha relative power > 0.5, got %g", rel)
	}
}

func TestWelchPSDPeakBin(t *testing.T) {
	const (
		rate = 256.0
		seg  = 256
		freq = 32.0
	)
	psd := WelchPSD(sine(freq, rate, 2048), seg)

	peak := 0
	for i := range psd {
		if psd[i] > psd[peak] {
			peak = i
		}
	}
	wantBin := int(freq / (rate / seg))
	if peak != wantBin {
		t.Errorf("expected PSD peak at bin %d, got %d", wantBin, peak)
	}
}

func TestWelchPSDShortInput(t *testing.T) {
	psd := WelchPSD([]float64{1, 2, 3}, 256)
	if len(psd) != 129 {
		t.Fatalf("expected 129 bins, got %d", len(psd))
	}
	for _, v := range psd {
		if v != 0 {
			t.Fatal("expected all-zero PSD for input shorter than one segment")
		}
	}
}

func TestRelativeBandPowerMixedTones(t *testing.T) {
	// Mixed tones across bands: every band must resolve to a finite share.
	data := make([]float64, 4096)
	for i := range data {
		tm := float64(i) / 256
		data[i] = math.Sin(2*math.Pi*2*tm) + 0.5*math.Sin(2*math.Pi*10*tm) + 0.25*math.Sin(2*math.Pi*35*tm)
	}
	snap := Compute([][]float64{data}, 256)

	var sum float64
	for _, b := range Bands {
		rel := snap.RelativeBandPower(b.Name)
		if math.IsNaN(rel) {
			t.Fatalf("unexpected NaN relative power for %s", b.Name)
		}
		sum += rel
	}
	if sum <= 0 {
		t.Errorf("expected positive relative power sum, got %g", sum)
	}
}
