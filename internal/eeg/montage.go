package eeg

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMontageUnavailable indicates that no montage candidate could cover the
// recording's channels. The pipeline treats this as a skip condition for
// component classification, not a fatal failure.
var ErrMontageUnavailable = errors.New("no montage candidate matched")

// Montage holds per-channel sensor positions in a head-centred XYZ frame.
type Montage struct {
	Name      string
	Positions map[string][3]float64
}

// MontageProvider looks up a named montage template. Implementations may be
// backed by files, a database, or the built-in table.
type MontageProvider interface {
	Montage(name string) (*Montage, error)
}

// minMontageCoverage is the fraction of recording channels a candidate must
// cover for the lookup to count as a success.
const minMontageCoverage = 0.5

// ResolveMontage tries each candidate in order and returns the first montage
// that covers enough of the dataset's channels, along with the candidate name
// that won. Candidates that fail to load or cover too few channels are
// skipped; if none succeed the error wraps ErrMontageUnavailable with the
// per-candidate reasons.
func ResolveMontage(p MontageProvider, ds *Dataset, candidates []string) (*Montage, string, error) {
	if p == nil {
		return nil, "", fmt.Errorf("%w: no provider configured", ErrMontageUnavailable)
	}
	var reasons []string
	for _, name := range candidates {
		m, err := p.Montage(name)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		covered := 0
		for _, l := range ds.Labels {
			if _, ok := m.Positions[l]; ok {
				covered++
			}
		}
		if ds.Channels() > 0 && float64(covered)/float64(ds.Channels()) >= minMontageCoverage {
			return m, name, nil
		}
		reasons = append(reasons, fmt.Sprintf("%s: covers %d/%d channels", name, covered, ds.Channels()))
	}
	return nil, "", fmt.Errorf("%w: %s", ErrMontageUnavailable, strings.Join(reasons, "; "))
}

// BuiltinMontages is a MontageProvider backed by a small embedded table of
// common 10-20 positions. It exists so the pipeline can run without an
// external montage source; it is not a full electrode database.
type BuiltinMontages struct{}

// standard1020 holds approximate unit-sphere positions for frequently used
// 10-20 electrode sites.
var standard1020 = map[string][3]float64{
	"Fp1": {-0.31, 0.95, 0.05}, "Fp2": {0.31, 0.95, 0.05},
	"F7": {-0.81, 0.59, 0.05}, "F3": {-0.55, 0.67, 0.50}, "Fz": {0.00, 0.72, 0.69}, "F4": {0.55, 0.67, 0.50}, "F8": {0.81, 0.59, 0.05},
	"T3": {-1.00, 0.00, 0.05}, "T7": {-1.00, 0.00, 0.05},
	"C3": {-0.71, 0.00, 0.70}, "Cz": {0.00, 0.00, 1.00}, "C4": {0.71, 0.00, 0.70},
	"T4": {1.00, 0.00, 0.05}, "T8": {1.00, 0.00, 0.05},
	"T5": {-0.81, -0.59, 0.05}, "P7": {-0.81, -0.59, 0.05},
	"P3": {-0.55, -0.67, 0.50}, "Pz": {0.00, -0.72, 0.69}, "P4": {0.55, -0.67, 0.50},
	"T6": {0.81, -0.59, 0.05}, "P8": {0.81, -0.59, 0.05},
	"O1": {-0.31, -0.95, 0.05}, "Oz": {0.00, -1.00, 0.05}, "O2": {0.31, -0.95, 0.05},
	"A1": {-1.02, 0.00, -0.35}, "A2": {1.02, 0.00, -0.35},
	"M1": {-0.98, -0.15, -0.40}, "M2": {0.98, -0.15, -0.40},
}

// Montage returns the named template. Only "standard_1020" and its common
// aliases are known to the builtin provider.
func (BuiltinMontages) Montage(name string) (*Montage, error) {
	switch strings.ToLower(name) {
	case "standard_1020", "standard-1020", "1020":
		return &Montage{Name: "standard_1020", Positions: standard1020}, nil
	default:
		return nil, fmt.Errorf("unknown montage %q", name)
	}
}
