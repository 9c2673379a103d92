package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPlanChannelRemoval(t *testing.T) {
	labels := []string{"Fp1", "Fp2", "Cz", "A1", "A2", "VEOG", "EMG1", "ECG"}

	testCases := []struct {
		name     string
		cfg      Config
		expected ChannelFilterPlan
	}{
		{
			name: "reference_and_eog",
			cfg:  Config{RemoveReference: true, RemoveEOG: true},
			expected: ChannelFilterPlan{
				Remove:   []string{"A1", "A2", "VEOG"},
				Retained: 5,
			},
		},
		{
			name: "all_categories",
			cfg:  Config{RemoveReference: true, RemoveEOG: true, RemoveEMG: true, RemoveECG: true},
			expected: ChannelFilterPlan{
				Remove:   []string{"A1", "A2", "ECG", "EMG1", "VEOG"},
				Retained: 3,
			},
		},
		{
			name: "manual_list_unioned",
			cfg:  Config{RemoveEOG: true, RemoveChannels: []string{"Fp2"}},
			expected: ChannelFilterPlan{
				Remove:   []string{"Fp2", "VEOG"},
				Retained: 6,
			},
		},
		{
			name: "protected_wins",
			cfg:  Config{RemoveReference: true, Protected: []string{"A1"}},
			expected: ChannelFilterPlan{
				Remove:             []string{"A2"},
				ProtectedOverrides: []string{"A1"},
				Retained:           7,
			},
		},
		{
			name: "protected_beats_manual",
			cfg:  Config{RemoveChannels: []string{"Cz"}, Protected: []string{"Cz"}},
			expected: ChannelFilterPlan{
				ProtectedOverrides: []string{"Cz"},
				Retained:           8,
			},
		},
		{
			name:     "nothing_enabled",
			cfg:      Config{},
			expected: ChannelFilterPlan{Retained: 8},
		},
		{
			name: "case_sensitive_match",
			cfg:  Config{RemoveChannels: []string{"fp1"}},
			expected: ChannelFilterPlan{
				Retained: 8,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := PlanChannelRemoval(labels, tc.cfg)
			if diff := cmp.Diff(tc.expected, got); diff != "" {
				t.Errorf("plan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlanChannelRemovalAbsentCandidates(t *testing.T) {
	// Candidates not present in the recording never appear in the plan.
	got := PlanChannelRemoval([]string{"Fp1", "Fp2"}, Config{RemoveReference: true, RemoveEOG: true})
	if len(got.Remove) != 0 || got.Retained != 2 {
		t.Errorf("expected empty plan, got %+v", got)
	}
}
