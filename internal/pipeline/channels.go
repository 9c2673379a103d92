package pipeline

import "sort"

// ChannelCategory tags a group of non-EEG channels removable by policy.
type ChannelCategory string

const (
	CategoryReference ChannelCategory = "reference"
	CategoryEOG       ChannelCategory = "eog"
	CategoryEMG       ChannelCategory = "emg"
	CategoryECG       ChannelCategory = "ecg"
)

// categoryVariants maps each category to the canonical label variants it
// covers. The policy iterates this table uniformly; adding a category is a
// table edit, not a new branch.
var categoryVariants = map[ChannelCategory][]string{
	CategoryReference: {"A1", "A2", "M1", "M2", "TP9", "TP10", "REF", "FCz"},
	CategoryEOG:       {"VEOG", "HEOG", "EOG", "EOG1", "EOG2", "LO1", "LO2", "IO1", "IO2", "SO1", "SO2"},
	CategoryEMG:       {"EMG", "EMG1", "EMG2", "Chin", "Chin1", "Chin2"},
	CategoryECG:       {"ECG", "EKG", "ECG1", "EKG1"},
}

// ChannelFilterPlan is the outcome of the channel filter policy for one
// label set.
type ChannelFilterPlan struct {
	// Remove lists the channels to drop, sorted for determinism.
	Remove []string
	// ProtectedOverrides lists channels that matched a removal rule but were
	// kept because they appear in the protected list.
	ProtectedOverrides []string
	// Retained is the channel count left after removal.
	Retained int
}

// PlanChannelRemoval decides which channels to drop. The removal set is the
// union of the enabled category variants and the manual list, intersected
// with the channels actually present (case-sensitive exact match), minus the
// protected list. Protected wins unconditionally and each override is
// reported. An empty removal set is a valid outcome, not an error.
func PlanChannelRemoval(labels []string, cfg Config) ChannelFilterPlan {
	candidates := make(map[string]bool)
	for cat, variants := range categoryVariants {
		if !cfg.categoryEnabled(cat) {
			continue
		}
		for _, v := range variants {
			candidates[v] = true
		}
	}
	for _, l := range cfg.RemoveChannels {
		candidates[l] = true
	}

	protected := make(map[string]bool, len(cfg.Protected))
	for _, l := range cfg.Protected {
		protected[l] = true
	}

	plan := ChannelFilterPlan{}
	for _, l := range labels {
		if !candidates[l] {
			continue
		}
		if protected[l] {
			plan.ProtectedOverrides = append(plan.ProtectedOverrides, l)
			continue
		}
		plan.Remove = append(plan.Remove, l)
	}
	sort.Strings(plan.Remove)
	sort.Strings(plan.ProtectedOverrides)
	plan.Retained = len(labels) - len(plan.Remove)
	return plan
}

func (c Config) categoryEnabled(cat ChannelCategory) bool {
	switch cat {
	case CategoryReference:
		return c.RemoveReference
	case CategoryEOG:
		return c.RemoveEOG
	case CategoryEMG:
		return c.RemoveEMG
	case CategoryECG:
		return c.RemoveECG
	}
	return false
}
