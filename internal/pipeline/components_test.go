package pipeline

import (
	"errors"
	"testing"
)

// vector builds a probability vector with P(brain)=brain and the remainder
// placed on the class at index j.
func vector(brain float64, j int) []float64 {
	p := make([]float64, len(ComponentClasses))
	p[0] = brain
	p[j] = p[j] + (1 - brain)
	return p
}

func TestPlanComponentRemovalThreshold(t *testing.T) {
	cls := ComponentClassification{Probabilities: [][]float64{
		vector(0.9, 1),  // clearly brain
		vector(0.7, 2),  // exactly at tau: inclusive rule removes it
		vector(0.3, 4),  // line-noise dominated
		vector(0.05, 5), // channel-noise dominated
	}}

	plan, err := PlanComponentRemoval(cls, 0.7)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	wantRemove := []bool{false, true, true, true}
	for i, d := range plan.Decisions {
		if d.Remove != wantRemove[i] {
			t.Errorf("component %d: expected remove=%t, got %t (P(brain)=%g)", i, wantRemove[i], d.Remove, d.BrainProbability)
		}
	}
	if got := plan.Indices(); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("unexpected removal indices: %v", got)
	}
}

func TestDominantClassIsReportingOnly(t *testing.T) {
	// Component dominated by eye activity but with P(brain) above tau must
	// be retained: only the brain probability drives the decision.
	cls := ComponentClassification{Probabilities: [][]float64{vector(0.45, 2)}}
	plan, err := PlanComponentRemoval(cls, 0.4)
	if err != nil {
		t.Fatal(err)
	}
	d := plan.Decisions[0]
	if d.Dominant != ClassEye {
		t.Errorf("expected eye dominant, got %s", d.Dominant)
	}
	if d.Remove {
		t.Error("component with P(brain) > tau must be retained regardless of dominant class")
	}
	if plan.RetainedByClass[ClassEye] != 1 {
		t.Errorf("unexpected retained-by-class: %v", plan.RetainedByClass)
	}
}

func TestRemovalMonotonicInTau(t *testing.T) {
	cls := ComponentClassification{Probabilities: [][]float64{
		vector(0.2, 1), vector(0.5, 2), vector(0.8, 3), vector(0.95, 4),
	}}

	prev := -1
	for _, tau := range []float64{0.1, 0.3, 0.5, 0.7, 0.9, 1.0} {
		plan, err := PlanComponentRemoval(cls, tau)
		if err != nil {
			t.Fatalf("tau=%g: %v", tau, err)
		}
		n := len(plan.Indices())
		if n < prev {
			t.Errorf("removal count decreased from %d to %d at tau=%g", prev, n, tau)
		}
		prev = n
	}
	// tau=1 removes everything under the inclusive rule.
	plan, _ := PlanComponentRemoval(cls, 1.0)
	if len(plan.Indices()) != 4 {
		t.Errorf("expected all components removed at tau=1, got %v", plan.Indices())
	}
}

func TestPlanComponentRemovalValidation(t *testing.T) {
	valid := ComponentClassification{Probabilities: [][]float64{vector(0.5, 1)}}

	short := make([]float64, len(ComponentClasses)-1)
	short[0] = 1
	negative := vector(0.5, 1)
	negative[1] = -negative[1]
	unnormalized := vector(0.5, 1)
	unnormalized[1] += 0.5

	testCases := []struct {
		name string
		cls  ComponentClassification
		tau  float64
	}{
		{"tau_zero", valid, 0},
		{"tau_above_one", valid, 1.5},
		{"short_vector", ComponentClassification{Probabilities: [][]float64{short}}, 0.7},
		{"negative_probability", ComponentClassification{Probabilities: [][]float64{negative}}, 0.7},
		{"does_not_sum_to_one", ComponentClassification{Probabilities: [][]float64{unnormalized}}, 0.7},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := PlanComponentRemoval(tc.cls, tc.tau); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := PlanComponentRemoval(valid, 0); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig for bad tau, got %v", err)
	}
}

func TestEmptyClassification(t *testing.T) {
	plan, err := PlanComponentRemoval(ComponentClassification{}, 0.7)
	if err != nil {
		t.Fatalf("empty classification must be valid: %v", err)
	}
	if len(plan.Indices()) != 0 {
		t.Errorf("expected no removals, got %v", plan.Indices())
	}
}
