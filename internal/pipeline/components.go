package pipeline

import (
	"fmt"
	"math"
)

// ComponentClass is one of the semantic source categories a decomposed
// component can belong to.
type ComponentClass string

// The fixed ordered class set. Probability vectors are indexed in this
// order.
const (
	ClassBrain        ComponentClass = "brain"
	ClassMuscle       ComponentClass = "muscle"
	ClassEye          ComponentClass = "eye"
	ClassHeart        ComponentClass = "heart"
	ClassLineNoise    ComponentClass = "line_noise"
	ClassChannelNoise ComponentClass = "channel_noise"
	ClassOther        ComponentClass = "other"
)

// ComponentClasses lists the classes in vector order.
var ComponentClasses = []ComponentClass{
	ClassBrain, ClassMuscle, ClassEye, ClassHeart, ClassLineNoise, ClassChannelNoise, ClassOther,
}

// probabilitySumEpsilon is the tolerance on each component's probability
// vector summing to 1.
const probabilitySumEpsilon = 1e-6

// ComponentClassification holds one probability vector per component, in
// ComponentClasses order.
type ComponentClassification struct {
	Probabilities [][]float64
}

// Validate checks vector lengths and that each vector sums to 1 within
// tolerance.
func (c ComponentClassification) Validate() error {
	for i, p := range c.Probabilities {
		if len(p) != len(ComponentClasses) {
			return fmt.Errorf("component %d has %d class probabilities, expected %d", i, len(p), len(ComponentClasses))
		}
		var sum float64
		for _, v := range p {
			if v < 0 || math.IsNaN(v) {
				return fmt.Errorf("component %d has invalid probability %g", i, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > probabilitySumEpsilon {
			return fmt.Errorf("component %d probabilities sum to %g, expected 1", i, sum)
		}
	}
	return nil
}

// BrainProbability returns P(brain) for component i.
func (c ComponentClassification) BrainProbability(i int) float64 {
	return c.Probabilities[i][0]
}

// DominantClass returns the arg-max class for component i. It is recorded
// for reporting only and never influences the removal decision.
func (c ComponentClassification) DominantClass(i int) ComponentClass {
	best := 0
	for j, v := range c.Probabilities[i] {
		if v > c.Probabilities[i][best] {
			best = j
		}
	}
	return ComponentClasses[best]
}

// ComponentDecision reports the removal decision for one component.
type ComponentDecision struct {
	Index            int            `json:"index"`
	BrainProbability float64        `json:"brain_probability"`
	Dominant         ComponentClass `json:"dominant_class"`
	Remove           bool           `json:"remove"`
}

// RemovalPlan is the full decision over one classification.
type RemovalPlan struct {
	Decisions       []ComponentDecision    `json:"decisions"`
	RemovedByClass  map[ComponentClass]int `json:"removed_by_class"`
	RetainedByClass map[ComponentClass]int `json:"retained_by_class"`
}

// PlanComponentRemoval applies the threshold rule independently per
// component: remove component i iff P(brain)[i] <= tau. This is an inclusive
// single-class threshold, not a multi-class Bayes decision — a component
// dominated by a non-brain class is still retained when its brain
// probability sits above tau. That asymmetry is intentional simplicity
// carried over from the reference behaviour, not a bug.
//
// The decision is monotonic in tau: raising tau can only grow the removal
// set.
func PlanComponentRemoval(cls ComponentClassification, tau float64) (RemovalPlan, error) {
	if tau <= 0 || tau > 1 {
		return RemovalPlan{}, fmt.Errorf("%w: brain threshold %g outside (0, 1]", ErrConfig, tau)
	}
	if err := cls.Validate(); err != nil {
		return RemovalPlan{}, err
	}

	plan := RemovalPlan{
		Decisions:       make([]ComponentDecision, len(cls.Probabilities)),
		RemovedByClass:  make(map[ComponentClass]int),
		RetainedByClass: make(map[ComponentClass]int),
	}
	for i := range cls.Probabilities {
		d := ComponentDecision{
			Index:            i,
			BrainProbability: cls.BrainProbability(i),
			Dominant:         cls.DominantClass(i),
		}
		d.Remove = d.BrainProbability <= tau
		plan.Decisions[i] = d
		if d.Remove {
			plan.RemovedByClass[d.Dominant]++
		} else {
			plan.RetainedByClass[d.Dominant]++
		}
	}
	return plan, nil
}

// Indices returns the component indices marked for removal, in order.
func (p RemovalPlan) Indices() []int {
	var out []int
	for _, d := range p.Decisions {
		if d.Remove {
			out = append(out, d.Index)
		}
	}
	return out
}

// Metrics renders summary counts as a StageResult metric map.
func (p RemovalPlan) Metrics() map[string]float64 {
	m := map[string]float64{
		"components":         float64(len(p.Decisions)),
		"components_removed": float64(len(p.Indices())),
	}
	for class, n := range p.RemovedByClass {
		m["removed_"+string(class)] = float64(n)
	}
	for class, n := range p.RetainedByClass {
		m["retained_"+string(class)] = float64(n)
	}
	return m
}
