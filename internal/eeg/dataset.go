// Package eeg provides the in-memory recording model shared by the
// preprocessing pipeline: the multi-channel Dataset, channel label handling,
// the file codec, and montage resolution.
package eeg

import (
	"fmt"
	"strings"
)

// Event marks a labelled position in the recording.
type Event struct {
	Label  string `json:"label"`
	Sample int    `json:"sample"`
}

// Dataset is a multi-channel recording buffer. Data is channel-major:
// Data[c][s] is channel c at sample s. All stages mutate the Dataset in
// place; a single file's pipeline is single-threaded by construction, so
// no locking is needed here.
type Dataset struct {
	Labels     []string
	SampleRate float64
	Data       [][]float64
	Events     []Event
}

// Channels returns the channel count.
func (d *Dataset) Channels() int { return len(d.Data) }

// Samples returns the per-channel sample count, or 0 for an empty dataset.
func (d *Dataset) Samples() int {
	if len(d.Data) == 0 {
		return 0
	}
	return len(d.Data[0])
}

// Duration returns the recording length in seconds.
func (d *Dataset) Duration() float64 {
	if d.SampleRate <= 0 {
		return 0
	}
	return float64(d.Samples()) / d.SampleRate
}

// Validate checks the Dataset invariants: label list matches channel count,
// all channels have equal length, labels are unique, and the sample rate is
// positive.
func (d *Dataset) Validate() error {
	if d.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", d.SampleRate)
	}
	if len(d.Labels) != len(d.Data) {
		return fmt.Errorf("label count %d does not match channel count %d", len(d.Labels), len(d.Data))
	}
	seen := make(map[string]bool, len(d.Labels))
	for _, l := range d.Labels {
		if seen[l] {
			return fmt.Errorf("duplicate channel label %q", l)
		}
		seen[l] = true
	}
	n := d.Samples()
	for c, ch := range d.Data {
		if len(ch) != n {
			return fmt.Errorf("channel %q has %d samples, expected %d", d.Labels[c], len(ch), n)
		}
	}
	for _, ev := range d.Events {
		if ev.Sample < 0 || ev.Sample >= n {
			return fmt.Errorf("event %q at sample %d is outside the recording (0..%d)", ev.Label, ev.Sample, n-1)
		}
	}
	return nil
}

// ChannelIndex returns the index of the channel with the given label, or -1.
// Matching is case-sensitive and exact.
func (d *Dataset) ChannelIndex(label string) int {
	for i, l := range d.Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// RemoveChannels drops the named channels from the dataset. Labels not
// present are ignored. Returns the number of channels removed.
func (d *Dataset) RemoveChannels(labels []string) int {
	removed := 0
	for _, l := range labels {
		i := d.ChannelIndex(l)
		if i < 0 {
			continue
		}
		d.Labels = append(d.Labels[:i], d.Labels[i+1:]...)
		d.Data = append(d.Data[:i], d.Data[i+1:]...)
		removed++
	}
	return removed
}

// Crop restricts the recording to [startSample, endSample). Events outside
// the window are dropped; the remainder are shifted to the new origin.
func (d *Dataset) Crop(startSample, endSample int) error {
	n := d.Samples()
	if startSample < 0 || endSample > n || startSample >= endSample {
		return fmt.Errorf("invalid crop window [%d, %d) for %d samples", startSample, endSample, n)
	}
	for c := range d.Data {
		d.Data[c] = d.Data[c][startSample:endSample]
	}
	kept := d.Events[:0]
	for _, ev := range d.Events {
		if ev.Sample >= startSample && ev.Sample < endSample {
			ev.Sample -= startSample
			kept = append(kept, ev)
		}
	}
	d.Events = kept
	return nil
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Labels:     append([]string(nil), d.Labels...),
		SampleRate: d.SampleRate,
		Data:       make([][]float64, len(d.Data)),
		Events:     append([]Event(nil), d.Events...),
	}
	for c := range d.Data {
		out.Data[c] = append([]float64(nil), d.Data[c]...)
	}
	return out
}

// NormalizeLabels strips the configured suffix patterns from every channel
// label and trims whitespace. It is a pure transform: the input slice is not
// modified. Suffix matching is case-insensitive ("Fp1-REF" and "Fp1-Ref"
// both normalize to "Fp1"). A normalization that would collide with another
// channel's label keeps the original label instead, so label uniqueness
// survives the transform (a recording with both "Cz" and "Cz-REF" keeps
// "Cz-REF" as is).
func NormalizeLabels(labels []string, suffixes []string) []string {
	candidates := make([]string, len(labels))
	counts := make(map[string]int, len(labels))
	for i, l := range labels {
		c := stripLabelSuffix(strings.TrimSpace(l), suffixes)
		candidates[i] = c
		counts[c]++
	}
	out := make([]string, len(labels))
	for i, c := range candidates {
		if counts[c] > 1 && c != labels[i] {
			out[i] = labels[i]
			continue
		}
		out[i] = c
	}
	return out
}

func stripLabelSuffix(l string, suffixes []string) string {
	for _, suf := range suffixes {
		if suf == "" {
			continue
		}
		if len(l) > len(suf) && strings.EqualFold(l[len(l)-len(suf):], suf) {
			return strings.TrimSpace(l[:len(l)-len(suf)])
		}
	}
	return l
}
