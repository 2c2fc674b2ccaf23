// Package rubric converts raw rubric JSON into the canonical rubric model.
// Two historical schemas are accepted, possibly mixed within one question:
// the legacy form where each criterion is a description with points, and the
// enhanced form where a criterion carries its own reduction rules.
// Normalization never fails; malformed input degrades to placeholder values.
package rubric
