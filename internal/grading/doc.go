// Package grading grades one transcribed student test against a rubric.
//
// The model is called once per test and asked for a grade for every
// criterion. Its answer is never trusted as-is: missing fields are repaired
// from the rubric, missing criteria are synthesized as ungraded, totals are
// recomputed and grades are put in rubric order. Only transport failures and
// unparsable responses turn into errors, and both still produce a terminal
// result for the test.
package grading
