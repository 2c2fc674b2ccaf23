// Package transcribe turns scanned answer pages into a model.StudentTest.
//
// Each page is sent to a vision model once, with bounded concurrency, a
// per-call timeout and exponential backoff between attempts. A page whose
// attempts are exhausted is kept as a degraded answer instead of being
// dropped, so the grader sees "no answer" rather than losing the question.
package transcribe
