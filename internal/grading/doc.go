// Package grading turns automatic build feedback into scores.
//
// Everything in this package is a computation over in-memory models: it never
// persists anything itself. Collaborators that reach outside (static code
// analysis categories, submission policies, instructor notifications) are
// injected and may be nil, in which case the corresponding step is skipped.
package grading
