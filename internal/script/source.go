// Package script statically checks generated Go scripts before they are
// interpreted.
package script

import "slices"

// Source is the text of a candidate script. It is never trusted.
type Source string

// Verdict is the result of validating one Source against one Profile.
// Safe is true exactly when Errors is empty.
type Verdict struct {
	Safe     bool     `json:"is_safe"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Clone returns a copy that shares no slices with v.
func (v Verdict) Clone() Verdict {
	return Verdict{
		Safe:     v.Safe,
		Errors:   slices.Clone(v.Errors),
		Warnings: slices.Clone(v.Warnings),
	}
}

// Checker is anything that can produce a Verdict for a Source.
type Checker interface {
	Validate(src Source) Verdict
	Profile() Profile
}
