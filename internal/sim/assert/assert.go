// Package assert panics on caller-contract violations (double add, unknown id, re-initialization).
// These are programmer errors, not runtime conditions to recover from.
package assert

import "fmt"

type Violation struct{ Msg string }

func (v *Violation) Error() string { return v.Msg }

func True(ok bool, format string, args ...any) {
	if !ok {
		panic(&Violation{Msg: fmt.Sprintf(format, args...)})
	}
}
