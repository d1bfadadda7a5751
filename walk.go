// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

// walkPanic carries an error through a panic/recover pair so that a deeply
// nested reader/writer helper can abort an entire walk without every
// intermediate call needing an `if err != nil { return err }` check. This
// mirrors the teacher's streamReader.stop/errStop convention, generalized
// to cover both the read side and the write side of a container walk.
type walkPanic struct {
	err error
}

// stopf aborts the current walk with err.
func stopf(err error) {
	panic(walkPanic{err})
}

// recoverWalk is deferred at the top of every decode()/write() entry point.
// It assigns the carried error to *errp and re-panics anything else (a
// genuine programming bug should not be swallowed).
func recoverWalk(errp *error) {
	if r := recover(); r != nil {
		wp, ok := r.(walkPanic)
		if !ok {
			panic(r)
		}
		*errp = wp.err
	}
}
