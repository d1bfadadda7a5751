// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import (
	"encoding/binary"
	"fmt"
	"io"
)

// writer wraps an io.Writer with the typed, explicit-endian writes and the
// bounded reference->destination copy every format writer needs (component
// A, write side). It has no teacher equivalent (the teacher is read-only);
// it is grounded on original_source/blocks/xmpblock.c's wu8/wu16/wu32/wu64
// and copy_bytes, translated into the reader's panic/recover idiom.
type writer struct {
	w   io.Writer
	buf [4096]byte
}

func newWriter(w io.Writer) *writer {
	return &writer{w: w}
}

func (e *writer) write(b []byte) {
	if _, err := e.w.Write(b); err != nil {
		stopf(err)
	}
}

func (e *writer) write1(v uint8) {
	e.write([]byte{v})
}

func (e *writer) write2(order binary.ByteOrder, v uint16) {
	var b [2]byte
	order.PutUint16(b[:], v)
	e.write(b[:])
}

func (e *writer) write3LE(v uint32) {
	e.write([]byte{byte(v), byte(v >> 8), byte(v >> 16)})
}

func (e *writer) write4(order binary.ByteOrder, v uint32) {
	var b [4]byte
	order.PutUint32(b[:], v)
	e.write(b[:])
}

func (e *writer) write8(order binary.ByteOrder, v uint64) {
	var b [8]byte
	order.PutUint64(b[:], v)
	e.write(b[:])
}

// copyN streams exactly n bytes from r to the writer's underlying io.Writer
// through a fixed internal buffer, matching xmpblock.c's copy_bytes. A
// short read or short write is fatal to the enclosing walk.
func (e *writer) copyN(r io.Reader, n int64) {
	for n > 0 {
		chunk := int64(len(e.buf))
		if n < chunk {
			chunk = n
		}
		got, err := io.ReadFull(r, e.buf[:chunk])
		if got > 0 {
			if _, werr := e.w.Write(e.buf[:got]); werr != nil {
				stopf(fmt.Errorf("%w: %w", errShortWrite, werr))
			}
		}
		if err != nil {
			stopf(newMalformed(errShortRead))
		}
		n -= int64(got)
	}
}
