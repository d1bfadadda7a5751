// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import (
	"bytes"
	"encoding/binary"
	"io"
)

// reader wraps an io.ReadSeeker with the typed, explicit-endian reads every
// format walker needs (component A). It is not safe for concurrent use by
// multiple goroutines, matching the teacher's streamReader.
//
// Every read-past-end is fatal: a short read panics via stopf with a
// *MalformedError, there is no "allow one EOF" tolerance (see DESIGN.md's
// Open Question notes on read-past-end semantics).
type reader struct {
	r   io.ReadSeeker
	buf []byte
}

func newReader(r io.ReadSeeker) *reader {
	return &reader{r: r}
}

func (e *reader) pos() int64 {
	n, err := e.r.Seek(0, io.SeekCurrent)
	if err != nil {
		stopf(newMalformed(err))
	}
	return n
}

func (e *reader) seek(pos int64) {
	if _, err := e.r.Seek(pos, io.SeekStart); err != nil {
		stopf(newMalformed(err))
	}
}

func (e *reader) skip(n int64) {
	if n == 0 {
		return
	}
	if _, err := e.r.Seek(n, io.SeekCurrent); err != nil {
		stopf(newMalformed(err))
	}
}

func (e *reader) allocateBuf(n int) {
	if n > cap(e.buf) {
		e.buf = make([]byte, n)
	}
	e.buf = e.buf[:n]
}

// readN fills a volatile buffer owned by the reader; the slice is only
// valid until the next read call.
func (e *reader) readN(n int) []byte {
	e.allocateBuf(n)
	if _, err := io.ReadFull(e.r, e.buf); err != nil {
		stopf(newMalformedf("short read: wanted %d bytes: %v", n, err))
	}
	return e.buf
}

// readNCopy reads n bytes into a freshly allocated slice the caller may
// retain past the next read call.
func (e *reader) readNCopy(n int) []byte {
	b := make([]byte, n)
	e.readBytes(b)
	return b
}

func (e *reader) readBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	if _, err := io.ReadFull(e.r, b); err != nil {
		stopf(newMalformedf("short read: wanted %d bytes: %v", len(b), err))
	}
}

func (e *reader) read1() uint8 {
	return e.readN(1)[0]
}

func (e *reader) read2(order binary.ByteOrder) uint16 {
	return order.Uint16(e.readN(2))
}

func (e *reader) read3BE() uint32 {
	b := e.readN(3)
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func (e *reader) read3LE() uint32 {
	b := e.readN(3)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func (e *reader) read4(order binary.ByteOrder) uint32 {
	return order.Uint32(e.readN(4))
}

func (e *reader) read8(order binary.ByteOrder) uint64 {
	return order.Uint64(e.readN(8))
}

// size returns the total length of the underlying stream, found by seeking
// to its end, and restores the current position afterwards.
func (e *reader) size() int64 {
	cur := e.pos()
	end, err := e.r.Seek(0, io.SeekEnd)
	if err != nil {
		stopf(newMalformed(err))
	}
	e.seek(cur)
	return end
}

// bufferedReader materializes length bytes from the current position into
// an in-memory *bytes.Reader, advancing the underlying stream past them.
func (e *reader) bufferedReader(length int64) *bytes.Reader {
	if length < 0 {
		stopf(newMalformedf("negative length %d", length))
	}
	b := e.readNCopy(int(length))
	return bytes.NewReader(b)
}
