// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import (
	"encoding/binary"
	"hash/crc32"
)

// crc32Engine computes the IEEE CRC-32 (reflected, polynomial 0xEDB88320)
// used to checksum PNG chunks (component C). It is a thin wrapper around
// the standard library's hash/crc32 — see SPEC_FULL.md §3 for why this is
// the idiomatic choice rather than a hand-rolled table, matching what Go's
// own image/png encoder uses for the same purpose.
//
// state follows crc32.Update's own chaining convention (the same one
// crc32.digest.Write relies on): the init-complement and final-complement
// spec.md §4.C describes as separate "init"/"finalize" steps are both
// folded into Update itself, so state starts at zero and finalize is a
// plain read with no extra XOR.
type crc32Engine struct {
	state uint32
}

// newCRC32 returns a fresh engine, ready to feed.
func newCRC32() crc32Engine {
	return crc32Engine{}
}

func (c crc32Engine) feed(b []byte) crc32Engine {
	c.state = crc32.Update(c.state, crc32.IEEETable, b)
	return c
}

func (c crc32Engine) feedString(s string) crc32Engine {
	c.state = crc32.Update(c.state, crc32.IEEETable, []byte(s))
	return c
}

func (c crc32Engine) feedUint32BE(v uint32) crc32Engine {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return c.feed(b[:])
}

func (c crc32Engine) finalize() uint32 {
	return c.state
}

// pngChunkCRC computes crc = CRC32(type ‖ data), the value every PNG chunk
// trailer must carry.
func pngChunkCRC(typ [4]byte, data []byte) uint32 {
	e := newCRC32().feed(typ[:]).feed(data)
	return e.finalize()
}
